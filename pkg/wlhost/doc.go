// Package wlhost locks a Wayland session using [ext-session-lock-v1].
//
// A [Host] creates one lock surface per output, reports surfaces and input to a [Session] and
// draws each surface from the session's state. It implements session.Controller: unlocking is
// requested through it.
//
// [ext-session-lock-v1]: https://wayland.app/protocols/ext-session-lock-v1
package wlhost
