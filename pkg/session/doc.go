// Package session drives the state of a lock session.
//
// The host (the Wayland adapter) hands its events to [Route], which turns them into [Message]
// values. A [Loop] applies messages one at a time to its surface registry and forwards the unlock
// request to the [Controller].
package session
