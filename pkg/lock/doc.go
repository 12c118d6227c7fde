// Package lock provides an API for the lock state of a login session.
// The default implementation implements systemd-logind using its D-Bus interface,
// [org.freedesktop.login1].
//
// A lock screen reports its state through the session's LockedHint and listens for the Unlock
// signal, which `loginctl unlock-session` sends. A lock daemon listens for the Lock signal.
//
// [org.freedesktop.login1]: https://www.freedesktop.org/software/systemd/man/latest/org.freedesktop.login1.html
package lock
