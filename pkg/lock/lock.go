package lock

import "io"

// Lock is the logind view of one login session: its LockedHint and the Lock and Unlock requests
// logind sends to it. Methods may be called from several goroutines.
//
// Channels passed to the Add methods are written without blocking, a full channel misses the
// notification. Removing a channel that was never added is not an error.
type Lock interface {
	// GetLocked returns the current LockedHint.
	GetLocked() (bool, error)

	// SetLocked updates the LockedHint. It is set after the lock surfaces are shown and cleared
	// after unlocking.
	SetLocked(locked bool) error

	// AddLockSignal delivers logind Lock requests, such as from `loginctl lock-session`.
	AddLockSignal(c chan<- struct{}) error
	RemoveLockSignal(c chan<- struct{}) error

	// AddUnlockSignal delivers logind Unlock requests, such as from `loginctl unlock-session`.
	AddUnlockSignal(c chan<- struct{}) error
	RemoveUnlockSignal(c chan<- struct{}) error

	// AddLockedSignal delivers the new LockedHint whenever logind reports it changed.
	AddLockedSignal(c chan<- bool) error
	RemoveLockedSignal(c chan<- bool) error

	// Close drops all channels and closes the bus connection.
	io.Closer
}
