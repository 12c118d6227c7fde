// Package idle notifies about the seat becoming idle using the Wayland
// ext-idle-notify-v1 protocol.
package idle

import (
	"errors"
	"time"
)

// Controller creates idle notifications for a seat.
type Controller interface {
	// AddNotification registers a notification that reports true once the seat has been idle
	// for Duration, and false when the seat is used again.
	AddNotification(input *CreateIdleNotification) (Notification, error)
	// Close destroys the notifications that are still open and closes the connection.
	// Do not use the Controller afterward.
	Close() error
}

type Notification interface {
	// Close destroys this notification. Call it from the goroutine running the dispatch functions.
	Close() error
}

type CreateIdleNotification struct {
	Duration time.Duration

	// Changes receives true when the seat has been idle for Duration and false when it is
	// active again.
	Changes chan<- bool
}

func (n *CreateIdleNotification) validate() (durationMs uint32, err error) {
	if n.Changes == nil {
		return 0, errors.New("Changes channel is required")
	}

	ms := n.Duration.Milliseconds()
	switch {
	case ms > int64(^uint32(0)):
		return 0, errors.New("duration too large for ext-idle-notify-v1")
	case ms < 0:
		ms = 0
	}

	return uint32(ms), nil
}
