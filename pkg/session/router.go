package session

import "github.com/MatthiasKunnen/sessionlock/pkg/surface"

// HostEvent is any event delivered by the host. Only SurfaceOpenedEvent and SurfaceClosedEvent
// are interpreted; every other value is passed through untouched.
type HostEvent any

// SurfaceOpenedEvent is emitted by the host once a lock surface exists and can be drawn.
type SurfaceOpenedEvent struct {
	ID surface.ID
}

// SurfaceClosedEvent is emitted by the host after a lock surface has been destroyed.
type SurfaceClosedEvent struct {
	ID surface.ID
}

// Route classifies a host event.
// Surface lifecycle events become SurfaceOpened or SurfaceClosed, anything else is wrapped in
// RawHostEvent.
func Route(event HostEvent) Message {
	switch e := event.(type) {
	case SurfaceOpenedEvent:
		return SurfaceOpened{ID: e.ID}
	case SurfaceClosedEvent:
		return SurfaceClosed{ID: e.ID}
	default:
		return RawHostEvent{Event: event}
	}
}
