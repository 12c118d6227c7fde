package session

import (
	"fmt"

	"github.com/MatthiasKunnen/sessionlock/pkg/surface"
)

// Message is an instruction for the Loop. The set of messages is closed; see Loop.Dispatch.
type Message interface {
	message()
}

// IncrementRequested increments the counter of a surface.
type IncrementRequested struct {
	ID surface.ID
}

// DecrementRequested decrements the counter of a surface.
type DecrementRequested struct {
	ID surface.ID
}

// TextChanged replaces the text of a surface.
type TextChanged struct {
	ID   surface.ID
	Text string
}

// RawHostEvent carries a host event that has no meaning to the session.
type RawHostEvent struct {
	Event HostEvent
}

// SurfaceOpened reports a new lock surface.
type SurfaceOpened struct {
	ID surface.ID
}

// SurfaceClosed reports that a lock surface is gone, e.g. because its output was unplugged.
type SurfaceClosed struct {
	ID surface.ID
}

// UnlockRequested asks the host to end the session lock. It carries no surface since any
// surface may request it.
type UnlockRequested struct{}

func (IncrementRequested) message() {}
func (DecrementRequested) message() {}
func (TextChanged) message()        {}
func (RawHostEvent) message()       {}
func (SurfaceOpened) message()      {}
func (SurfaceClosed) message()      {}
func (UnlockRequested) message()    {}

func (m IncrementRequested) String() string { return fmt.Sprintf("IncrementRequested(%d)", m.ID) }
func (m DecrementRequested) String() string { return fmt.Sprintf("DecrementRequested(%d)", m.ID) }
func (m TextChanged) String() string        { return fmt.Sprintf("TextChanged(%d, %q)", m.ID, m.Text) }
func (m RawHostEvent) String() string       { return fmt.Sprintf("RawHostEvent(%T)", m.Event) }
func (m SurfaceOpened) String() string      { return fmt.Sprintf("SurfaceOpened(%d)", m.ID) }
func (m SurfaceClosed) String() string      { return fmt.Sprintf("SurfaceClosed(%d)", m.ID) }
func (UnlockRequested) String() string      { return "UnlockRequested" }
