package session

import (
	"fmt"
	"log"
	"time"

	"github.com/MatthiasKunnen/sessionlock/pkg/surface"
	"golang.org/x/time/rate"
)

// Controller is the session-lock owner on the host side.
type Controller interface {
	// RequestUnlock asks the host to end the session lock. It is called at most once per Loop.
	RequestUnlock()
}

// Phase is the lifecycle position of a Loop.
type Phase int

const (
	// Uninitialized is the phase of a Loop that was not created with NewLoop.
	Uninitialized Phase = iota
	// Running accepts and applies messages.
	Running
	// Unlocking is entered on the first UnlockRequested. State changes are no longer applied.
	Unlocking
	// Terminated is entered once the host confirms that the lock and its surfaces are gone.
	Terminated
)

func (p Phase) String() string {
	switch p {
	case Uninitialized:
		return "uninitialized"
	case Running:
		return "running"
	case Unlocking:
		return "unlocking"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Config configures a Loop.
type Config struct {
	// Seed is the initial text of every surface.
	Seed string

	// Redraw, if set, is called after a message changed the state of a surface, including its
	// creation and removal.
	Redraw func(id surface.ID)

	// Logger defaults to log.Default().
	Logger *log.Logger
}

// Loop owns the surface registry of one lock session and applies messages to it.
//
// Loop is not safe for concurrent use. The host must call Dispatch, Render and Terminate from
// the goroutine that handles its events, which serializes every state change.
type Loop struct {
	controller Controller
	logger     *log.Logger
	phase      Phase
	redraw     func(id surface.ID)
	registry   *surface.Registry
	rawLog     rate.Sometimes
}

// NewLoop creates a Loop with an empty registry. The Loop starts in the Running phase.
func NewLoop(controller Controller, cfg Config) *Loop {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Loop{
		controller: controller,
		logger:     logger,
		phase:      Running,
		redraw:     cfg.Redraw,
		registry:   surface.NewRegistry(cfg.Seed),
		rawLog:     rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}
}

// Phase returns the current phase.
func (l *Loop) Phase() Phase {
	return l.phase
}

// Dispatch applies msg. It returns once msg is fully processed.
func (l *Loop) Dispatch(msg Message) {
	if l.phase != Running {
		l.dispatchStopped(msg)
		return
	}

	switch m := msg.(type) {
	case SurfaceOpened:
		if l.registry.Open(m.ID) {
			l.logf("Opened surface %d (%d total)", m.ID, l.registry.Len())
			l.changed(m.ID)
		}
	case SurfaceClosed:
		if l.registry.Close(m.ID) {
			l.logf("Closed surface %d (%d left)", m.ID, l.registry.Len())
			l.changed(m.ID)
		}
	case IncrementRequested:
		l.registry.Mutate(m.ID, func(s *surface.State) {
			s.Counter++
		})
		l.changed(m.ID)
	case DecrementRequested:
		l.registry.Mutate(m.ID, func(s *surface.State) {
			s.Counter--
		})
		l.changed(m.ID)
	case TextChanged:
		l.registry.Mutate(m.ID, func(s *surface.State) {
			s.Text = m.Text
		})
		l.changed(m.ID)
	case RawHostEvent:
		l.rawLog.Do(func() {
			l.logf("Ignoring host event %T", m.Event)
		})
	case UnlockRequested:
		l.phase = Unlocking
		l.logf("Unlock requested with %d surfaces", l.registry.Len())
		l.controller.RequestUnlock()
	default:
		l.logf("Dropping unknown message %T", msg)
	}
}

// dispatchStopped handles messages received outside the Running phase. Nothing is applied.
func (l *Loop) dispatchStopped(msg Message) {
	switch msg.(type) {
	case RawHostEvent:
	case UnlockRequested:
		if l.phase == Unlocking {
			l.logf("Unlock already requested")
		}
	default:
		l.logf("Dropping %v while %s", msg, l.phase)
	}
}

// Render returns the state id must be drawn from. ok is false when the surface has no state
// yet, or no longer has one.
// The returned value is a copy; it must not be kept beyond the current frame.
func (l *Loop) Render(id surface.ID) (state surface.State, ok bool) {
	if l.registry == nil {
		return surface.State{}, false
	}

	return l.registry.Get(id)
}

// Surfaces returns the surfaces that currently have state, in ascending order.
func (l *Loop) Surfaces() []surface.ID {
	if l.registry == nil {
		return nil
	}

	return l.registry.IDs()
}

// Terminate marks the session as finished. The host calls it after the lock has been released
// or revoked.
func (l *Loop) Terminate() {
	if l.phase == Terminated {
		return
	}

	l.logf("Session %s -> %s", l.phase, Terminated)
	l.phase = Terminated
}

func (l *Loop) changed(id surface.ID) {
	if l.redraw != nil {
		l.redraw(id)
	}
}

func (l *Loop) logf(format string, v ...any) {
	if l.logger == nil {
		log.Printf(format, v...)
		return
	}

	l.logger.Printf(format, v...)
}
