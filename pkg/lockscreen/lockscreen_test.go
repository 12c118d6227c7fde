package lockscreen

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/MatthiasKunnen/sessionlock/pkg/session"
	"github.com/MatthiasKunnen/sessionlock/pkg/surface"
	"github.com/MatthiasKunnen/sessionlock/pkg/wlhost"
	"github.com/stretchr/testify/require"
)

type fakeHost struct {
	session        wlhost.Session
	lockErr        error
	unlockRequests int
	redraws        []surface.ID
	done           bool
	err            error
	closed         bool
}

func (h *fakeHost) Lock(s wlhost.Session) error {
	if h.lockErr != nil {
		return h.lockErr
	}
	h.session = s
	return nil
}

func (h *fakeHost) RequestUnlock() {
	h.unlockRequests++
	h.done = true
}

func (h *fakeHost) Redraw(id surface.ID) { h.redraws = append(h.redraws, id) }
func (h *fakeHost) Done() bool           { return h.done }
func (h *fakeHost) Err() error           { return h.err }

func (h *fakeHost) Close() error {
	h.closed = true
	return nil
}

type fakeLogind struct {
	hints  []bool
	unlock chan<- struct{}
}

func (l *fakeLogind) GetLocked() (bool, error) {
	return len(l.hints) > 0 && l.hints[len(l.hints)-1], nil
}

func (l *fakeLogind) SetLocked(locked bool) error {
	l.hints = append(l.hints, locked)
	return nil
}

func (l *fakeLogind) AddLockSignal(chan<- struct{}) error    { return nil }
func (l *fakeLogind) RemoveLockSignal(chan<- struct{}) error { return nil }

func (l *fakeLogind) AddUnlockSignal(c chan<- struct{}) error {
	l.unlock = c
	return nil
}

func (l *fakeLogind) RemoveUnlockSignal(c chan<- struct{}) error {
	if l.unlock == c {
		l.unlock = nil
	}
	return nil
}

func (l *fakeLogind) AddLockedSignal(chan<- bool) error    { return nil }
func (l *fakeLogind) RemoveLockedSignal(chan<- bool) error { return nil }
func (l *fakeLogind) Close() error                         { return nil }

func newTestRunner(hooks Hooks) (*runner, *fakeHost, chan func() error) {
	h := &fakeHost{}
	dispatch := make(chan func() error)
	logger := log.New(io.Discard, "", 0)

	r := &runner{
		host:     h,
		dispatch: dispatch,
		hooks:    hooks,
		logger:   logger,
	}
	r.loop = session.NewLoop(h, session.Config{Redraw: h.Redraw, Logger: logger})

	return r, h, dispatch
}

func TestRunUnlockButton(t *testing.T) {
	lockedCalls := 0
	logind := &fakeLogind{}
	r, h, dispatch := newTestRunner(Hooks{
		Locked: func() { lockedCalls++ },
		Logind: logind,
	})

	go func() {
		dispatch <- func() error {
			h.session.Dispatch(session.Route(session.SurfaceOpenedEvent{ID: 3}))
			r.handleLocked()
			return nil
		}
		dispatch <- func() error {
			h.session.Dispatch(session.IncrementRequested{ID: 3})
			h.session.Dispatch(session.UnlockRequested{})
			h.session.Dispatch(session.UnlockRequested{})
			return nil
		}
	}()

	require.NoError(t, r.run(context.Background()))
	require.Equal(t, 1, h.unlockRequests)
	require.Equal(t, 1, lockedCalls)
	require.Equal(t, []bool{true, false}, logind.hints)
	require.Nil(t, logind.unlock)
	require.Equal(t, []surface.ID{3, 3}, h.redraws)
	require.True(t, h.closed)
	require.Equal(t, session.Terminated, r.loop.Phase())
}

func TestRunLogindUnlock(t *testing.T) {
	logind := &fakeLogind{}
	r, h, dispatch := newTestRunner(Hooks{Logind: logind})

	go func() {
		dispatch <- func() error {
			r.handleLocked()
			return nil
		}
		// The unlock signal was registered before the first dispatch function was received.
		logind.unlock <- struct{}{}
	}()

	require.NoError(t, r.run(context.Background()))
	require.Equal(t, 1, h.unlockRequests)
	require.Equal(t, []bool{true, false}, logind.hints)
	require.True(t, h.closed)
}

func TestRunCancelledDoesNotUnlock(t *testing.T) {
	logind := &fakeLogind{}
	r, h, _ := newTestRunner(Hooks{Logind: logind})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, h.unlockRequests)
	require.Empty(t, logind.hints)
	require.True(t, h.closed)
	require.Equal(t, session.Terminated, r.loop.Phase())
}

func TestRunLockRefused(t *testing.T) {
	r, h, dispatch := newTestRunner(Hooks{})

	go func() {
		dispatch <- func() error {
			h.done = true
			h.err = wlhost.ErrLockRefused
			return nil
		}
	}()

	err := r.run(context.Background())
	require.ErrorIs(t, err, ErrLockRefused)
	require.Zero(t, h.unlockRequests)
	require.True(t, h.closed)
}

func TestRunDispatchError(t *testing.T) {
	r, h, dispatch := newTestRunner(Hooks{})
	broken := errors.New("broken pipe")

	go func() {
		dispatch <- func() error {
			return broken
		}
	}()

	err := r.run(context.Background())
	require.ErrorIs(t, err, broken)
	require.True(t, h.closed)
}

func TestRunLockError(t *testing.T) {
	r, h, _ := newTestRunner(Hooks{})
	h.lockErr = errors.New("no outputs")

	err := r.run(context.Background())
	require.ErrorContains(t, err, "failed to lock session")
	require.True(t, h.closed)
}
