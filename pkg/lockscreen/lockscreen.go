// Package lockscreen runs one lock session: it locks the session through the compositor, shows
// the lock surfaces and returns once the session is unlocked again.
package lockscreen

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/MatthiasKunnen/sessionlock/pkg/config"
	"github.com/MatthiasKunnen/sessionlock/pkg/lock"
	"github.com/MatthiasKunnen/sessionlock/pkg/session"
	"github.com/MatthiasKunnen/sessionlock/pkg/surface"
	"github.com/MatthiasKunnen/sessionlock/pkg/view"
	"github.com/MatthiasKunnen/sessionlock/pkg/wlhost"
)

// ErrLockRefused is returned by Run when the compositor refuses the lock or revokes it.
var ErrLockRefused = wlhost.ErrLockRefused

// Hooks connects a lock session to the code around it. The zero value is valid.
type Hooks struct {
	// Locked is called once the compositor confirms that the session is locked.
	// It runs on the session goroutine and must not block.
	Locked func()

	// Logind, if set, has its LockedHint kept in sync with the lock and its Unlock signal
	// unlocks the session.
	Logind lock.Lock
}

// host is the part of wlhost.Host the session loop drives.
type host interface {
	session.Controller
	Lock(s wlhost.Session) error
	Redraw(id surface.ID)
	Done() bool
	Err() error
	Close() error
}

type runner struct {
	host     host
	dispatch <-chan func() error
	loop     *session.Loop
	hooks    Hooks
	logger   *log.Logger
	locked   bool
}

// Run locks the session and blocks until it is unlocked, the compositor ends the lock, or ctx is
// done.
// Cancelling ctx closes the connection without unlocking. The compositor keeps the session
// locked in that case.
func Run(ctx context.Context, cfg *config.Config, logger *log.Logger, hooks Hooks) error {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = log.Default()
	}

	theme, err := view.NewTheme(cfg.Theme)
	if err != nil {
		return fmt.Errorf("invalid theme: %w", err)
	}

	r := &runner{
		hooks:  hooks,
		logger: logger,
	}

	h, dispatch, err := wlhost.New(wlhost.Options{
		Scale:  cfg.Scale,
		Theme:  theme,
		Locked: r.handleLocked,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	r.host = h
	r.dispatch = dispatch
	r.loop = session.NewLoop(h, session.Config{
		Seed:   cfg.SeedText,
		Redraw: h.Redraw,
		Logger: logger,
	})

	return r.run(ctx)
}

func (r *runner) run(ctx context.Context) (err error) {
	defer func() {
		r.loop.Terminate()
		if closeErr := r.host.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close host: %w", closeErr))
		}
	}()

	var unlockSignal chan struct{}
	if r.hooks.Logind != nil {
		unlockSignal = make(chan struct{}, 1)
		if err := r.hooks.Logind.AddUnlockSignal(unlockSignal); err != nil {
			r.logger.Printf("Unable to listen for logind unlock requests: %v", err)
			unlockSignal = nil
		} else {
			defer func() {
				if err := r.hooks.Logind.RemoveUnlockSignal(unlockSignal); err != nil {
					r.logger.Printf("Failed to remove logind unlock signal: %v", err)
				}
			}()
		}
	}

	if err := r.host.Lock(r.loop); err != nil {
		return fmt.Errorf("failed to lock session: %w", err)
	}

	for !r.host.Done() {
		select {
		case <-ctx.Done():
			r.logger.Printf("Stopping without unlocking: %v", ctx.Err())
			return ctx.Err()
		case dispatchFunc := <-r.dispatch:
			if err := dispatchFunc(); err != nil {
				return fmt.Errorf("wayland dispatch failed: %w", err)
			}
		case <-unlockSignal:
			r.logger.Printf("Unlock requested through logind")
			r.loop.Dispatch(session.UnlockRequested{})
		}
	}

	if r.locked {
		r.setLockedHint(false)
	}

	return r.host.Err()
}

// handleLocked runs when the compositor confirms the lock.
func (r *runner) handleLocked() {
	r.locked = true
	r.setLockedHint(true)

	if r.hooks.Locked != nil {
		r.hooks.Locked()
	}
}

func (r *runner) setLockedHint(locked bool) {
	if r.hooks.Logind == nil {
		return
	}

	if err := r.hooks.Logind.SetLocked(locked); err != nil {
		r.logger.Printf("Failed to set LockedHint to %t: %v", locked, err)
	}
}
