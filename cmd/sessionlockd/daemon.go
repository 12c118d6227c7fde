package main

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"time"

	"github.com/MatthiasKunnen/sessionlock/pkg/config"
	"github.com/MatthiasKunnen/sessionlock/pkg/idle"
	"github.com/MatthiasKunnen/sessionlock/pkg/lock"
	"github.com/MatthiasKunnen/sessionlock/pkg/lockscreen"
)

type runSessionFunc func(ctx context.Context, cfg *config.Config, logger *log.Logger, hooks lockscreen.Hooks) error

// daemon starts lock sessions in response to lock triggers. At most one session runs at a time.
//
// All methods must be called from the goroutine running the daemon's select loop.
type daemon struct {
	ctx    context.Context
	cfg    *config.Config
	logger *log.Logger

	// logind is nil when the session is not managed by logind.
	logind lock.Lock
	// inhibitSleep is nil when sleep inhibitor locks cannot be taken.
	inhibitSleep func() (io.Closer, error)
	// lockSecrets is nil when no Secret Service is available.
	lockSecrets func(collections []string) error
	idle        idle.Controller
	runSession  runSessionFunc

	sessionDone chan error
	locked      chan struct{}
	idleChanges chan bool

	idleNotification idle.Notification
	idleTimeout      time.Duration
	sleepLock        io.Closer

	running  bool
	isLocked bool
	sleeping bool
}

func newDaemon(ctx context.Context, cfg *config.Config, logger *log.Logger) *daemon {
	return &daemon{
		ctx:         ctx,
		cfg:         cfg,
		logger:      logger,
		runSession:  lockscreen.Run,
		sessionDone: make(chan error, 1),
		locked:      make(chan struct{}, 1),
		idleChanges: make(chan bool, 1),
	}
}

// startSession starts a lock session unless one is running already.
func (d *daemon) startSession(reason string) {
	if d.running {
		d.logger.Printf("Ignoring %s, a lock session is already running", reason)
		return
	}

	d.running = true
	d.isLocked = false
	d.logger.Printf("Locking the session: %s", reason)

	cfg := d.cfg
	hooks := lockscreen.Hooks{
		Locked: func() {
			select {
			case d.locked <- struct{}{}:
			default:
			}
		},
		Logind: d.logind,
	}
	sessionLogger := lockscreen.NewLogger(os.Stderr, "sessionlock")

	go func() {
		d.sessionDone <- d.runSession(d.ctx, cfg, sessionLogger, hooks)
	}()
}

// handleLocked runs once the compositor has confirmed the lock of the current session.
func (d *daemon) handleLocked() {
	if !d.running {
		return
	}
	d.isLocked = true

	if collections := d.cfg.Daemon.LockSecrets; len(collections) > 0 && d.lockSecrets != nil {
		if err := d.lockSecrets(collections); err != nil {
			d.logger.Printf("Failed to lock secrets: %v", err)
		} else {
			d.logger.Printf("Locked %d secret collections", len(collections))
		}
	}

	if d.sleeping {
		// The screen is locked, the system may sleep now.
		d.releaseSleepLock()
	}
}

func (d *daemon) handleSessionDone(err error) {
	d.running = false
	d.isLocked = false

	switch {
	case err == nil:
		d.logger.Printf("Session unlocked")
	case errors.Is(err, context.Canceled):
		d.logger.Printf("Lock session stopped")
	default:
		d.logger.Printf("Lock session failed: %v", err)
	}

	if d.sleeping {
		// Locking failed, do not hold up the sleep any longer.
		d.releaseSleepLock()
	}
}

// handlePrepareForSleep handles logind's PrepareForSleep signal.
func (d *daemon) handlePrepareForSleep(sleep bool) {
	d.sleeping = sleep

	if !sleep {
		d.logger.Printf("System resumed")
		d.acquireSleepLock()
		return
	}

	switch {
	case !d.cfg.Daemon.LockOnSleep:
		d.releaseSleepLock()
	case d.isLocked:
		d.releaseSleepLock()
	default:
		// The sleep lock is released once the compositor confirms the lock.
		d.startSession("system is going to sleep")
	}
}

func (d *daemon) handleIdle(isIdle bool) {
	if isIdle {
		d.startSession("seat is idle")
	}
}

// applyConfig switches to a reloaded configuration. A running session keeps the configuration it
// was started with.
func (d *daemon) applyConfig(cfg *config.Config) {
	d.cfg = cfg
	d.logger.Printf("Configuration reloaded")

	if cfg.Daemon.LockOnSleep {
		d.acquireSleepLock()
	} else {
		d.releaseSleepLock()
	}

	d.setIdleTimeout(cfg.Daemon.IdleTimeout)
}

// setIdleTimeout replaces the idle notification. A timeout of 0 disables it.
func (d *daemon) setIdleTimeout(timeout time.Duration) {
	if d.idle == nil || (timeout == d.idleTimeout && d.idleNotification != nil) {
		return
	}

	if d.idleNotification != nil {
		if err := d.idleNotification.Close(); err != nil {
			d.logger.Printf("Failed to close idle notification: %v", err)
		}
		d.idleNotification = nil
	}
	d.idleTimeout = timeout

	if timeout <= 0 {
		return
	}

	notification, err := d.idle.AddNotification(&idle.CreateIdleNotification{
		Duration: timeout,
		Changes:  d.idleChanges,
	})
	if err != nil {
		d.logger.Printf("Failed to add idle notification: %v", err)
		return
	}

	d.idleNotification = notification
	d.logger.Printf("Locking after %s of inactivity", timeout)
}

func (d *daemon) acquireSleepLock() {
	if d.sleepLock != nil || d.inhibitSleep == nil || !d.cfg.Daemon.LockOnSleep {
		return
	}

	sleepLock, err := d.inhibitSleep()
	if err != nil {
		d.logger.Printf("Unable to acquire sleep inhibition lock: %v", err)
		return
	}

	d.sleepLock = sleepLock
}

func (d *daemon) releaseSleepLock() {
	if d.sleepLock == nil {
		return
	}

	if err := d.sleepLock.Close(); err != nil {
		d.logger.Printf("Failed to release sleep inhibition lock: %v", err)
	}
	d.sleepLock = nil
}

// close releases the sleep lock and the idle notification. A running session is stopped by
// cancelling the daemon's context.
func (d *daemon) close() {
	d.releaseSleepLock()

	if d.idleNotification != nil {
		if err := d.idleNotification.Close(); err != nil {
			d.logger.Printf("Failed to close idle notification: %v", err)
		}
		d.idleNotification = nil
	}
}
