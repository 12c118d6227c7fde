// Command sessionlockd locks the Wayland session when logind asks for it, when the seat has been
// idle for a while, and before the system goes to sleep.
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/MatthiasKunnen/sessionlock/pkg/config"
	"github.com/MatthiasKunnen/sessionlock/pkg/idle"
	"github.com/MatthiasKunnen/sessionlock/pkg/inhibit"
	"github.com/MatthiasKunnen/sessionlock/pkg/lock"
	"github.com/MatthiasKunnen/sessionlock/pkg/secrets"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "config file, defaults to $XDG_CONFIG_HOME/sessionlock/config.toml")
	flag.Parse()

	logger := log.New(os.Stderr, "sessionlockd: ", log.LstdFlags|log.Lmsgprefix)

	path := *configPath
	if path == "" {
		var err error
		path, err = config.Path()
		if err != nil {
			logger.Printf("%v", err)
			return 2
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		logger.Printf("Failed to load config: %v", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := newDaemon(ctx, cfg, logger)
	d.lockSecrets = lockSecrets

	var lockSignal chan struct{}
	if sessionID := os.Getenv("XDG_SESSION_ID"); sessionID == "" {
		logger.Printf("XDG_SESSION_ID is not set, logind lock requests are ignored")
	} else if logind, err := lock.NewDbusSessionLock(sessionID); err != nil {
		logger.Printf("Continuing without logind integration: %v", err)
	} else {
		defer func() {
			if err := logind.Close(); err != nil {
				logger.Printf("Failed to close logind connection: %v", err)
			}
		}()
		d.logind = logind

		lockSignal = make(chan struct{}, 1)
		if err := logind.AddLockSignal(lockSignal); err != nil {
			logger.Printf("Unable to listen for logind lock requests: %v", err)
			lockSignal = nil
		}
	}

	var prepareForSleep, prepareForShutdown chan bool
	if inhibitor, err := inhibit.New(); err != nil {
		logger.Printf("Not locking before sleep: %v", err)
	} else {
		defer func() {
			if err := inhibitor.Close(); err != nil {
				logger.Printf("Failed to close inhibitor: %v", err)
			}
		}()

		prepareForSleep = make(chan bool, 1)
		if err := inhibitor.SubscribePrepareForSleep(prepareForSleep); err != nil {
			logger.Printf("Not locking before sleep, unable to subscribe to PrepareForSleep: %v", err)
			prepareForSleep = nil
		} else {
			d.inhibitSleep = func() (io.Closer, error) {
				return inhibitor.Inhibit("sessionlockd", "Lock the session before sleeping", inhibit.ModeDelay, inhibit.WhatSleep)
			}
		}

		prepareForShutdown = make(chan bool, 1)
		if err := inhibitor.SubscribePrepareForShutdown(prepareForShutdown); err != nil {
			logger.Printf("Unable to subscribe to PrepareForShutdown: %v", err)
			prepareForShutdown = nil
		}
	}

	var idleDispatch <-chan func() error
	if controller, dispatch, err := idle.NewWaylandIdleController(logger); err != nil {
		logger.Printf("Not locking on idle: %v", err)
	} else {
		defer func() {
			if err := controller.Close(); err != nil {
				logger.Printf("Failed to close idle controller: %v", err)
			}
		}()
		d.idle = controller
		idleDispatch = dispatch
	}

	reloaded, err := config.Watch(ctx, path, logger)
	if err != nil {
		logger.Printf("Config changes require a restart: %v", err)
	}

	d.acquireSleepLock()
	d.setIdleTimeout(cfg.Daemon.IdleTimeout)
	defer d.close()

	for {
		select {
		case <-ctx.Done():
			if d.running {
				logger.Printf("Waiting for the lock session to stop")
				d.handleSessionDone(<-d.sessionDone)
			}
			return 0
		case dispatchFunc := <-idleDispatch:
			if err := dispatchFunc(); err != nil {
				logger.Printf("Idle dispatch error: %v", err)
			}
		case isIdle := <-d.idleChanges:
			d.handleIdle(isIdle)
		case <-lockSignal:
			d.startSession("logind requested a lock")
		case sleep := <-prepareForSleep:
			d.handlePrepareForSleep(sleep)
		case shutdown := <-prepareForShutdown:
			if shutdown {
				logger.Printf("System is shutting down")
				stop()
			}
		case <-d.locked:
			d.handleLocked()
		case err := <-d.sessionDone:
			d.handleSessionDone(err)
		case newCfg, ok := <-reloaded:
			if !ok {
				reloaded = nil
				continue
			}
			d.applyConfig(newCfg)
		}
	}
}

// lockSecrets locks the given Secret Service collections over a short-lived session bus
// connection.
func lockSecrets(collections []string) error {
	s, err := secrets.New()
	if err != nil {
		return err
	}
	defer s.Close()

	_, err = s.Lock(collections)
	return err
}
