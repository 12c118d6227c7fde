// Command sessionlock locks the Wayland session until the unlock button is pressed on one of the
// lock surfaces.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/MatthiasKunnen/sessionlock/pkg/config"
	"github.com/MatthiasKunnen/sessionlock/pkg/lock"
	"github.com/MatthiasKunnen/sessionlock/pkg/lockscreen"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "config file, defaults to $XDG_CONFIG_HOME/sessionlock/config.toml")
	flag.Parse()

	logger := lockscreen.NewLogger(os.Stderr, "sessionlock")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Printf("Failed to load config: %v", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var hooks lockscreen.Hooks
	if sessionID := os.Getenv("XDG_SESSION_ID"); sessionID != "" {
		logind, err := lock.NewDbusSessionLock(sessionID)
		if err != nil {
			logger.Printf("Continuing without logind integration: %v", err)
		} else {
			defer func() {
				if err := logind.Close(); err != nil {
					logger.Printf("Failed to close logind connection: %v", err)
				}
			}()
			hooks.Logind = logind
		}
	}

	err = lockscreen.Run(ctx, cfg, logger, hooks)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, lockscreen.ErrLockRefused):
		logger.Printf("Could not lock the session: %v", err)
		return 3
	default:
		logger.Printf("Lock session failed: %v", err)
		return 1
	}
}
