package lock_test

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/MatthiasKunnen/sessionlock/pkg/lock"
)

// A lock screen announces itself through the LockedHint and steps down when logind asks it to.
func ExampleNewDbusSessionLock() {
	session, err := lock.NewDbusSessionLock(os.Getenv("XDG_SESSION_ID"))
	if err != nil {
		log.Fatalf("logind session: %v", err)
	}
	defer session.Close()

	unlock := make(chan struct{}, 1)
	if err := session.AddUnlockSignal(unlock); err != nil {
		log.Fatalf("Unlock signal: %v", err)
	}
	defer session.RemoveUnlockSignal(unlock)

	if err := session.SetLocked(true); err != nil {
		log.Printf("Could not set LockedHint: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	select {
	case <-unlock:
	case <-ctx.Done():
	}

	if err := session.SetLocked(false); err != nil {
		log.Printf("Could not clear LockedHint: %v", err)
	}
}
