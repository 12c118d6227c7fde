package main

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/MatthiasKunnen/sessionlock/pkg/config"
	"github.com/MatthiasKunnen/sessionlock/pkg/idle"
	"github.com/MatthiasKunnen/sessionlock/pkg/lockscreen"
	"github.com/stretchr/testify/require"
)

type fakeSessions struct {
	started chan lockscreen.Hooks
	finish  chan error
}

func (f *fakeSessions) run(ctx context.Context, _ *config.Config, _ *log.Logger, hooks lockscreen.Hooks) error {
	f.started <- hooks
	select {
	case err := <-f.finish:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type fakeCloser struct {
	closed bool
}

func (c *fakeCloser) Close() error {
	c.closed = true
	return nil
}

type fakeNotification struct {
	duration time.Duration
	closed   bool
}

func (n *fakeNotification) Close() error {
	n.closed = true
	return nil
}

type fakeIdle struct {
	notifications []*fakeNotification
}

func (f *fakeIdle) AddNotification(n *idle.CreateIdleNotification) (idle.Notification, error) {
	notification := &fakeNotification{duration: n.Duration}
	f.notifications = append(f.notifications, notification)
	return notification, nil
}

func (f *fakeIdle) Close() error { return nil }

type testDaemon struct {
	*daemon
	sessions    *fakeSessions
	sleepLocks  []*fakeCloser
	lockedPaths [][]string
}

func newTestDaemon(t *testing.T, cfg *config.Config) *testDaemon {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	td := &testDaemon{
		daemon: newDaemon(ctx, cfg, log.New(io.Discard, "", 0)),
		sessions: &fakeSessions{
			started: make(chan lockscreen.Hooks, 1),
			finish:  make(chan error, 1),
		},
	}
	td.runSession = td.sessions.run
	td.inhibitSleep = func() (io.Closer, error) {
		c := &fakeCloser{}
		td.sleepLocks = append(td.sleepLocks, c)
		return c, nil
	}
	td.lockSecrets = func(collections []string) error {
		td.lockedPaths = append(td.lockedPaths, collections)
		return nil
	}

	return td
}

func (td *testDaemon) waitStarted(t *testing.T) lockscreen.Hooks {
	t.Helper()

	select {
	case hooks := <-td.sessions.started:
		return hooks
	case <-time.After(5 * time.Second):
		require.FailNow(t, "no lock session started")
		return lockscreen.Hooks{}
	}
}

// confirmLock simulates the compositor confirming the lock of the running session.
func (td *testDaemon) confirmLock(hooks lockscreen.Hooks) {
	hooks.Locked()
	<-td.locked
	td.handleLocked()
}

func (td *testDaemon) finishSession(err error) {
	td.sessions.finish <- err
	td.handleSessionDone(<-td.sessionDone)
}

func TestDaemonRunsOneSessionAtATime(t *testing.T) {
	td := newTestDaemon(t, config.Default())

	td.startSession("first")
	td.waitStarted(t)
	require.True(t, td.running)

	td.startSession("second")
	require.Empty(t, td.sessions.started)

	td.finishSession(nil)
	require.False(t, td.running)

	td.handleIdle(true)
	td.waitStarted(t)
	td.finishSession(nil)
}

func TestDaemonIdleResumeDoesNotLock(t *testing.T) {
	td := newTestDaemon(t, config.Default())

	td.handleIdle(false)
	require.False(t, td.running)
}

func TestDaemonLocksSecretsOnLock(t *testing.T) {
	cfg := config.Default()
	cfg.Daemon.LockSecrets = []string{"collection/login"}
	td := newTestDaemon(t, cfg)

	td.startSession("test")
	td.confirmLock(td.waitStarted(t))
	require.True(t, td.isLocked)
	require.Equal(t, [][]string{{"collection/login"}}, td.lockedPaths)

	td.finishSession(nil)
	require.False(t, td.isLocked)
}

func TestDaemonSleepWaitsForLock(t *testing.T) {
	td := newTestDaemon(t, config.Default())
	td.acquireSleepLock()
	require.Len(t, td.sleepLocks, 1)

	td.handlePrepareForSleep(true)
	hooks := td.waitStarted(t)
	require.False(t, td.sleepLocks[0].closed, "sleep must wait for the lock")

	td.confirmLock(hooks)
	require.True(t, td.sleepLocks[0].closed)

	td.handlePrepareForSleep(false)
	require.Len(t, td.sleepLocks, 2)
	require.False(t, td.sleepLocks[1].closed)

	td.finishSession(nil)
}

func TestDaemonSleepWhileLocked(t *testing.T) {
	td := newTestDaemon(t, config.Default())
	td.acquireSleepLock()

	td.startSession("test")
	td.confirmLock(td.waitStarted(t))

	td.handlePrepareForSleep(true)
	require.True(t, td.sleepLocks[0].closed)
	require.Empty(t, td.sessions.started)

	td.finishSession(nil)
}

func TestDaemonSleepReleasedWhenLockFails(t *testing.T) {
	td := newTestDaemon(t, config.Default())
	td.acquireSleepLock()

	td.handlePrepareForSleep(true)
	td.waitStarted(t)

	td.finishSession(lockscreen.ErrLockRefused)
	require.True(t, td.sleepLocks[0].closed)
	require.False(t, td.running)
}

func TestDaemonLockOnSleepDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Daemon.LockOnSleep = false
	td := newTestDaemon(t, cfg)

	td.acquireSleepLock()
	require.Empty(t, td.sleepLocks)

	td.handlePrepareForSleep(true)
	require.False(t, td.running)
}

func withIdleTimeout(timeout time.Duration) *config.Config {
	cfg := config.Default()
	cfg.Daemon.IdleTimeout = timeout
	return cfg
}

func TestDaemonApplyConfig(t *testing.T) {
	td := newTestDaemon(t, config.Default())
	idleController := &fakeIdle{}
	td.idle = idleController
	td.acquireSleepLock()

	td.setIdleTimeout(5 * time.Minute)
	require.Len(t, idleController.notifications, 1)
	require.Equal(t, 5*time.Minute, idleController.notifications[0].duration)

	// Unchanged timeouts keep the notification.
	td.applyConfig(withIdleTimeout(5 * time.Minute))
	require.Len(t, idleController.notifications, 1)

	disabled := withIdleTimeout(0)
	disabled.Daemon.LockOnSleep = false
	td.applyConfig(disabled)
	require.True(t, idleController.notifications[0].closed)
	require.Len(t, idleController.notifications, 1)
	require.True(t, td.sleepLocks[0].closed)
	require.Nil(t, td.sleepLock)

	td.applyConfig(withIdleTimeout(time.Minute))
	require.Len(t, idleController.notifications, 2)
	require.Equal(t, time.Minute, idleController.notifications[1].duration)
	require.Len(t, td.sleepLocks, 2)

	td.close()
	require.True(t, idleController.notifications[1].closed)
	require.True(t, td.sleepLocks[1].closed)
}
