package inhibit

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	dbusDest             = "org.freedesktop.login1"
	dbusManagerInterface = "org.freedesktop.login1.Manager"
	dbusPath             = "/org/freedesktop/login1"
)

// Inhibitor takes logind inhibitor locks and reports when the system is about to sleep or shut
// down.
type Inhibitor struct {
	conn                   *dbus.Conn
	login1                 dbus.BusObject
	muSignals              sync.Mutex
	closeSignalHandler     chan struct{}
	closed                 bool
	prepareForSleepSubs    map[chan<- bool]struct{}
	prepareForShutdownSubs map[chan<- bool]struct{}
}

func New() (*Inhibitor, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}

	inhibitor := &Inhibitor{
		conn:                   conn,
		login1:                 conn.Object(dbusDest, dbusPath),
		closeSignalHandler:     make(chan struct{}),
		prepareForSleepSubs:    make(map[chan<- bool]struct{}),
		prepareForShutdownSubs: make(map[chan<- bool]struct{}),
	}

	c := make(chan *dbus.Signal, 10)
	conn.Signal(c)
	go func() {
		for {
			select {
			case <-inhibitor.closeSignalHandler:
				conn.RemoveSignal(c)
				return
			case v := <-c:
				inhibitor.handleIncomingSignal(v)
			}
		}
	}()

	return inhibitor, nil
}

// What names an operation logind can be asked to hold back.
type What string

const (
	WhatSleep    What = "sleep"
	WhatShutdown What = "shutdown"
	WhatIdle     What = "idle"
	// The handle-* values stop logind from acting on the matching key or switch itself.
	WhatHandleLidSwitch    What = "handle-lid-switch"
	WhatHandleSuspendKey   What = "handle-suspend-key"
	WhatHandleHibernateKey What = "handle-hibernate-key"
	WhatHandlePowerKey     What = "handle-power-key"
)

// Mode is how strongly an inhibitor holds back its operations.
type Mode string

const (
	// ModeDelay postpones the operation until the inhibitor is closed or logind's
	// InhibitDelayMaxSec runs out. sessionlockd uses it to lock before suspend.
	ModeDelay Mode = "delay"
	ModeBlock Mode = "block"
	// ModeBlockWeak blocks unless the operation was requested with a force flag.
	ModeBlockWeak Mode = "block-weak"
)

// Inhibit takes a logind inhibitor for what. who and why appear in `systemd-inhibit --list`.
// Closing the returned file descriptor releases it.
func (i *Inhibitor) Inhibit(who string, why string, mode Mode, what ...What) (io.Closer, error) {
	if len(what) == 0 {
		return nil, errors.New("Inhibit: at least one What is required")
	}

	var fd dbus.UnixFD

	err := i.login1.
		Call(dbusManagerInterface+".Inhibit", 0, joinWhat(what), who, why, string(mode)).
		Store(&fd)
	if err != nil {
		return nil, fmt.Errorf("failed to create inhibit lock: %w", err)
	}

	return os.NewFile(uintptr(fd), "inhibit"), nil
}

func (i *Inhibitor) handleIncomingSignal(s *dbus.Signal) {
	if s == nil {
		// Seems to happen on close
		return
	}

	if s.Path != i.login1.Path() {
		return
	}

	i.muSignals.Lock()
	defer i.muSignals.Unlock()

	subs := i.subscribersFor(s.Name)
	if subs == nil || len(s.Body) == 0 {
		return
	}
	active, ok := s.Body[0].(bool)
	if !ok {
		return
	}

	for c := range subs {
		select {
		case c <- active:
		default:
		}
	}
}

func (i *Inhibitor) subscribersFor(signal string) map[chan<- bool]struct{} {
	switch signal {
	case dbusManagerInterface + ".PrepareForSleep":
		return i.prepareForSleepSubs
	case dbusManagerInterface + ".PrepareForShutdown":
		return i.prepareForShutdownSubs
	}

	return nil
}

// SubscribePrepareForSleep delivers true right before the system suspends and false after it
// resumes. Sends never block.
func (i *Inhibitor) SubscribePrepareForSleep(c chan<- bool) error {
	return i.subscribe(c, i.prepareForSleepSubs, "PrepareForSleep")
}

func (i *Inhibitor) UnsubscribePrepareForSleep(c chan<- bool) error {
	return i.unsubscribe(c, i.prepareForSleepSubs, "PrepareForSleep")
}

// SubscribePrepareForShutdown delivers true when a poweroff or reboot starts. logind sends false
// only if the shutdown is cancelled.
func (i *Inhibitor) SubscribePrepareForShutdown(c chan<- bool) error {
	return i.subscribe(c, i.prepareForShutdownSubs, "PrepareForShutdown")
}

func (i *Inhibitor) UnsubscribePrepareForShutdown(c chan<- bool) error {
	return i.unsubscribe(c, i.prepareForShutdownSubs, "PrepareForShutdown")
}

func (i *Inhibitor) subscribe(c chan<- bool, subs map[chan<- bool]struct{}, member string) error {
	if c == nil {
		return fmt.Errorf("Subscribe%s: channel cannot be nil", member)
	}

	i.muSignals.Lock()
	defer i.muSignals.Unlock()

	if i.closed {
		return errors.New("inhibitor is closed")
	}

	if len(subs) == 0 {
		if err := i.conn.AddMatchSignal(i.matchOptions(member)...); err != nil {
			return fmt.Errorf("failed to register Dbus %s signal: %w", member, err)
		}
	}

	subs[c] = struct{}{}

	return nil
}

func (i *Inhibitor) unsubscribe(c chan<- bool, subs map[chan<- bool]struct{}, member string) error {
	if c == nil {
		return fmt.Errorf("Unsubscribe%s: channel cannot be nil", member)
	}

	i.muSignals.Lock()
	defer i.muSignals.Unlock()

	if _, ok := subs[c]; !ok {
		return nil
	}
	delete(subs, c)

	if len(subs) == 0 {
		return i.removeMatch(member)
	}

	return nil
}

// removeMatch removes the match rule of a Manager signal.
// Holding the muSignals mutex is required.
func (i *Inhibitor) removeMatch(member string) error {
	if err := i.conn.RemoveMatchSignal(i.matchOptions(member)...); err != nil {
		return fmt.Errorf("failed to remove Dbus %s signal: %w", member, err)
	}

	return nil
}

func (i *Inhibitor) matchOptions(member string) []dbus.MatchOption {
	return []dbus.MatchOption{
		dbus.WithMatchObjectPath(i.login1.Path()),
		dbus.WithMatchInterface(dbusManagerInterface),
		dbus.WithMatchSender(dbusDest),
		dbus.WithMatchMember(member),
	}
}

// Close permanently stops processing signals. Inhibitor locks taken earlier stay valid until
// they are closed themselves. Discard the inhibitor afterward.
func (i *Inhibitor) Close() error {
	i.muSignals.Lock()
	defer i.muSignals.Unlock()

	if i.closed {
		return nil
	}
	i.closed = true

	var err error

	if len(i.prepareForSleepSubs) > 0 {
		clear(i.prepareForSleepSubs)
		err = errors.Join(err, i.removeMatch("PrepareForSleep"))
	}
	if len(i.prepareForShutdownSubs) > 0 {
		clear(i.prepareForShutdownSubs)
		err = errors.Join(err, i.removeMatch("PrepareForShutdown"))
	}

	close(i.closeSignalHandler)
	return errors.Join(err, i.conn.Close())
}

func joinWhat(elems []What) string {
	parts := make([]string, len(elems))
	for i, elem := range elems {
		parts[i] = string(elem)
	}

	return strings.Join(parts, ":")
}
