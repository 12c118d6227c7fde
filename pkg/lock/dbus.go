package lock

import (
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	loginDest             = "org.freedesktop.login1"
	loginPath             = "/org/freedesktop/login1"
	loginSessionInterface = "org.freedesktop.login1.Session"
	propertiesInterface   = "org.freedesktop.DBus.Properties"
)

type logindSession struct {
	conn        *dbus.Conn
	object      dbus.BusObject
	mu          sync.Mutex
	stopSignals chan struct{}
	closed      bool

	lockSignals       *subscribers[struct{}]
	unlockSignals     *subscribers[struct{}]
	lockedHintSignals *subscribers[bool]
}

// NewDbusSessionLock talks to [logind] over the system bus about the session with the given id,
// normally $XDG_SESSION_ID.
//
// [logind]: https://www.freedesktop.org/software/systemd/man/latest/org.freedesktop.login1.html
func NewDbusSessionLock(sessionId string) (Lock, error) {
	if sessionId == "" {
		return nil, errors.New("no logind session id given")
	}

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("system bus: %w", err)
	}

	sessionPath, err := findSessionPath(conn.Object(loginDest, loginPath), sessionId)
	if err != nil {
		return nil, errors.Join(err, conn.Close())
	}

	ls := &logindSession{
		conn:              conn,
		object:            conn.Object(loginDest, sessionPath),
		stopSignals:       make(chan struct{}),
		lockSignals:       newSubscribers[struct{}](loginSessionInterface, "Lock"),
		unlockSignals:     newSubscribers[struct{}](loginSessionInterface, "Unlock"),
		lockedHintSignals: newSubscribers[bool](propertiesInterface, "PropertiesChanged"),
	}

	c := make(chan *dbus.Signal, 10)
	conn.Signal(c)
	go func() {
		for {
			select {
			case <-ls.stopSignals:
				conn.RemoveSignal(c)
				return
			case v := <-c:
				ls.handleIncomingSignal(v)
			}
		}
	}()

	return ls, nil
}

// findSessionPath looks up the object path of a session in the output of
// org.freedesktop.login1.Manager.ListSessions.
func findSessionPath(manager dbus.BusObject, sessionId string) (dbus.ObjectPath, error) {
	var sessions []interface{}
	err := manager.Call("org.freedesktop.login1.Manager.ListSessions", 0).Store(&sessions)
	if err != nil {
		return "", fmt.Errorf("failed to list sessions: %w", err)
	}

	return sessionPathFromList(sessions, sessionId)
}

func sessionPathFromList(sessions []interface{}, sessionId string) (dbus.ObjectPath, error) {
	for i, sessionInt := range sessions {
		session, ok := sessionInt.([]interface{})
		if !ok || len(session) < 5 {
			return "", fmt.Errorf("session %d is not a (susso) tuple: %+v", i, sessionInt)
		}

		currentSessionId, ok := session[0].(string)
		if !ok {
			return "", fmt.Errorf("session %d[0] is not a string: %+v", i, session[0])
		}
		if currentSessionId != sessionId {
			continue
		}

		sessionPath, ok := session[4].(dbus.ObjectPath)
		if !ok {
			return "", fmt.Errorf("session %d[4] is not an ObjectPath: %+v", i, session[4])
		}

		return sessionPath, nil
	}

	return "", fmt.Errorf("failed to find session object for session %q", sessionId)
}

func (ls *logindSession) SetLocked(locked bool) error {
	err := ls.object.
		Call(loginSessionInterface+".SetLockedHint", 0, locked).Err
	if err != nil {
		return fmt.Errorf("could not set locked hint: %w", err)
	}

	return nil
}

func (ls *logindSession) GetLocked() (bool, error) {
	variant, err := ls.object.GetProperty(loginSessionInterface + ".LockedHint")
	if err != nil {
		return false, fmt.Errorf("could not get locked hint: %w", err)
	}

	lockedHint, ok := variant.Value().(bool)
	if !ok {
		return false, fmt.Errorf("LockedHint is %T, not a boolean", variant.Value())
	}

	return lockedHint, nil
}

func (ls *logindSession) AddLockSignal(c chan<- struct{}) error {
	return addSubscriber(ls, ls.lockSignals, c)
}

func (ls *logindSession) RemoveLockSignal(c chan<- struct{}) error {
	return removeSubscriber(ls, ls.lockSignals, c)
}

func (ls *logindSession) AddUnlockSignal(c chan<- struct{}) error {
	return addSubscriber(ls, ls.unlockSignals, c)
}

func (ls *logindSession) RemoveUnlockSignal(c chan<- struct{}) error {
	return removeSubscriber(ls, ls.unlockSignals, c)
}

func (ls *logindSession) AddLockedSignal(c chan<- bool) error {
	return addSubscriber(ls, ls.lockedHintSignals, c)
}

func (ls *logindSession) RemoveLockedSignal(c chan<- bool) error {
	return removeSubscriber(ls, ls.lockedHintSignals, c)
}

var errNilChannel = errors.New("channel cannot be nil")

func addSubscriber[T any](ls *logindSession, s *subscribers[T], c chan<- T) error {
	if c == nil {
		return fmt.Errorf("%s subscription: %w", s.member, errNilChannel)
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ls.closed {
		return errors.New("lock is closed")
	}

	if !s.add(c) {
		return nil
	}

	if err := ls.conn.AddMatchSignal(s.matchOptions(ls.object.Path())...); err != nil {
		delete(s.channels, c)
		return fmt.Errorf("failed to register Dbus %s signal: %w", s.member, err)
	}
	s.active = true

	return nil
}

func removeSubscriber[T any](ls *logindSession, s *subscribers[T], c chan<- T) error {
	if c == nil {
		return fmt.Errorf("%s unsubscription: %w", s.member, errNilChannel)
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()

	if !s.remove(c) {
		return nil
	}

	return dropMatch(ls, s)
}

// dropMatch removes the match rule of s.
// The caller holds mu.
func dropMatch[T any](ls *logindSession, s *subscribers[T]) error {
	if !s.active {
		return nil
	}

	if err := ls.conn.RemoveMatchSignal(s.matchOptions(ls.object.Path())...); err != nil {
		return fmt.Errorf("failed to remove Dbus %s signal: %w", s.member, err)
	}
	s.active = false

	return nil
}

func (ls *logindSession) Close() error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ls.closed {
		return nil
	}
	ls.closed = true

	var err error

	clear(ls.lockSignals.channels)
	err = errors.Join(err, dropMatch(ls, ls.lockSignals))
	clear(ls.unlockSignals.channels)
	err = errors.Join(err, dropMatch(ls, ls.unlockSignals))
	clear(ls.lockedHintSignals.channels)
	err = errors.Join(err, dropMatch(ls, ls.lockedHintSignals))

	close(ls.stopSignals)
	return errors.Join(err, ls.conn.Close())
}

func (ls *logindSession) handleIncomingSignal(s *dbus.Signal) {
	if s == nil || s.Path != ls.object.Path() {
		return
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()

	switch s.Name {
	case loginSessionInterface + ".Lock":
		ls.lockSignals.notify(struct{}{})
	case loginSessionInterface + ".Unlock":
		ls.unlockSignals.notify(struct{}{})
	case propertiesInterface + ".PropertiesChanged":
		isLocked, ok := lockedHintFromBody(s.Body)
		if ok {
			ls.lockedHintSignals.notify(isLocked)
		}
	}
}

// lockedHintFromBody extracts LockedHint from the body of a PropertiesChanged signal.
func lockedHintFromBody(body []interface{}) (locked bool, ok bool) {
	if len(body) < 2 {
		return false, false
	}

	changedProperties, ok := body[1].(map[string]dbus.Variant)
	if !ok {
		return false, false
	}

	lockedHintProperty, ok := changedProperties["LockedHint"]
	if !ok {
		return false, false
	}

	locked, ok = lockedHintProperty.Value().(bool)
	return locked, ok
}
