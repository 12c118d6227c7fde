package lock

import (
	"github.com/godbus/dbus/v5"
)

// subscribers is a set of channels notified of one D-Bus signal.
// The match rule for the signal is registered while the set is non-empty.
type subscribers[T any] struct {
	iface    string
	member   string
	channels map[chan<- T]struct{}
	active   bool
}

func newSubscribers[T any](iface string, member string) *subscribers[T] {
	return &subscribers[T]{
		iface:    iface,
		member:   member,
		channels: make(map[chan<- T]struct{}),
	}
}

func (s *subscribers[T]) matchOptions(path dbus.ObjectPath) []dbus.MatchOption {
	return []dbus.MatchOption{
		dbus.WithMatchObjectPath(path),
		dbus.WithMatchInterface(s.iface),
		dbus.WithMatchSender(loginDest),
		dbus.WithMatchMember(s.member),
	}
}

// add registers c and reports whether the match rule still needs to be added.
func (s *subscribers[T]) add(c chan<- T) (needsMatch bool) {
	s.channels[c] = struct{}{}
	return !s.active
}

// remove unregisters c and reports whether the match rule can be removed.
func (s *subscribers[T]) remove(c chan<- T) (dropMatch bool) {
	if _, ok := s.channels[c]; !ok {
		return false
	}

	delete(s.channels, c)
	return len(s.channels) == 0 && s.active
}

// notify sends v to every channel without blocking.
func (s *subscribers[T]) notify(v T) {
	for c := range s.channels {
		select {
		case c <- v:
		default:
		}
	}
}
