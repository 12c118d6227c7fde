package secrets

import (
	"errors"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	dbusDest             = "org.freedesktop.secrets"
	dbusServiceInterface = "org.freedesktop.Secret.Service"
	dbusPath             = "/org/freedesktop/secrets"

	// noPrompt is the object path the service returns when no prompt is necessary.
	noPrompt dbus.ObjectPath = "/"
)

// ErrPromptRequired is returned by Lock when the service wants user interaction before locking.
// Lock screens cannot show the prompt so the collections are left as they are.
var ErrPromptRequired = errors.New("secret service requires a prompt to lock")

type Secrets struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

func New() (*Secrets, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	s := &Secrets{
		conn: conn,
	}
	s.obj = conn.Object(dbusDest, dbusPath)

	return s, nil
}

// CollectionPath converts a collection reference to its object path.
// References are relative to "/org/freedesktop/secrets/", e.g. "collection/login" or
// "aliases/default". Absolute object paths are returned as is.
func CollectionPath(ref string) (dbus.ObjectPath, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", errors.New("empty collection reference")
	}

	var path dbus.ObjectPath
	if strings.HasPrefix(ref, "/") {
		path = dbus.ObjectPath(ref)
	} else {
		path = dbus.ObjectPath(dbusPath + "/" + strings.TrimSuffix(ref, "/"))
	}

	if !path.IsValid() {
		return "", fmt.Errorf("invalid collection reference %q", ref)
	}

	return path, nil
}

// Lock locks the given objects. The given objects are prepended by "/org/freedesktop/secrets/"
// unless they are absolute object paths.
// The paths that the service reports as locked are returned.
func (s *Secrets) Lock(paths []string) ([]dbus.ObjectPath, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	objs := make([]dbus.ObjectPath, len(paths))
	for i, path := range paths {
		obj, err := CollectionPath(path)
		if err != nil {
			return nil, err
		}
		objs[i] = obj
	}

	var locked []dbus.ObjectPath
	var prompt dbus.ObjectPath
	err := s.obj.Call(dbusServiceInterface+".Lock", 0, objs).Store(&locked, &prompt)
	if err != nil {
		return nil, fmt.Errorf("could not lock collections: %w", err)
	}

	if prompt != noPrompt && prompt != "" {
		return locked, fmt.Errorf("%w: %s", ErrPromptRequired, prompt)
	}

	return locked, nil
}

// Close closes the bus connection.
func (s *Secrets) Close() error {
	return s.conn.Close()
}
