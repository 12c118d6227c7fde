package secrets

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/require"
)

func TestCollectionPath(t *testing.T) {
	tests := []struct {
		ref  string
		want dbus.ObjectPath
	}{
		{"collection/login", "/org/freedesktop/secrets/collection/login"},
		{"aliases/default", "/org/freedesktop/secrets/aliases/default"},
		{" collection/login/ ", "/org/freedesktop/secrets/collection/login"},
		{"/org/freedesktop/secrets/collection/work", "/org/freedesktop/secrets/collection/work"},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := CollectionPath(tt.ref)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestCollectionPathInvalid(t *testing.T) {
	for _, ref := range []string{"", "   ", "collection/with space", "collection//login"} {
		_, err := CollectionPath(ref)
		require.Error(t, err, "ref %q", ref)
	}
}
