// Package secrets allows communication with [org.freedesktop.Secret].
// Program that provide this API include Gnome Keyring, KDE Wallet, and keepassxc.
//
// The lock daemon uses it to lock keyring collections as soon as the session is locked, so that
// unlocked secrets are not left readable behind the lock screen.
//
// [org.freedesktop.Secret]: https://specifications.freedesktop.org/secret-service-spec/latest/
package secrets
