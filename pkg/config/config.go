package config

import (
	"errors"
	"fmt"
	"image/color"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/MatthiasKunnen/sessionlock/pkg/secrets"
)

// Config is the contents of config.toml.
type Config struct {
	// SeedText is the initial content of the text field on every surface.
	SeedText string `toml:"seed_text"`

	// Scale multiplies the size of everything drawn. 0 picks a scale from the output height.
	Scale int `toml:"scale"`

	Theme  Theme  `toml:"theme"`
	Daemon Daemon `toml:"daemon"`
}

// Theme holds the colors of the lock surfaces as "#rrggbb" strings.
type Theme struct {
	Background string `toml:"background"`
	Foreground string `toml:"foreground"`
	Button     string `toml:"button"`
	Input      string `toml:"input"`
	Focus      string `toml:"focus"`
}

// Daemon configures sessionlockd.
type Daemon struct {
	// IdleTimeout locks the session after the seat has been idle this long. 0 disables it.
	IdleTimeout time.Duration `toml:"idle_timeout"`

	// LockOnSleep locks the session before the system suspends.
	LockOnSleep bool `toml:"lock_on_sleep"`

	// LockSecrets lists Secret Service collections to lock when the session locks,
	// relative to /org/freedesktop/secrets, e.g. "collection/login".
	LockSecrets []string `toml:"lock_secrets"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Theme: Theme{
			Background: "#1e1e2e",
			Foreground: "#cdd6f4",
			Button:     "#45475a",
			Input:      "#313244",
			Focus:      "#89b4fa",
		},
		Daemon: Daemon{
			IdleTimeout: 10 * time.Minute,
			LockOnSleep: true,
		},
	}
}

// Path returns the configuration file location.
func Path() (string, error) {
	if p := os.Getenv("SESSIONLOCK_CONFIG"); p != "" {
		return p, nil
	}

	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("could not determine config directory: %w", err)
	}

	return filepath.Join(dir, "sessionlock", "config.toml"), nil
}

// Load reads the configuration at path. An empty path uses Path.
// A file that does not exist yields the defaults.
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = Path()
		if err != nil {
			return nil, err
		}
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	default:
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, key := range undecoded {
				keys[i] = key.String()
			}
			return nil, fmt.Errorf("unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}

	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// ApplyEnvOverrides overrides fields with the SESSIONLOCK_* environment variables.
func (c *Config) ApplyEnvOverrides() error {
	if seed, ok := os.LookupEnv("SESSIONLOCK_SEED_TEXT"); ok {
		c.SeedText = seed
	}

	if scale := os.Getenv("SESSIONLOCK_SCALE"); scale != "" {
		v, err := strconv.Atoi(scale)
		if err != nil {
			return fmt.Errorf("SESSIONLOCK_SCALE: %w", err)
		}
		c.Scale = v
	}

	if timeout := os.Getenv("SESSIONLOCK_IDLE_TIMEOUT"); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("SESSIONLOCK_IDLE_TIMEOUT: %w", err)
		}
		c.Daemon.IdleTimeout = d
	}

	return nil
}

// Validate reports every invalid value, joined into one error.
func (c *Config) Validate() error {
	var err error
	if c.Scale < 0 || c.Scale > 8 {
		err = errors.Join(err, fmt.Errorf("scale must be between 0 and 8, got %d", c.Scale))
	}

	if c.Daemon.IdleTimeout < 0 {
		err = errors.Join(err, fmt.Errorf("daemon.idle_timeout must not be negative"))
	}

	for name, value := range map[string]string{
		"theme.background": c.Theme.Background,
		"theme.foreground": c.Theme.Foreground,
		"theme.button":     c.Theme.Button,
		"theme.input":      c.Theme.Input,
		"theme.focus":      c.Theme.Focus,
	} {
		if _, parseErr := ParseColor(value); parseErr != nil {
			err = errors.Join(err, fmt.Errorf("%s: %w", name, parseErr))
		}
	}

	for _, collection := range c.Daemon.LockSecrets {
		if _, pathErr := secrets.CollectionPath(collection); pathErr != nil {
			err = errors.Join(err, fmt.Errorf("daemon.lock_secrets: %w", pathErr))
		}
	}

	return err
}

// ParseColor parses "#rrggbb" or "#rgb".
func ParseColor(s string) (color.RGBA, error) {
	hex, ok := strings.CutPrefix(s, "#")
	if !ok {
		return color.RGBA{}, fmt.Errorf("color %q does not start with #", s)
	}

	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("color %q must have 3 or 6 hex digits", s)
	}

	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("color %q: %w", s, err)
	}

	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}
