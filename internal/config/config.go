package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hnrobert/lumauth/internal/hostfs"
)

const (
	AppName  = "lumauth"
	FileName = "config.yaml"

	DefaultHelperPath      = "/usr/lib/polkit-1/polkit-agent-helper-1"
	DefaultSocketPath      = "/run/polkit/agent-helper.socket"
	DefaultLocale          = "en_US.UTF-8"
	DefaultAttemptTimeout  = 60 * time.Second
	DefaultIdentityTimeout = 2 * time.Second
	DefaultEventBuffer     = 16
	DefaultLogLevel        = "info"
)

var (
	ErrHelperMissing = errors.New("authentication helper does not exist")
	ErrInvalid       = errors.New("invalid configuration")
)

type Config struct {
	HelperPath string `yaml:"helper_path"`
	SocketPath string `yaml:"socket_path"`
	Locale     string `yaml:"locale"`
	// MaxAttempts ends a session as not authorized after this many helper
	// failures. Zero means unlimited.
	MaxAttempts int `yaml:"max_attempts"`
	// AttemptTimeout bounds one password attempt. Zero disables it.
	AttemptTimeout  time.Duration `yaml:"attempt_timeout"`
	IdentityTimeout time.Duration `yaml:"identity_timeout"`
	EventBuffer     int           `yaml:"event_buffer"`
	LogDir          string        `yaml:"log_dir"`
	LogLevel        string        `yaml:"log_level"`

	// Source is the file the values came from, empty for built-in defaults.
	Source string `yaml:"-"`
}

func Default() Config {
	return Config{
		HelperPath:      DefaultHelperPath,
		SocketPath:      DefaultSocketPath,
		Locale:          defaultLocale(),
		AttemptTimeout:  DefaultAttemptTimeout,
		IdentityTimeout: DefaultIdentityTimeout,
		EventBuffer:     DefaultEventBuffer,
		LogLevel:        DefaultLogLevel,
	}
}

func defaultLocale() string {
	for _, k := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return DefaultLocale
}

// SearchPaths lists candidate files, most specific first: user config,
// local system config, distro system config.
func SearchPaths() []string {
	var out []string
	if dir := userConfigDir(); dir != "" {
		out = append(out, filepath.Join(dir, AppName, FileName))
	}
	for _, sys := range []string{"/usr/local/etc", "/etc"} {
		if p, err := hostfs.Abs(filepath.Join(sys, AppName, FileName)); err == nil {
			out = append(out, p)
		}
	}
	return out
}

func userConfigDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return v
	}
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".config")
	}
	return ""
}

// Load reads explicit if set, otherwise the first existing file from
// SearchPaths, falling back to Default. Environment overrides apply last.
func Load(explicit string) (Config, error) {
	var (
		cfg Config
		err error
	)
	if explicit != "" {
		cfg, err = loadFile(explicit)
		if err != nil {
			return Config{}, err
		}
	} else {
		cfg = Default()
		for _, p := range SearchPaths() {
			c, err := loadFile(p)
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			if err != nil {
				return Config{}, err
			}
			cfg = c
			break
		}
	}
	cfg = cfg.withEnv().WithDefaults()
	return cfg, nil
}

func loadFile(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	if len(b) > 0 {
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
		}
	}
	cfg.Source = path
	return cfg, nil
}

func (c Config) withEnv() Config {
	if v := os.Getenv("POLKIT_AGENT_HELPER_PATH"); v != "" {
		c.HelperPath = v
	}
	if v := os.Getenv("POLKIT_AGENT_SOCKET_PATH"); v != "" {
		c.SocketPath = v
	}
	if v := os.Getenv("LUMAUTH_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	return c
}

// WithDefaults fills zero values that have no meaningful zero.
func (c Config) WithDefaults() Config {
	d := Default()
	if c.HelperPath == "" {
		c.HelperPath = d.HelperPath
	}
	if c.SocketPath == "" {
		c.SocketPath = d.SocketPath
	}
	if c.Locale == "" {
		c.Locale = d.Locale
	}
	if c.IdentityTimeout <= 0 {
		c.IdentityTimeout = d.IdentityTimeout
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = d.EventBuffer
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	return c
}

// Validate refuses configurations the agent must not start with.
func (c Config) Validate() error {
	if c.MaxAttempts < 0 {
		return fmt.Errorf("%w: max_attempts must not be negative", ErrInvalid)
	}
	if c.AttemptTimeout < 0 {
		return fmt.Errorf("%w: attempt_timeout must not be negative", ErrInvalid)
	}
	if !filepath.IsAbs(c.HelperPath) {
		return fmt.Errorf("%w: helper_path must be absolute: %s", ErrInvalid, c.HelperPath)
	}
	st, err := os.Stat(c.HelperPath)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrHelperMissing, c.HelperPath)
	}
	if st.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrHelperMissing, c.HelperPath)
	}
	return nil
}
