// Package config holds the immutable server configuration and loads it from
// TOML or YAML files.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every error returned from Validate.
var ErrInvalid = errors.New("invalid config")

// Duration is a time.Duration that reads and writes as a string such as "800ms".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler, used by the TOML decoder.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalYAML accepts the same string form as UnmarshalText.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.UnmarshalText([]byte(value.Value))
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is built once before the listener starts and only read afterwards.
type Config struct {
	// Address is the local IP address to bind, e.g. "127.0.0.1".
	Address string `toml:"address" yaml:"address"`
	// Port to bind. 0 picks an ephemeral port.
	Port int `toml:"port" yaml:"port"`
	// Backlog is the maximum queue length of not-yet-accepted connections.
	Backlog int `toml:"backlog" yaml:"backlog"`
	// Root is the content root directory all served files live under.
	Root string `toml:"root" yaml:"root"`

	// IdleTimeout bounds the whole lifetime of an accepted connection.
	IdleTimeout Duration `toml:"idle_timeout" yaml:"idle_timeout"`
	// ReadTimeout bounds the single request read.
	ReadTimeout Duration `toml:"read_timeout" yaml:"read_timeout"`
	// WriteTimeout bounds writing the response.
	WriteTimeout Duration `toml:"write_timeout" yaml:"write_timeout"`
	// AcceptPoll is how long one accept call may block before the accept
	// loop re-checks whether the server is still running.
	AcceptPoll Duration `toml:"accept_poll" yaml:"accept_poll"`
	// ShutdownGrace is how long Stop waits for in-flight requests.
	ShutdownGrace Duration `toml:"shutdown_grace" yaml:"shutdown_grace"`

	// MaxConns caps concurrently handled connections. 0 means unbounded.
	MaxConns int `toml:"max_conns" yaml:"max_conns"`
	// MimeTypes adds to or overrides the built-in extension table.
	MimeTypes map[string]string `toml:"mime_types" yaml:"mime_types"`
}

// Default returns the configuration used when no file or flag overrides it.
func Default() Config {
	return Config{
		Address:       "127.0.0.1",
		Port:          3000,
		Backlog:       10,
		Root:          ".",
		IdleTimeout:   Duration(800 * time.Second),
		ReadTimeout:   Duration(30 * time.Second),
		WriteTimeout:  Duration(30 * time.Second),
		AcceptPoll:    Duration(800 * time.Millisecond),
		ShutdownGrace: Duration(5 * time.Second),
	}
}

// Load reads path on top of Default. The format is chosen by extension:
// .toml, or .yaml/.yml.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config format %q", ext)
	}
	return cfg, nil
}

// Validate reports the first problem found in c.
func (c Config) Validate() error {
	if c.Address != "" && net.ParseIP(c.Address) == nil {
		return fmt.Errorf("%w: address %q is not an IP address", ErrInvalid, c.Address)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalid, c.Port)
	}
	if c.Backlog < 1 {
		return fmt.Errorf("%w: backlog must be positive, got %d", ErrInvalid, c.Backlog)
	}
	if c.Root == "" {
		return fmt.Errorf("%w: root is empty", ErrInvalid)
	}
	if c.MaxConns < 0 {
		return fmt.Errorf("%w: max_conns must not be negative", ErrInvalid)
	}
	for _, d := range []struct {
		name string
		v    Duration
	}{
		{"idle_timeout", c.IdleTimeout},
		{"read_timeout", c.ReadTimeout},
		{"write_timeout", c.WriteTimeout},
		{"accept_poll", c.AcceptPoll},
	} {
		if d.v <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalid, d.name)
		}
	}
	if c.ShutdownGrace < 0 {
		return fmt.Errorf("%w: shutdown_grace must not be negative", ErrInvalid)
	}
	return nil
}

// Addr returns the host:port pair to bind.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
}

// AbsRoot returns Root as an absolute, cleaned path.
func (c Config) AbsRoot() (string, error) {
	abs, err := filepath.Abs(c.Root)
	if err != nil {
		return "", fmt.Errorf("resolve root %q: %w", c.Root, err)
	}
	return abs, nil
}
