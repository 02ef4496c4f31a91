package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if got := cfg.Addr(); got != "127.0.0.1:3000" {
		t.Errorf("Addr() = %q, want 127.0.0.1:3000", got)
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "toml",
			file: "server.toml",
			content: `
address = "0.0.0.0"
port = 8080
backlog = 64
root = "/srv/www"
read_timeout = "2s"
accept_poll = "250ms"
max_conns = 100

[mime_types]
md = "text/markdown"
`,
		},
		{
			name: "yaml",
			file: "server.yaml",
			content: `
address: 0.0.0.0
port: 8080
backlog: 64
root: /srv/www
read_timeout: 2s
accept_poll: 250ms
max_conns: 100
mime_types:
  md: text/markdown
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeFile(t, tt.file, tt.content))
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.Addr() != "0.0.0.0:8080" {
				t.Errorf("Addr() = %q", cfg.Addr())
			}
			if cfg.Backlog != 64 || cfg.Root != "/srv/www" || cfg.MaxConns != 100 {
				t.Errorf("Load() = %+v", cfg)
			}
			if cfg.ReadTimeout.Std() != 2*time.Second {
				t.Errorf("ReadTimeout = %v, want 2s", cfg.ReadTimeout.Std())
			}
			if cfg.AcceptPoll.Std() != 250*time.Millisecond {
				t.Errorf("AcceptPoll = %v, want 250ms", cfg.AcceptPoll.Std())
			}
			// Unset keys keep their defaults.
			if cfg.WriteTimeout != Default().WriteTimeout {
				t.Errorf("WriteTimeout = %v, want default", cfg.WriteTimeout.Std())
			}
			if cfg.MimeTypes["md"] != "text/markdown" {
				t.Errorf("MimeTypes = %v", cfg.MimeTypes)
			}
			if err := cfg.Validate(); err != nil {
				t.Errorf("Validate() = %v", err)
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{name: "missing file", path: func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.toml") }},
		{name: "unknown extension", path: func(t *testing.T) string { return writeFile(t, "server.ini", "port=1") }},
		{name: "bad toml", path: func(t *testing.T) string { return writeFile(t, "server.toml", "port = [") }},
		{name: "bad duration", path: func(t *testing.T) string { return writeFile(t, "server.yaml", "read_timeout: soon") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(tt.path(t)); err == nil {
				t.Error("Load() error = nil, want error")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "hostname address", mutate: func(c *Config) { c.Address = "localhost" }},
		{name: "negative port", mutate: func(c *Config) { c.Port = -1 }},
		{name: "port too large", mutate: func(c *Config) { c.Port = 70000 }},
		{name: "zero backlog", mutate: func(c *Config) { c.Backlog = 0 }},
		{name: "empty root", mutate: func(c *Config) { c.Root = "" }},
		{name: "negative max conns", mutate: func(c *Config) { c.MaxConns = -1 }},
		{name: "zero read timeout", mutate: func(c *Config) { c.ReadTimeout = 0 }},
		{name: "zero accept poll", mutate: func(c *Config) { c.AcceptPoll = 0 }},
		{name: "negative grace", mutate: func(c *Config) { c.ShutdownGrace = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() = %v, want ErrInvalid", err)
			}
		})
	}
}
