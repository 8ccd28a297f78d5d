// Package config loads nativebridge settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/tliron/commonlog"
)

// Config holds process-level settings shared by the commands.
type Config struct {
	// Platform is the platform a host reports (ios, android, ...).
	Platform string `env:"NATIVEBRIDGE_PLATFORM" envDefault:"ios"`
	// Manifest is a nativebridge.toml path or directory. Empty means search
	// upward from the working directory.
	Manifest string `env:"NATIVEBRIDGE_MANIFEST"`
	// HostAddr is where nbhost listens and nbctl connects.
	HostAddr string `env:"NATIVEBRIDGE_HOST_ADDR" envDefault:"127.0.0.1:7420"`
	// Allow restricts the refs a host exposes. Empty allows all.
	Allow []string `env:"NATIVEBRIDGE_ALLOW" envSeparator:","`
	// Deny hides refs from a host.
	Deny []string `env:"NATIVEBRIDGE_DENY" envSeparator:","`
	// ResolveTimeout bounds each remote resolve.
	ResolveTimeout time.Duration `env:"NATIVEBRIDGE_RESOLVE_TIMEOUT" envDefault:"5s"`
	// HandleTTL is how long orphaned host handles survive.
	HandleTTL time.Duration `env:"NATIVEBRIDGE_HANDLE_TTL" envDefault:"30m"`
	// Verbosity is the commonlog verbosity (0 = errors and warnings).
	Verbosity int `env:"NATIVEBRIDGE_VERBOSITY" envDefault:"0"`
	// LogFile sends logs to a file instead of stderr.
	LogFile string `env:"NATIVEBRIDGE_LOG_FILE"`
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.ResolveTimeout <= 0 {
		return Config{}, fmt.Errorf("NATIVEBRIDGE_RESOLVE_TIMEOUT must be positive, got %s", cfg.ResolveTimeout)
	}
	if cfg.HandleTTL <= 0 {
		return Config{}, fmt.Errorf("NATIVEBRIDGE_HANDLE_TTL must be positive, got %s", cfg.HandleTTL)
	}
	return cfg, nil
}

// ConfigureLogging applies Verbosity and LogFile to commonlog. The caller
// must import a commonlog backend.
func (c Config) ConfigureLogging() {
	var path *string
	if c.LogFile != "" {
		path = &c.LogFile
	}
	commonlog.Configure(c.Verbosity, path)
}

// SweepInterval is how often a host sweeps orphaned handles.
func (c Config) SweepInterval() time.Duration {
	if i := c.HandleTTL / 6; i > time.Second {
		return i
	}
	return time.Second
}
