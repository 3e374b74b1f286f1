package platform

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Transport selects the channel implementation backing the shell.
const (
	TransportInProc = "inproc"
	TransportNATS   = "nats"
)

// HTTPServerConfig holds HTTP server tunables.
type HTTPServerConfig struct {
	Port         int           `env:"PORT" envDefault:"8080"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"0"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"0"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT" envDefault:"0"`
	SessionKey   string        `env:"SESSION_KEY" envDefault:"dev-only-change-me"`
}

// EmbeddedServerConfig holds options for the embedded NATS server that backs
// the cross-process channel.
type EmbeddedServerConfig struct {
	InProcess     bool   `env:"IN_PROCESS" envDefault:"true"`
	EnableLogging bool   `env:"LOGGING" envDefault:"false"`
	LeafNodeURL   string `env:"LEAF_URL"`   // empty disables leaf node
	LeafNodeCreds string `env:"LEAF_CREDS"` // optional, only used with LeafNodeURL
}

// AppConfig contains the configuration for the shell process.
type AppConfig struct {
	// Process names this shell instance; panel addresses are
	// "<process>.<panel>".
	Process string `env:"PROCESS" envDefault:"main"`
	// Transport picks the channel: "inproc" (default) or "nats".
	Transport string `env:"TRANSPORT" envDefault:"inproc"`
	// Headless disables the HTTP bridge when true.
	Headless bool `env:"HEADLESS" envDefault:"false"`

	HTTPSrvCfg HTTPServerConfig     `envPrefix:"HTTP_"`
	NatsCfg    EmbeddedServerConfig `envPrefix:"NATS_"`
}

// LoadAppConfig reads configuration from PANELBUS_* environment variables.
func LoadAppConfig() (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "PANELBUS_"}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Transport != TransportInProc && cfg.Transport != TransportNATS {
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
	return cfg, nil
}
