package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// REALTIME_ADDR is host:port of a running node, the suite is skipped when empty
	Addr      string `envconfig:"REALTIME_ADDR"`
	JWTSecret string `envconfig:"REALTIME_JWT_SECRET" default:"change-me-in-production"`
	// E2E_DEBUG_JSON dumps every frame and HTTP body
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
