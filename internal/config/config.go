package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const envPrefix = "TOLLGATE_"

type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	GRPCAddr string `env:"GRPC_ADDR" envDefault:":9090"`

	Env      string `env:"ENV" envDefault:"dev"`      // "dev" | "prod"
	Store    string `env:"STORE" envDefault:"sqlite"` // "sqlite" | "memory"
	DBPath   string `env:"DB_PATH" envDefault:"./data/tollgate.db"`
	SeedFile string `env:"SEED_FILE"` // YAML assets created at startup in dev

	// FactoryAddress is the deployer address module and asset addresses
	// are derived from.
	FactoryAddress string `env:"FACTORY_ADDRESS" envDefault:"0x00000000000000000000000000000000000f4c70"`

	AuthzMode       string `env:"AUTHZ_MODE" envDefault:"enforce"` // enforce | shadow | disabled
	AuthzPolicyPath string `env:"AUTHZ_POLICY_PATH"`

	// JWTSecret enables bearer-token callers. Empty means the caller is
	// taken from X-Caller-Address, which is only honoured in dev.
	JWTSecret string `env:"JWT_SECRET"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"50"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"100"`

	// Decision audit retention
	DecisionRetentionDays int `env:"DECISION_RETENTION_DAYS" envDefault:"30"` // 0 = keep forever
	PruneIntervalHours    int `env:"PRUNE_INTERVAL_HOURS" envDefault:"6"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// FromEnv reads TOLLGATE_* variables. Malformed values are an error;
// unknown enum values fall back to their defaults, except ENV, which falls
// back to prod.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	if c.Env != "dev" && c.Env != "prod" {
		// A typo must not switch on dev-only behavior.
		c.Env = "prod"
	}

	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	if c.Store != "memory" {
		c.Store = "sqlite"
	}

	if c.DecisionRetentionDays < 0 {
		c.DecisionRetentionDays = 0
	}
	if c.PruneIntervalHours <= 0 {
		c.PruneIntervalHours = 6
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 1
	}
}

func (c Config) IsDev() bool { return c.Env == "dev" }
