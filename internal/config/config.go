package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// JWTSecret signs the identity tokens issued by the forum application.
	JWTSecret string `env:"JWT_SECRET,required"`

	// RedisURL, when set, switches the presence store from in-memory to
	// Redis. The broker stays process-local either way.
	RedisURL string `env:"REDIS_URL"`

	HistorySize     int           `env:"HISTORY_SIZE" envDefault:"100"`
	StreamKeepAlive time.Duration `env:"STREAM_KEEPALIVE" envDefault:"30s"`

	PresenceTTL           time.Duration `env:"PRESENCE_TTL" envDefault:"90s"`
	PresenceSweepInterval time.Duration `env:"PRESENCE_SWEEP_INTERVAL" envDefault:"30s"`
}

// Load reads configuration from the environment, with an optional .env file
// for local development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
