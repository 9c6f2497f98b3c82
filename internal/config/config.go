// Package config loads the service configuration from the environment.
package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config is the full service configuration, populated from environment
// variables with sensible defaults for local development.
type Config struct {
	Environment string `env:"ENV" envDefault:"development"`

	HTTP struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
		RequestTimeout  time.Duration `env:"HTTP_REQUEST_TIMEOUT" envDefault:"60s"`
	}

	Logging struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}

	Optimization struct {
		// MaxIterations is the default round budget for jobs that do not
		// specify one.
		MaxIterations int `env:"OPT_MAX_ITERATIONS" envDefault:"50"`
		// InitialDesign is the default initial design size.
		InitialDesign int `env:"OPT_INITIAL_DESIGN" envDefault:"5"`
		// BatchSize is the default suggestion batch size.
		BatchSize int `env:"OPT_BATCH_SIZE" envDefault:"1"`
		// NumCores bounds concurrent objective evaluations per job.
		NumCores int `env:"OPT_NUM_CORES" envDefault:"4"`
		// RandomSeed fixes job randomness when non-zero.
		RandomSeed int64 `env:"OPT_RANDOM_SEED" envDefault:"0"`
	}
}

// Load parses the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if cfg.Environment == "development" && cfg.Logging.Level == "" {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}
