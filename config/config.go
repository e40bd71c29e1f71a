package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the immutable application configuration. It is parsed once in
// main and injected into each component; nothing reads the environment
// ambiently after startup.
type Config struct {
	Port string `env:"PORT" envDefault:"8080"`
	Prod bool   `env:"PROD" envDefault:"false"`

	// HMAC key for guest session tokens and the cookie session store
	SessionKey string `env:"SESSION_KEY" envDefault:"dev-only-session-key"`

	RedisURL string `env:"REDIS_URL" envDefault:"localhost:6379"`

	// Lifecycle policy
	RoomTTL       time.Duration `env:"ROOM_TTL" envDefault:"12h"`
	GuestTTL      time.Duration `env:"GUEST_TTL" envDefault:"24h"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"5m"`
	MinCapacity   int           `env:"MIN_ROOM_CAPACITY" envDefault:"2"`
	MaxCapacity   int           `env:"MAX_ROOM_CAPACITY" envDefault:"5"`
	CodeAttempts  int           `env:"CODE_ATTEMPTS" envDefault:"10"`

	// Base URL of the external highlight-extraction service; empty disables
	// the completion trigger
	HighlightsURL string `env:"HIGHLIGHTS_URL"`
	// Shared secret the media pipeline presents on the internal callback
	PipelineToken string `env:"PIPELINE_TOKEN"`

	RateLimitPerSecond int `env:"RATE_LIMIT_PER_SECOND" envDefault:"20"`
}

// Load parses the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
