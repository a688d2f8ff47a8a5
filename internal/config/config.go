// Package config loads the client configuration from the environment.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

// ProviderCredentials is one social provider's application registration.
type ProviderCredentials struct {
	ClientID    string   `env:"CLIENT_ID"`
	RedirectURL string   `env:"REDIRECT_URL"`
	Scopes      []string `env:"SCOPES" envSeparator:","`
}

// Config is the environment-driven configuration of the session client.
type Config struct {
	BackendURL     string        `env:"AUTH_BACKEND_URL" envDefault:"http://localhost:8080"`
	RequestTimeout time.Duration `env:"AUTH_REQUEST_TIMEOUT" envDefault:"15s"`

	// RedisAddr enables the durable Redis credential store; empty keeps the
	// in-memory store.
	RedisAddr      string `env:"AUTH_REDIS_ADDR"`
	RedisKeyPrefix string `env:"AUTH_REDIS_KEY_PREFIX" envDefault:"auth"`

	// RefreshSkew refreshes the access token proactively when its expiry is
	// closer than this; zero disables the check.
	RefreshSkew time.Duration `env:"AUTH_REFRESH_SKEW" envDefault:"30s"`

	// AttemptTTL bounds how long a started social-login attempt stays
	// exchangeable.
	AttemptTTL time.Duration `env:"AUTH_ATTEMPT_TTL" envDefault:"10m"`

	Google ProviderCredentials `envPrefix:"AUTH_GOOGLE_"`
	GitHub ProviderCredentials `envPrefix:"AUTH_GITHUB_"`
	VK     ProviderCredentials `envPrefix:"AUTH_VK_"`
}

// Load parses the configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "[config.Load] env.Parse")
	}
	return cfg, nil
}
