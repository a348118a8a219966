// Package config loads the process configuration from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Store backend names accepted by STORE_BACKEND.
const (
	BackendMongo     = "mongo"
	BackendDatastore = "datastore"
	BackendMemory    = "memory"
)

// OAuthProvider holds one provider's client registration.
type OAuthProvider struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
}

// Config is the full process configuration.
type Config struct {
	Port    int    `env:"PORT" envDefault:"8000"`
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8000"`

	// SessionSecret signs the session tokens. The default exists only so
	// local development works out of the box.
	SessionSecret string `env:"SESSION_SECRET" envDefault:"dev-only-session-secret"`

	// StoreBackend selects the identity store. Defaults to mongo when
	// MONGODB_URI is set, memory otherwise.
	StoreBackend string `env:"STORE_BACKEND"`

	MongoURI      string `env:"MONGODB_URI"`
	MongoDatabase string `env:"MONGODB_DATABASE" envDefault:"authsite"`

	DatastoreProjectID   string `env:"DATASTORE_PROJECT_ID"`
	DatastoreNamespace   string `env:"DATASTORE_NAMESPACE"`
	DatastoreCredentials string `env:"DATASTORE_CREDENTIALS_FILE"`

	Google OAuthProvider `envPrefix:"GOOGLE_"`
	Github OAuthProvider `envPrefix:"GITHUB_"`

	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // text or json
}

// Load reads and validates configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if cfg.StoreBackend == "" {
		if cfg.MongoURI != "" {
			cfg.StoreBackend = BackendMongo
		} else {
			cfg.StoreBackend = BackendMemory
		}
	}

	switch cfg.StoreBackend {
	case BackendMongo:
		if cfg.MongoURI == "" {
			return nil, fmt.Errorf("store backend %q requires MONGODB_URI", cfg.StoreBackend)
		}
	case BackendDatastore:
		if cfg.DatastoreProjectID == "" {
			return nil, fmt.Errorf("store backend %q requires DATASTORE_PROJECT_ID", cfg.StoreBackend)
		}
	case BackendMemory:
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	return cfg, nil
}

// CallbackURL returns the OAuth callback for a provider, mirroring the
// provider's registered redirect URI.
func (c *Config) CallbackURL(provider string) string {
	return fmt.Sprintf("%s/auth/%s/profile", c.BaseURL, provider)
}
