package config

import (
	"strings"

	"github.com/caarlos0/env/v9"
)

type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	DBDriver               string `env:"DB_DRIVER" envDefault:"mysql"` // mysql, postgres or sqlite
	DBUser                 string `env:"DB_USER"`
	DBPassword             string `env:"DB_PASSWORD"`
	DBHost                 string `env:"DB_HOST"` // e.g. tcp(host:3306) or unix(/cloudsql/instance)
	DBName                 string `env:"DB_NAME" envDefault:"referral_system"`
	DBPort                 string `env:"DB_PORT"`
	DBSSLMode              string `env:"DB_SSLMODE" envDefault:"disable"`
	InstanceConnectionName string `env:"INSTANCE_CONNECTION_NAME"`
	SQLitePath             string `env:"SQLITE_PATH" envDefault:"referral.db"`

	MaxTreeDepth    int `env:"MAX_TREE_DEPTH" envDefault:"64"`
	MaxParticipants int `env:"MAX_PARTICIPANTS" envDefault:"0"`
	RegisterRetries int `env:"REGISTER_RETRIES" envDefault:"2"`

	FirebaseProjectID string `env:"FIREBASE_PROJECT_ID"`
	StorageBucket     string `env:"STORAGE_BUCKET"`
	CORSOrigins       string `env:"CORS_ORIGINS" envDefault:"http://localhost:3000"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if cfg.DBPort == "" {
		switch cfg.DBDriver {
		case "postgres":
			cfg.DBPort = "5432"
		default:
			cfg.DBPort = "3306"
		}
	}
	return &cfg, nil
}

// AllowedOrigins splits CORS_ORIGINS on commas, dropping blanks.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
