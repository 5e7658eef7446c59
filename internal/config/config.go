package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Settings is the immutable process configuration, built once at startup and
// passed into each component. All credentials live here; nothing reads the
// environment after Load returns.
type Settings struct {
	// Meta platform credentials.
	VerifyToken     string `env:"VERIFY_TOKEN,required"`
	AppSecret       string `env:"APP_SECRET,required"`
	PageAccessToken string `env:"PAGE_ACCESS_TOKEN,required"`
	BusinessID      string `env:"BUSINESS_ID,required"`
	GraphAPIVersion string `env:"GRAPH_API_VERSION" envDefault:"v24.0"`

	// Servers.
	Listen      string `env:"LISTEN" envDefault:":8080"`
	AdminListen string `env:"ADMIN_LISTEN" envDefault:"127.0.0.1:8081"`
	// AdminAPIKey is the bearer token for the read-only admin API.
	// If empty, the admin API is not started.
	AdminAPIKey string `env:"ADMIN_API_KEY"`

	// Storage.
	DBPath string `env:"DB_PATH" envDefault:"data/instagate.db"`

	// Auto-reply.
	ReplyText     string        `env:"REPLY_TEXT" envDefault:"Salam! Məlumat üçün + yazın, sizə ətraflı göndərək."`
	TemplatesPath string        `env:"TEMPLATES_PATH"`
	SendTimeout   time.Duration `env:"SEND_TIMEOUT" envDefault:"20s"`

	LogLevel    string `env:"LOG_LEVEL" envDefault:"INFO"`
	MaxBodySize int64  `env:"MAX_BODY_SIZE" envDefault:"1048576"`
}

// Load reads an optional .env file and parses Settings from the environment.
// A missing env file is not an error; missing required variables are.
func Load(envFile string) (*Settings, error) {
	if envFile != "" {
		// Real deployments set variables directly; .env is a dev convenience.
		_ = godotenv.Load(envFile)
	}

	cfg := &Settings{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	if cfg.MaxBodySize <= 0 {
		return nil, fmt.Errorf("MAX_BODY_SIZE must be positive")
	}
	if cfg.SendTimeout <= 0 {
		return nil, fmt.Errorf("SEND_TIMEOUT must be positive")
	}
	return cfg, nil
}
