// Package config loads server configuration from the environment.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything the server needs at startup.
type Config struct {
	Port     string
	MongoURI string

	JWTSecret string
	JWTTTL    time.Duration

	// Requests per minute allowed on register/login, per email or IP.
	RateLimitRPM int

	// Websocket transport limits.
	WSReadLimit     int64
	WSWriteDeadline time.Duration
}

// Load reads configuration from environment variables, applying defaults
// for everything except MONGODB_URI and JWT_SECRET, which are required.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("JWT_TTL_HOURS", 24)
	v.SetDefault("RATE_LIMIT_RPM", 10)
	v.SetDefault("WS_READ_LIMIT_BYTES", 64*1024)
	v.SetDefault("WS_WRITE_DEADLINE_SECONDS", 10)

	cfg := &Config{
		Port:            v.GetString("PORT"),
		MongoURI:        v.GetString("MONGODB_URI"),
		JWTSecret:       v.GetString("JWT_SECRET"),
		JWTTTL:          time.Duration(v.GetInt("JWT_TTL_HOURS")) * time.Hour,
		RateLimitRPM:    v.GetInt("RATE_LIMIT_RPM"),
		WSReadLimit:     v.GetInt64("WS_READ_LIMIT_BYTES"),
		WSWriteDeadline: time.Duration(v.GetInt("WS_WRITE_DEADLINE_SECONDS")) * time.Second,
	}

	if cfg.MongoURI == "" {
		return nil, errors.New("MONGODB_URI must be set")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET must be set")
	}
	return cfg, nil
}
