package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override secrets in the file.
const (
	EnvBotToken    = "BOT_TOKEN"
	EnvDatabaseURL = "DATABASE_URL"
	EnvRedisURL    = "REDIS_URL"
)

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// ApplyEnv fills secrets from the environment. Non-empty variables override
// the file so tokens can stay out of version control.
func ApplyEnv(cfg *Config) {
	applyEnv(cfg, os.LookupEnv)
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if cfg == nil {
		return
	}
	get := func(k string) string {
		v, ok := lookup(k)
		if !ok {
			return ""
		}
		return strings.TrimSpace(v)
	}
	if v := get(EnvBotToken); v != "" {
		cfg.Telegram.Token = v
	}
	if v := get(EnvDatabaseURL); v != "" {
		cfg.Storage.DSN = v
		if strings.TrimSpace(cfg.Storage.Driver) == "" {
			cfg.Storage.Driver = "postgres"
		}
	}
	if v := get(EnvRedisURL); v != "" {
		cfg.Luck.RedisURL = v
	}
}
