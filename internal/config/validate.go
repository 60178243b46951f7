package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"memebot/internal/media"
)

// Validate rejects configs that would start a broken bot. It is used both at
// startup and as the hot reload gate.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		add(fmt.Errorf("telegram.token: empty (set it or %s)", EnvBotToken))
	}
	for _, id := range cfg.Telegram.OwnerUserIDs {
		if id <= 0 {
			add(fmt.Errorf("telegram.owner_user_ids: invalid id %d", id))
		}
	}
	_, err := ParseDuration("telegram.poll_timeout", cfg.Telegram.PollTimeout, 0)
	add(err)

	add(validateTimezone("scheduler.timezone", cfg.Scheduler.Timezone))
	add(validateTimezone("delivery.timezone", cfg.Delivery.Timezone))

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "sqlite", "sqlite3":
	case "postgres", "postgresql", "pg":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			add(fmt.Errorf("storage.dsn: required for postgres (set it or %s)", EnvDatabaseURL))
		}
	default:
		add(fmt.Errorf("storage.driver: unknown %q", cfg.Storage.Driver))
	}
	if cfg.Storage.ConnectRetries < 0 {
		add(errors.New("storage.connect_retries: must be >= 0"))
	}
	for path, raw := range map[string]string{
		"storage.busy_timeout":      cfg.Storage.BusyTimeout,
		"storage.conn_max_lifetime": cfg.Storage.ConnMaxLifetime,
		"storage.retry_base":        cfg.Storage.RetryBase,
		"storage.retry_max_delay":   cfg.Storage.RetryMaxDelay,
		"push.timeout":              cfg.Push.Timeout,
		"broadcast.send_timeout":    cfg.Broadcast.SendTimeout,
		"metrics.read_timeout":      cfg.Metrics.ReadTimeout,
		"metrics.write_timeout":     cfg.Metrics.WriteTimeout,
		"metrics.idle_timeout":      cfg.Metrics.IdleTimeout,
	} {
		_, err := ParseDuration(path, raw, 0)
		add(err)
	}

	if cfg.Delivery.DailyCap < 0 {
		add(errors.New("delivery.daily_cap: must be >= 0"))
	}
	if s := strings.TrimSpace(cfg.Push.Schedule); s != "" {
		if _, err := cron.ParseStandard(s); err != nil {
			add(fmt.Errorf("push.schedule: %w", err))
		}
	}
	if k := strings.TrimSpace(cfg.Push.Kind); k != "" {
		if _, err := media.ParseKind(k); err != nil {
			add(fmt.Errorf("push.kind: %w", err))
		}
	}
	if cfg.Push.Enabled && !cfg.Scheduler.Enabled {
		add(errors.New("push.enabled: requires scheduler.enabled"))
	}
	if cfg.Broadcast.RatePerSec < 0 {
		add(errors.New("broadcast.rate_per_sec: must be >= 0"))
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Luck.Backend)) {
	case "", "memory":
	case "redis":
		if strings.TrimSpace(cfg.Luck.RedisURL) == "" {
			add(fmt.Errorf("luck.redis_url: required for redis (set it or %s)", EnvRedisURL))
		}
	default:
		add(fmt.Errorf("luck.backend: unknown %q", cfg.Luck.Backend))
	}
	return errors.Join(errs...)
}

func validateTimezone(path, tz string) error {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return nil
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
