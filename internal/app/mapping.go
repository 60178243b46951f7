package app

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"memebot/internal/broadcast"
	"memebot/internal/config"
	"memebot/internal/delivery"
	"memebot/internal/media"
	"memebot/internal/observability/metrics"
	"memebot/internal/push"
	"memebot/internal/storage"
	"memebot/internal/task/scheduler"
	logx "memebot/pkg/logx"
)

// validateConfig gates startup and hot reload: the file rules plus every
// mapping the running components will apply.
func validateConfig(_ context.Context, cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	_, errStorage := mapStorageConfig(cfg)
	_, errPush := mapPushConfig(cfg)
	_, errBroadcast := mapBroadcastConfig(cfg)
	_, errMetrics := mapMetricsConfig(cfg)
	return errors.Join(errStorage, errPush, errBroadcast, errMetrics)
}

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

// groupLogChat parses telegram.group_log; zero clears the target.
func groupLogChat(cfg *config.Config) int64 {
	raw := strings.TrimSpace(cfg.Telegram.GroupLog)
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := config.ParseDuration("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	lifetime, err := config.ParseDuration("storage.conn_max_lifetime", sc.ConnMaxLifetime, 0)
	if err != nil {
		return storage.Config{}, err
	}
	base, err := config.ParseDuration("storage.retry_base", sc.RetryBase, 0)
	if err != nil {
		return storage.Config{}, err
	}
	maxDelay, err := config.ParseDuration("storage.retry_max_delay", sc.RetryMaxDelay, 0)
	if err != nil {
		return storage.Config{}, err
	}
	path := strings.TrimSpace(sc.Path)
	if path == "" {
		path = "./memebot.db"
	}
	return storage.Config{
		Driver:          strings.TrimSpace(sc.Driver),
		Path:            path,
		DSN:             strings.TrimSpace(sc.DSN),
		BusyTimeout:     busy,
		MaxOpenConns:    sc.MaxOpenConns,
		MaxIdleConns:    sc.MaxIdleConns,
		ConnMaxLifetime: lifetime,
		ConnectRetries:  sc.ConnectRetries,
		RetryBaseDelay:  base,
		RetryMaxDelay:   maxDelay,
	}, nil
}

// timezone is the zone of the quota day and the push schedule:
// delivery.timezone, then scheduler.timezone, then UTC.
func timezone(cfg *config.Config) string {
	for _, tz := range []string{cfg.Delivery.Timezone, cfg.Scheduler.Timezone} {
		if tz = strings.TrimSpace(tz); tz != "" {
			return tz
		}
	}
	return "UTC"
}

func location(cfg *config.Config) *time.Location {
	loc, err := time.LoadLocation(timezone(cfg))
	if err != nil {
		return time.UTC
	}
	return loc
}

func mapDeliveryConfig(cfg *config.Config) delivery.Config {
	return delivery.Config{DailyCap: cfg.Delivery.DailyCap, Location: location(cfg)}
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{Enabled: cfg.Scheduler.Enabled, Timezone: timezone(cfg)}
}

func mapPushConfig(cfg *config.Config) (push.Config, error) {
	timeout, err := config.ParseDuration("push.timeout", cfg.Push.Timeout, time.Hour)
	if err != nil {
		return push.Config{}, err
	}
	pc := push.Config{
		Enabled:  cfg.Push.Enabled,
		Schedule: strings.TrimSpace(cfg.Push.Schedule),
		Timeout:  timeout,
	}
	if raw := strings.TrimSpace(cfg.Push.Kind); raw != "" {
		k, err := media.ParseKind(raw)
		if err != nil {
			return push.Config{}, err
		}
		pc.Kind = k
	}
	return pc, nil
}

func mapBroadcastConfig(cfg *config.Config) (broadcast.Config, error) {
	timeout, err := config.ParseDuration("broadcast.send_timeout", cfg.Broadcast.SendTimeout, 10*time.Second)
	if err != nil {
		return broadcast.Config{}, err
	}
	return broadcast.Config{RatePerSec: cfg.Broadcast.RatePerSec, SendTimeout: timeout}, nil
}

func mapMetricsConfig(cfg *config.Config) (metrics.ServerConfig, error) {
	mc := cfg.Metrics
	read, err := config.ParseDuration("metrics.read_timeout", mc.ReadTimeout, 5*time.Second)
	if err != nil {
		return metrics.ServerConfig{}, err
	}
	write, err := config.ParseDuration("metrics.write_timeout", mc.WriteTimeout, 10*time.Second)
	if err != nil {
		return metrics.ServerConfig{}, err
	}
	idle, err := config.ParseDuration("metrics.idle_timeout", mc.IdleTimeout, 60*time.Second)
	if err != nil {
		return metrics.ServerConfig{}, err
	}
	return metrics.ServerConfig{
		Enabled:       mc.Enabled,
		Addr:          strings.TrimSpace(mc.Addr),
		Path:          strings.TrimSpace(mc.Path),
		Token:         mc.Token,
		AllowInsecure: mc.AllowInsecure,
		Pprof:         mc.Pprof,
		PprofPrefix:   strings.TrimSpace(mc.PprofPrefix),
		ReadTimeout:   read,
		WriteTimeout:  write,
		IdleTimeout:   idle,
	}, nil
}
