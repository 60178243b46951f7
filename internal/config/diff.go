package config

import (
	"reflect"
	"sort"
	"strings"

	logx "memebot/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections and safe
// structured attrs for logging. Secrets (tokens, DSNs, redis urls) are never
// included; only whether they are set.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 24)

	// Telegram (never log token)
	oT, nT := oldCfg.Telegram, newCfg.Telegram
	if strings.TrimSpace(oT.PollTimeout) != strings.TrimSpace(nT.PollTimeout) ||
		!reflect.DeepEqual(oT.OwnerUserIDs, nT.OwnerUserIDs) ||
		strings.TrimSpace(oT.GroupLog) != strings.TrimSpace(nT.GroupLog) ||
		oT.Token != nT.Token {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(nT.PollTimeout)),
			logx.Int("telegram.owner_count", len(nT.OwnerUserIDs)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(nT.GroupLog) != ""),
			logx.Bool("telegram.token_changed", oT.Token != nT.Token),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
		)
	}

	// Storage changes only take effect after restart.
	oS, nS := oldCfg.Storage, newCfg.Storage
	if oS != nS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
			logx.Bool("storage.dsn_set", strings.TrimSpace(nS.DSN) != ""),
			logx.Bool("storage.restart_required", true),
		)
	}

	if oldCfg.Delivery != newCfg.Delivery {
		changed = append(changed, "delivery")
		attrs = append(attrs,
			logx.Int("delivery.daily_cap", newCfg.Delivery.DailyCap),
			logx.String("delivery.timezone", strings.TrimSpace(newCfg.Delivery.Timezone)),
		)
	}

	if oldCfg.Push != newCfg.Push {
		changed = append(changed, "push")
		attrs = append(attrs,
			logx.Bool("push.enabled", newCfg.Push.Enabled),
			logx.String("push.schedule", strings.TrimSpace(newCfg.Push.Schedule)),
			logx.String("push.kind", strings.TrimSpace(newCfg.Push.Kind)),
		)
	}

	if oldCfg.Broadcast != newCfg.Broadcast {
		changed = append(changed, "broadcast")
		attrs = append(attrs,
			logx.Int("broadcast.rate_per_sec", newCfg.Broadcast.RatePerSec),
			logx.String("broadcast.send_timeout", strings.TrimSpace(newCfg.Broadcast.SendTimeout)),
		)
	}

	// Luck backend changes only take effect after restart.
	if oldCfg.Luck != newCfg.Luck {
		changed = append(changed, "luck")
		attrs = append(attrs,
			logx.String("luck.backend", strings.TrimSpace(newCfg.Luck.Backend)),
			logx.Bool("luck.redis_url_set", strings.TrimSpace(newCfg.Luck.RedisURL) != ""),
		)
	}

	// Metrics (never log token)
	if oldCfg.Metrics != newCfg.Metrics {
		changed = append(changed, "metrics")
		attrs = append(attrs,
			logx.Bool("metrics.enabled", newCfg.Metrics.Enabled),
			logx.String("metrics.addr", strings.TrimSpace(newCfg.Metrics.Addr)),
			logx.Bool("metrics.token_set", strings.TrimSpace(newCfg.Metrics.Token) != ""),
			logx.Bool("metrics.pprof", newCfg.Metrics.Pprof),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
