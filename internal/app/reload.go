package app

import (
	"context"
	"slices"
	"strings"

	"memebot/internal/config"
	logx "memebot/pkg/logx"
)

// restartOnly lists sections whose changes are logged but not applied live.
var restartOnly = []string{"storage", "luck"}

func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// coalesce bursts: keep only the latest config
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(ctx, last, next)
			last = next
		}
	}
}

// applyConfig pushes a validated config into the running components.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	for _, s := range restartOnly {
		if slices.Contains(sections, s) {
			a.log.Warn("config section changed; restart required", logx.String("section", s))
		}
	}
	if prev != nil && prev.Telegram.Token != next.Telegram.Token {
		a.log.Warn("telegram token changed; restart required")
	}

	// target first so Apply does not warn when Telegram logging is enabled
	a.logs.SetTelegramTarget(groupLogChat(next), next.Logging.Telegram.ThreadID)
	a.logs.Apply(mapLoggingConfig(next))

	if err := a.access.Load(ctx, next.Telegram.OwnerUserIDs); err != nil {
		a.log.Warn("owner reload failed; keeping previous lists", logx.Err(err))
	}

	a.delivery.Apply(mapDeliveryConfig(next))
	if bc, err := mapBroadcastConfig(next); err != nil {
		a.log.Warn("invalid broadcast config; keeping previous", logx.Err(err))
	} else {
		a.broadcast.Apply(bc)
	}

	a.sched.Apply(mapSchedulerConfig(next))
	if pc, err := mapPushConfig(next); err != nil {
		a.log.Warn("invalid push config; keeping previous", logx.Err(err))
	} else if err := a.push.Register(pc); err != nil {
		a.log.Warn("push reschedule failed", logx.Err(err))
	}

	if mc, err := mapMetricsConfig(next); err != nil {
		a.log.Warn("invalid metrics config; keeping previous", logx.Err(err))
	} else {
		a.metrics.Reconfigure(ctx, mc)
	}

	a.log.Info("config reloaded", fields...)
}
