package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	goredis "github.com/redis/go-redis/v9"

	"memebot/internal/access"
	"memebot/internal/bot"
	"memebot/internal/broadcast"
	"memebot/internal/config"
	"memebot/internal/delivery"
	"memebot/internal/eventbus"
	"memebot/internal/feedback"
	"memebot/internal/luck"
	"memebot/internal/observability/metrics"
	"memebot/internal/push"
	rtsup "memebot/internal/runtime/supervisor"
	"memebot/internal/storage"
	"memebot/internal/task/scheduler"
	kit "memebot/internal/transport"
	telegram "memebot/internal/transport/telegram/adapter"
	"memebot/internal/transport/telegram/router"
	logx "memebot/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store   *storage.Store
	redis   *goredis.Client
	adapter kit.Adapter

	access    *access.Service
	delivery  *delivery.Service
	broadcast *broadcast.Dispatcher
	sched     *scheduler.Service
	push      *push.Trigger
	metrics   *metrics.Server

	cmdm *router.CommandManager

	updates chan kit.Update
}

// New loads the config and builds every component. Nothing runs until Start.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfgm.SetValidator(validateConfig)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	pollTimeout, err := config.ParseDuration("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: pollTimeout}, bootLog)
	if err != nil {
		return nil, err
	}

	// Bootstrap with Telegram logging off, set the target, then apply the
	// final config so Apply does not warn about a missing target.
	logCfg := mapLoggingConfig(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootCfg, ad)
	logSvc.SetTelegramTarget(groupLogChat(cfg), cfg.Logging.Telegram.ThreadID)
	logSvc.Apply(logCfg)
	log = log.With(logx.String("comp", "app"))

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     eventbus.New(),
		adapter: ad,
		updates: make(chan kit.Update, 256),
	}
	if err := a.build(ctx, cfg); err != nil {
		a.closeResources()
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, cfg *config.Config) error {
	log := a.log
	m := metrics.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return err
	}
	st, err := storage.Open(ctx, sc, log)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	a.store = st
	log.Info("storage ready", logx.String("dialect", st.Dialect()))

	a.access = access.New(st, log)
	if err := a.access.Load(ctx, cfg.Telegram.OwnerUserIDs); err != nil {
		return err
	}

	a.delivery = delivery.New(mapDeliveryConfig(cfg), delivery.Deps{
		Store:   st,
		Access:  a.access,
		Metrics: m,
		Bus:     a.bus,
		Log:     log,
	})
	fb := feedback.New(st, m, a.bus, log)

	cache, err := a.luckCache(ctx, cfg)
	if err != nil {
		return err
	}
	lk := luck.NewService(cache, location(cfg), log)

	bcfg, err := mapBroadcastConfig(cfg)
	if err != nil {
		return err
	}
	a.broadcast = broadcast.New(bcfg, broadcast.Deps{
		Adapter:    a.adapter,
		Recipients: st,
		Metrics:    m,
		Bus:        a.bus,
		Log:        log,
	})

	a.sched = scheduler.New(mapSchedulerConfig(cfg), log.With(logx.String("comp", "scheduler")), a.bus)

	b := bot.New(bot.Deps{
		Adapter:   a.adapter,
		Catalog:   st,
		Delivery:  a.delivery,
		Feedback:  fb,
		Access:    a.access,
		Luck:      lk,
		Broadcast: a.broadcast,
		Log:       log,
	})

	pcfg, err := mapPushConfig(cfg)
	if err != nil {
		return err
	}
	a.push = push.New(pcfg, push.Deps{
		Delivery:  a.delivery,
		Users:     st,
		Send:      b.PushSender,
		Scheduler: a.sched,
		Metrics:   m,
		Bus:       a.bus,
		Log:       log,
	})
	if err := a.push.Register(pcfg); err != nil {
		return err
	}
	b.SetPusher(a.push)

	a.metrics = metrics.NewServer(m, log)

	a.cmdm = router.NewCommandManager(log.With(logx.String("comp", "commands")), a.adapter, a.cfgm, a.access)
	a.cmdm.SetRegistry(b.Commands(), b.Callbacks())
	a.cmdm.SetInterceptor(b.Interceptor())
	return nil
}

func (a *App) luckCache(ctx context.Context, cfg *config.Config) (luck.Cache, error) {
	if !strings.EqualFold(strings.TrimSpace(cfg.Luck.Backend), "redis") {
		return luck.NewMemoryCache(), nil
	}
	client, err := luck.NewRedisClient(cfg.Luck.RedisURL)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	a.redis = client
	a.log.Info("luck cache on redis")
	return luck.NewRedisCache(client, cfg.Luck.KeyPrefix), nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cmdm.SetAppSupervisor(a.sup)
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.sched.Start(a.sup.Context())
	if mc, err := mapMetricsConfig(a.cfgm.Get()); err == nil {
		a.metrics.Reconfigure(a.sup.Context(), mc)
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		// debug only: deliveries and votes are frequent
		eventbus.Drain(c, events, func(e eventbus.Event) {
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		})
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.notifySystemd()
	a.log.Info("app started", logx.String("config", a.cfgPath))
	return nil
}

// notifySystemd reports readiness and feeds the watchdog when the unit
// enables one. Both are no-ops outside systemd.
func (a *App) notifySystemd() {
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify ready sent")
	}
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	})
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.closeResources()
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	a.sup.Cancel()

	// step bounds one shutdown step so a stuck component cannot stall the rest.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		if max <= 0 {
			a.log.Warn("stop step skipped; no time left", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	// scheduler first: a push in flight is canceled before its transport goes away
	step("scheduler", 5*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("metrics", time.Second, func(c context.Context) error { a.metrics.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("resources", time.Second, func(context.Context) error { a.closeResources(); return nil })

	a.log.Info("stopped")
	return a.logs.Close()
}

func (a *App) closeResources() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("redis close failed", logx.Err(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
	}
}
