// Package push runs the daily scheduled delivery to every registered user.
//
// The trigger is a two-state machine, Idle and Firing. A fire that arrives
// while Firing is skipped. Each user is served independently with origin
// "scheduled"; a failure for one user is logged and counted.
package push

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"memebot/internal/delivery"
	"memebot/internal/eventbus"
	"memebot/internal/media"
	"memebot/internal/observability/metrics"
	"memebot/internal/task/scheduler"
	logx "memebot/pkg/logx"
)

// DefaultSchedule fires once a day at noon.
const DefaultSchedule = "0 12 * * *"

const scheduleName = "daily_push"

var ErrBusy = errors.New("push already firing")

type State int32

const (
	Idle State = iota
	Firing
)

func (s State) String() string {
	if s == Firing {
		return "firing"
	}
	return "idle"
}

type Config struct {
	Enabled  bool
	Schedule string     // cron spec; DefaultSchedule when empty
	Kind     media.Kind // what to push; video when empty
	Timeout  time.Duration
}

// Deliverer is the scheduled delivery path of the selector.
type Deliverer interface {
	DeliverScheduled(ctx context.Context, userID int64, kind media.Kind, send delivery.SendFunc) (delivery.Delivered, error)
}

// Users lists the push audience.
type Users interface {
	ListUsers(ctx context.Context) ([]media.User, error)
}

// SenderFor builds the transport send for one user.
type SenderFor func(userID int64, kind media.Kind) delivery.SendFunc

// Summary describes one finished run.
type Summary struct {
	RunID     string
	Manual    bool
	Started   time.Time
	Duration  time.Duration
	Users     int
	Delivered int
	Exhausted int
	Failed    int
	Err       error // run-level error (audience listing, cancellation)
}

const TopicPush = "push.finished"

type Deps struct {
	Delivery  Deliverer
	Users     Users
	Send      SenderFor
	Scheduler *scheduler.Service
	Metrics   *metrics.Metrics
	Bus       eventbus.Bus
	Log       logx.Logger
}

type Trigger struct {
	deps  Deps
	log   logx.Logger
	state atomic.Int32

	mu   sync.Mutex
	cfg  Config
	last *Summary
}

func New(cfg Config, deps Deps) *Trigger {
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	t := &Trigger{deps: deps, log: log.With(logx.String("comp", "push"))}
	t.cfg = normalize(cfg)
	return t
}

func normalize(cfg Config) Config {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Kind == "" {
		cfg.Kind = media.KindVideo
	}
	return cfg
}

// Register installs (or removes) the daily schedule according to cfg.
func (t *Trigger) Register(cfg Config) error {
	cfg = normalize(cfg)
	if !cfg.Kind.Valid() {
		return fmt.Errorf("%w: %q", media.ErrUnknownKind, string(cfg.Kind))
	}
	t.mu.Lock()
	t.cfg = cfg
	t.mu.Unlock()

	if t.deps.Scheduler == nil {
		return nil
	}
	if !cfg.Enabled {
		t.deps.Scheduler.Remove(scheduleName)
		return nil
	}
	_, err := t.deps.Scheduler.AddCron(scheduleName, cfg.Schedule, cfg.Timeout, func(ctx context.Context) error {
		_, err := t.fire(ctx, false)
		if errors.Is(err, ErrBusy) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("register push schedule: %w", err)
	}
	t.log.Info("push scheduled", logx.String("spec", cfg.Schedule), logx.String("kind", string(cfg.Kind)))
	return nil
}

// State reports Idle or Firing.
func (t *Trigger) State() State { return State(t.state.Load()) }

// Last returns the summary of the most recent finished run.
func (t *Trigger) Last() (Summary, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return Summary{}, false
	}
	return *t.last, true
}

// Next returns the next scheduled fire, zero when not scheduled.
func (t *Trigger) Next() time.Time {
	if t.deps.Scheduler == nil {
		return time.Time{}
	}
	return t.deps.Scheduler.Next(scheduleName)
}

// RunNow fires immediately and blocks until the run ends.
func (t *Trigger) RunNow(ctx context.Context) (Summary, error) {
	return t.fire(ctx, true)
}

func (t *Trigger) fire(ctx context.Context, manual bool) (Summary, error) {
	if !t.state.CompareAndSwap(int32(Idle), int32(Firing)) {
		t.log.Warn("push skipped; previous run still firing", logx.Bool("manual", manual))
		t.deps.Metrics.PushRun("skipped")
		return Summary{}, ErrBusy
	}
	defer t.state.Store(int32(Idle))

	t.mu.Lock()
	kind := t.cfg.Kind
	t.mu.Unlock()

	sum := Summary{RunID: uuid.NewString(), Manual: manual, Started: time.Now()}
	log := t.log.With(logx.String("run", sum.RunID))

	users, err := t.deps.Users.ListUsers(ctx)
	if err != nil {
		sum.Err = fmt.Errorf("list users: %w", err)
		return t.finish(log, sum), sum.Err
	}
	sum.Users = len(users)
	log.Info("push started", logx.Int("users", len(users)), logx.String("kind", string(kind)), logx.Bool("manual", manual))

	for _, u := range users {
		if err := ctx.Err(); err != nil {
			sum.Err = err
			break
		}
		_, err := t.deps.Delivery.DeliverScheduled(ctx, u.ID, kind, t.deps.Send(u.ID, kind))
		switch {
		case err == nil:
			sum.Delivered++
		case errors.Is(err, media.ErrExhausted):
			sum.Exhausted++
		default:
			sum.Failed++
			log.Warn("push to user failed", logx.Int64("user_id", u.ID), logx.Err(err))
		}
	}
	return t.finish(log, sum), sum.Err
}

func (t *Trigger) finish(log logx.Logger, sum Summary) Summary {
	sum.Duration = time.Since(sum.Started)
	result := "ok"
	if sum.Err != nil {
		result = "error"
	}
	t.deps.Metrics.PushRun(result)

	fields := []logx.Field{
		logx.Int("users", sum.Users),
		logx.Int("delivered", sum.Delivered),
		logx.Int("exhausted", sum.Exhausted),
		logx.Int("failed", sum.Failed),
		logx.Duration("dur", sum.Duration),
	}
	if sum.Err != nil {
		log.Warn("push ended early", append(fields, logx.Err(sum.Err))...)
	} else {
		log.Info("push finished", fields...)
	}

	t.mu.Lock()
	cp := sum
	t.last = &cp
	t.mu.Unlock()
	if t.deps.Bus != nil {
		t.deps.Bus.Publish(eventbus.Event{Type: TopicPush, Data: sum})
	}
	return sum
}
