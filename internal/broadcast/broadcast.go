// Package broadcast fans one message out to every registered user.
//
// Recipients are independent: a failed send is logged and counted, never
// retried, and never stops the run. Sends are paced by a token bucket so a
// large audience stays under the platform flood limits.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"memebot/internal/eventbus"
	"memebot/internal/media"
	"memebot/internal/observability/metrics"
	kit "memebot/internal/transport"
	logx "memebot/pkg/logx"
)

var ErrEmptyPayload = errors.New("broadcast payload is empty")

type Config struct {
	RatePerSec  int           // 0 disables pacing
	SendTimeout time.Duration // per recipient; 0 means none
}

// Payload is either a text or a media attachment (with optional caption).
type Payload struct {
	Text  string
	Media *kit.Media
}

func (p Payload) empty() bool {
	return p.Media == nil && strings.TrimSpace(p.Text) == ""
}

// Result is the aggregate outcome of one run.
type Result struct {
	RunID     string
	Attempted int
	Succeeded int
	Duration  time.Duration
}

func (r Result) Failed() int { return r.Attempted - r.Succeeded }

// Recipients lists the audience.
type Recipients interface {
	ListUsers(ctx context.Context) ([]media.User, error)
}

type Deps struct {
	Adapter    kit.Adapter
	Recipients Recipients
	Metrics    *metrics.Metrics
	Bus        eventbus.Bus
	Log        logx.Logger
}

const TopicBroadcast = "broadcast.finished"

type Dispatcher struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	adapter    kit.Adapter
	recipients Recipients
	metrics    *metrics.Metrics
	bus        eventbus.Bus
	log        logx.Logger
}

func New(cfg Config, deps Deps) *Dispatcher {
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Dispatcher{
		adapter:    deps.Adapter,
		recipients: deps.Recipients,
		metrics:    deps.Metrics,
		bus:        deps.Bus,
		log:        log.With(logx.String("comp", "broadcast")),
	}
	d.Apply(cfg)
	return d
}

// Apply swaps pacing settings; a run in progress keeps its limiter.
func (d *Dispatcher) Apply(cfg Config) {
	var lim *rate.Limiter
	if cfg.RatePerSec > 0 {
		lim = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	d.mu.Lock()
	d.cfg = cfg
	d.limiter = lim
	d.mu.Unlock()
}

// Broadcast sends p to every registered user. Per-recipient failures only
// lower Succeeded. A canceled ctx stops the run and is returned together with
// the partial result.
func (d *Dispatcher) Broadcast(ctx context.Context, p Payload) (Result, error) {
	res := Result{RunID: uuid.NewString()}
	if p.empty() {
		return res, ErrEmptyPayload
	}
	users, err := d.recipients.ListUsers(ctx)
	if err != nil {
		return res, fmt.Errorf("list recipients: %w", err)
	}

	d.mu.Lock()
	lim := d.limiter
	timeout := d.cfg.SendTimeout
	d.mu.Unlock()

	start := time.Now()
	log := d.log.With(logx.String("run", res.RunID))
	log.Info("broadcast started", logx.Int("recipients", len(users)), logx.Bool("media", p.Media != nil))

	var runErr error
	for _, u := range users {
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				runErr = err
				break
			}
		}
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		res.Attempted++
		if err := d.sendOne(ctx, timeout, u.ID, p); err != nil {
			d.metrics.BroadcastRecipient("failed")
			log.Warn("broadcast send failed", logx.Int64("user_id", u.ID), logx.Err(fmt.Errorf("%w: %w", media.ErrDeliveryFailed, err)))
			continue
		}
		res.Succeeded++
		d.metrics.BroadcastRecipient("ok")
	}
	res.Duration = time.Since(start)

	fields := []logx.Field{
		logx.Int("attempted", res.Attempted),
		logx.Int("succeeded", res.Succeeded),
		logx.Duration("dur", res.Duration),
	}
	switch {
	case runErr != nil:
		log.Warn("broadcast interrupted", append(fields, logx.Err(runErr))...)
	case res.Failed() > 0:
		log.Warn("broadcast finished with failures", fields...)
	default:
		log.Info("broadcast finished", fields...)
	}
	if d.bus != nil {
		d.bus.Publish(eventbus.Event{Type: TopicBroadcast, Data: res})
	}
	return res, runErr
}

func (d *Dispatcher) sendOne(ctx context.Context, timeout time.Duration, userID int64, p Payload) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	to := kit.ChatTarget{ChatID: userID}
	if p.Media != nil {
		_, err := d.adapter.SendMedia(ctx, to, *p.Media, nil)
		return err
	}
	_, err := d.adapter.SendText(ctx, to, p.Text, &kit.SendOptions{DisablePreview: true})
	return err
}
