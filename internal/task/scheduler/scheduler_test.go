package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"memebot/internal/eventbus"
	logx "memebot/pkg/logx"
)

func TestAddCronRejectsBadSpec(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true}, logx.Nop(), nil)
	noop := func(context.Context) error { return nil }

	if _, err := s.AddCron("push", "61 * * * *", 0, noop); err == nil {
		t.Fatal("expected error for invalid minute")
	}
	if _, err := s.AddCron("", "0 12 * * *", 0, noop); err == nil {
		t.Fatal("expected error for empty name")
	}
	if _, err := s.AddCron("push", "0 12 * * *", 0, nil); err == nil {
		t.Fatal("expected error for nil job")
	}
	if _, err := s.AddCron("push", "0 12 * * *", 0, noop); err != nil {
		t.Fatalf("valid spec: %v", err)
	}
	if _, err := s.AddCron("push", "0 13 * * *", 0, noop); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if got := len(s.Snapshot().Schedules); got != 1 {
		t.Fatalf("schedules = %d, want upsert to keep 1", got)
	}
	if !s.Remove("push") || s.Remove("push") {
		t.Fatal("remove should succeed exactly once")
	}
}

func TestRunSkipsOverlap(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	s := New(Config{}, logx.Nop(), bus)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	var calls atomic.Int32
	_, _ = s.AddCron("push", "0 12 * * *", 0, func(context.Context) error {
		calls.Add(1)
		return nil
	})
	s.mu.Lock()
	def := s.defs[0]
	s.mu.Unlock()

	def.running.Store(true)
	s.run(def)
	if calls.Load() != 0 || def.skipped.Load() != 1 {
		t.Fatalf("overlapping run executed: calls=%d skipped=%d", calls.Load(), def.skipped.Load())
	}
	if ev := <-events; !ev.Data.(RunEvent).Skipped {
		t.Fatalf("event = %+v, want skipped", ev)
	}

	def.running.Store(false)
	s.run(def)
	if calls.Load() != 1 || def.running.Load() {
		t.Fatalf("run: calls=%d running=%v", calls.Load(), def.running.Load())
	}
}

func TestRunRecoversPanicAndReportsError(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	s := New(Config{}, logx.Nop(), bus)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	_, _ = s.AddCron("boom", "0 12 * * *", time.Second, func(context.Context) error { panic("boom") })
	s.mu.Lock()
	def := s.defs[0]
	s.mu.Unlock()

	s.run(def)
	ev := (<-events).Data.(RunEvent)
	if ev.Err == nil || ev.Name != "boom" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestEveryDescriptorFires(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Timezone: "UTC"}, logx.Nop(), nil)
	fired := make(chan struct{}, 1)
	_, err := s.AddCron("tick", "@every 1s", 0, func(context.Context) error {
		select {
		case fired <- struct{}{}:
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	s.Start(context.Background())
	defer s.Stop(context.Background())

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("interval job did not fire")
	}
}

func TestDisabledDoesNotFire(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: false}, logx.Nop(), nil)
	var calls atomic.Int32
	_, _ = s.AddCron("tick", "@every 1s", 0, func(context.Context) error {
		calls.Add(1)
		return errors.New("should not run")
	})
	s.Start(context.Background())
	time.Sleep(1200 * time.Millisecond)
	s.Stop(context.Background())
	if calls.Load() != 0 {
		t.Fatalf("disabled scheduler fired %d times", calls.Load())
	}
	if !s.Next("tick").IsZero() {
		t.Fatal("disabled scheduler reports a next run")
	}
}
