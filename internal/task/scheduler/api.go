package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"memebot/internal/eventbus"
	logx "memebot/pkg/logx"
)

// AddCron registers job under name, replacing any schedule with that name.
func (s *Service) AddCron(name, spec string, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("name required")
	}
	if job == nil {
		return "", errors.New("job required")
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return "", fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeScheduleLocked(name)
	s.defs = append(s.defs, scheduleDef{
		name:    name,
		spec:    spec,
		timeout: timeout,
		job:     job,
		running: &atomic.Bool{},
		skipped: &atomic.Uint64{},
	})
	if s.c == nil {
		// registered on Start
		return name, nil
	}
	d := &s.defs[len(s.defs)-1]
	if err := s.addCronLocked(d); err != nil {
		return name, err
	}
	args := []logx.Field{logx.String("name", name), logx.String("spec", spec), logx.Duration("timeout", timeout)}
	if next := s.previewNextRunsLocked(spec, 3); next != "" {
		args = append(args, logx.String("next", next))
	}
	s.log.Debug("schedule registered", args...)
	return name, nil
}

// Remove unschedules name. It reports whether something was removed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	removed := s.removeScheduleLocked(name)
	s.mu.Unlock()
	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

// removeScheduleLocked removes all defs matching name. Call with s.mu held.
func (s *Service) removeScheduleLocked(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	n := 0
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			continue
		}
		s.defs[n] = d
		n++
	}
	removed := n < len(s.defs)
	s.defs = s.defs[:n]
	return removed
}

func (s *Service) addCronLocked(d *scheduleDef) error {
	def := *d
	eid, err := s.c.AddJob(d.spec, cron.FuncJob(func() { s.run(def) }))
	if err == nil {
		d.entryID = eid
	}
	return err
}

func (s *Service) run(d scheduleDef) {
	if !d.running.CompareAndSwap(false, true) {
		d.skipped.Add(1)
		s.log.Warn("schedule skipped; previous run still in flight", logx.String("name", d.name))
		s.publish(RunEvent{Name: d.name, Skipped: true})
		return
	}
	defer d.running.Store(false)

	s.mu.Lock()
	ctx := s.runCtx
	if !s.started || ctx == nil || ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in scheduled job", logx.String("name", d.name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return d.job(ctx)
	}()
	dur := time.Since(start)
	if err != nil {
		s.log.Warn("scheduled job failed", logx.String("name", d.name), logx.Duration("dur", dur), logx.Err(err))
	} else {
		s.log.Debug("scheduled job done", logx.String("name", d.name), logx.Duration("dur", dur))
	}
	s.publish(RunEvent{Name: d.name, Err: err, Dur: dur})
}

func (s *Service) publish(ev RunEvent) {
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: TopicRun, Data: ev})
	}
}

// previewNextRunsLocked lists upcoming run times for debug logs. Call with s.mu held.
func (s *Service) previewNextRunsLocked(spec string, n int) string {
	if !s.log.Enabled(logx.LevelDebug) || n <= 0 {
		return ""
	}
	loc := s.loc
	if loc == nil {
		loc = s.loadLocationLocked()
	}
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return ""
	}
	t := time.Now().In(loc)
	var b strings.Builder
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}
