package config

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "memebot/pkg/logx"
)

// Validator checks a parsed config before it is committed.
type Validator func(ctx context.Context, cfg *Config) error

// ConfigManager owns the active config and republishes it when the file
// changes on disk. Only validated configs are committed.
type ConfigManager struct {
	path string

	mu      sync.RWMutex
	cfg     *Config
	digest  uint64
	subsMu  sync.Mutex
	subs    []chan *Config
	log     logx.Logger
	checkFn Validator

	// debounce collapses editor write bursts into one reload
	debounce time.Duration
}

func NewConfigManager(path string) *ConfigManager {
	return &ConfigManager{path: path, log: logx.Nop(), debounce: 250 * time.Millisecond}
}

func (m *ConfigManager) SetLogger(log logx.Logger) {
	if log.IsZero() {
		log = logx.Nop()
	}
	m.log = log
}

// SetValidator replaces Validate as the gate for Load and file reloads.
func (m *ConfigManager) SetValidator(fn Validator) { m.checkFn = fn }

// Parse reads the file and applies environment overrides. It does not validate.
func (m *ConfigManager) Parse() (*Config, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	cfg, err := decode(m.path, data)
	if err != nil {
		return nil, err
	}
	ApplyEnv(cfg)
	return cfg, nil
}

// Load parses, validates and commits the file.
func (m *ConfigManager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	if err := m.check(context.Background(), cfg); err != nil {
		return nil, err
	}
	m.Commit(cfg)
	return cfg, nil
}

func (m *ConfigManager) check(ctx context.Context, cfg *Config) error {
	if m.checkFn != nil {
		return m.checkFn(ctx, cfg)
	}
	return Validate(cfg)
}

func (m *ConfigManager) Commit(cfg *Config) {
	d := digest(cfg)
	m.mu.Lock()
	m.cfg, m.digest = cfg, d
	m.mu.Unlock()
}

func (m *ConfigManager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// digest fingerprints the decoded config so a rewrite with identical content
// is not republished.
func digest(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

// Subscribe returns a channel that receives every committed reload. A slow
// subscriber only ever misses intermediate configs, never the latest one.
func (m *ConfigManager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, max(buffer, 1))
	m.subsMu.Lock()
	m.subs = append(m.subs, ch)
	m.subsMu.Unlock()
	return ch
}

func (m *ConfigManager) Unsubscribe(ch chan *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for i, s := range m.subs {
		if s == ch {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			close(ch)
			return
		}
	}
}

func (m *ConfigManager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- cfg:
			continue
		default:
		}
		// full: drop the oldest pending config so the latest one fits
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- cfg:
		default:
			m.log.Debug("config update dropped; subscriber full", logx.Int("queue_cap", cap(ch)))
		}
	}
}

// reload re-reads the file and publishes it when it parses, differs from the
// active config and passes validation.
func (m *ConfigManager) reload(ctx context.Context) {
	cfg, err := m.Parse()
	if err != nil {
		m.log.Warn("config parse failed", logx.String("path", m.path), logx.Err(err))
		return
	}
	d := digest(cfg)
	m.mu.RLock()
	same := d != 0 && d == m.digest
	m.mu.RUnlock()
	if same {
		m.log.Debug("config unchanged", logx.String("path", m.path))
		return
	}

	vctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := m.check(vctx, cfg); err != nil {
		m.log.Warn("config rejected", logx.String("path", m.path), logx.Err(err))
		return
	}
	m.Commit(cfg)
	m.publish(cfg)
	m.log.Debug("config published", logx.String("path", m.path))
}

// Watch reloads the file on change until ctx ends. The directory is watched
// so editors that replace the file by rename are seen. A broken watcher is
// recreated with backoff.
func (m *ConfigManager) Watch(ctx context.Context) error {
	const (
		minBackoff = 250 * time.Millisecond
		maxBackoff = 5 * time.Second
	)
	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	schedule := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(m.debounce, func() { m.reload(ctx) })
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	backoff := minBackoff
	for ctx.Err() == nil {
		err := m.watchOnce(ctx, schedule, func() { backoff = minBackoff })
		if ctx.Err() != nil {
			break
		}
		wait := backoff + time.Duration(rand.Int64N(int64(backoff/2)+1))
		m.log.Warn("config watcher restarting", logx.Duration("backoff", wait), logx.Err(err))
		select {
		case <-ctx.Done():
		case <-time.After(wait):
		}
		backoff = min(backoff*2, maxBackoff)
	}
	return nil
}

// watchOnce runs one fsnotify watcher until it breaks or ctx ends.
func (m *ConfigManager) watchOnce(ctx context.Context, changed, healthy func()) error {
	dir, file := filepath.Dir(m.path), filepath.Base(m.path)
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}
	healthy()
	m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("event channel closed")
			}
			if strings.EqualFold(filepath.Base(ev.Name), file) && ev.Op != 0 {
				changed()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("error channel closed")
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				m.log.Warn("config watch overflow; reloading", logx.Err(err))
				changed()
				continue
			}
			m.log.Warn("config watch error", logx.Err(err))
		}
	}
}
