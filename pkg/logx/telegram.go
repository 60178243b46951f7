package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	kit "memebot/internal/transport"
)

// TextSender is the part of the transport the Telegram sink needs.
type TextSender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

const (
	telegramQueueSize = 256
	telegramMaxLen    = 3500
)

type telegramItem struct {
	to   kit.ChatTarget
	text string
}

// telegramSink forwards records at or above a minimum level to a chat. It
// never blocks the caller: over the rate limit or with a full queue the
// record is dropped.
type telegramSink struct {
	sender TextSender
	queue  chan telegramItem

	mu       sync.Mutex
	chatID   int64
	threadID int
	minLevel zerolog.Level
	limiter  *rate.Limiter
	cancel   context.CancelFunc
	done     chan struct{}
}

func newTelegramSink(sender TextSender) *telegramSink {
	return &telegramSink{
		sender:   sender,
		queue:    make(chan telegramItem, telegramQueueSize),
		minLevel: zerolog.WarnLevel,
		limiter:  rate.NewLimiter(1, 1),
	}
}

func (t *telegramSink) setTarget(chatID int64, threadID int) {
	t.mu.Lock()
	t.chatID = chatID
	if threadID != 0 {
		t.threadID = threadID
	}
	t.mu.Unlock()
}

func (t *telegramSink) hasTarget() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.chatID != 0
}

func (t *telegramSink) configure(c TelegramConfig) {
	rps := max(1, c.RatePerSec)
	t.mu.Lock()
	t.minLevel = parseLevel(c.MinLevel, zerolog.WarnLevel)
	t.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	if c.ThreadID != 0 {
		t.threadID = c.ThreadID
	}
	t.mu.Unlock()
}

// start launches the sender goroutine once; later calls are no-ops.
func (t *telegramSink) start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done != nil || t.sender == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel, t.done = cancel, make(chan struct{})
	go t.run(ctx, t.done)
}

func (t *telegramSink) stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (t *telegramSink) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-t.queue:
			_, _ = t.sender.SendText(ctx, it.to, it.text, &kit.SendOptions{DisablePreview: true})
		}
	}
}

func (t *telegramSink) Write(p []byte) (int, error) {
	return t.WriteLevel(zerolog.InfoLevel, p)
}

func (t *telegramSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	t.mu.Lock()
	to := kit.ChatTarget{ChatID: t.chatID, ThreadID: t.threadID}
	pass := t.sender != nil && to.ChatID != 0 && level >= t.minLevel && t.limiter.Allow()
	t.mu.Unlock()
	if !pass {
		return len(p), nil
	}
	if text := formatTelegramJSON(p); text != "" {
		select {
		case t.queue <- telegramItem{to: to, text: text}:
		default:
		}
	}
	return len(p), nil
}

// formatTelegramJSON renders a zerolog JSON line as "[LEVEL] message" plus one
// "- key=value" line per field, keys sorted so repeated alerts read the same.
// The stack, when present, goes last.
func formatTelegramJSON(p []byte) string {
	line := strings.TrimSpace(string(p))
	var rec map[string]any
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return truncate(line, telegramMaxLen)
	}

	var b strings.Builder
	if lvl, _ := rec["level"].(string); lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	msg, _ := rec["message"].(string)
	if msg == "" {
		msg, _ = rec["msg"].(string)
	}
	b.WriteString(msg)

	keys := make([]string, 0, len(rec))
	for k := range rec {
		switch k {
		case "time", "level", "message", "msg", "stack":
		default:
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n- %s=%s", k, truncate(fmt.Sprint(rec[k]), 600))
	}
	if st, ok := rec["stack"]; ok {
		b.WriteString("\n- stack=\n" + truncate(fmt.Sprint(st), 900))
	}
	return truncate(b.String(), telegramMaxLen)
}

func truncate(s string, n int) string {
	switch {
	case n <= 0 || len(s) <= n:
		return s
	case n < 10:
		return s[:n]
	}
	return s[:n-3] + "..."
}
