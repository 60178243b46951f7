package logx

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	kit "memebot/internal/transport"
)

func TestFormatTelegramJSON(t *testing.T) {
	t.Parallel()

	line := []byte(`{"level":"warn","time":"x","message":"delivery failed","user_id":7,"kind":"video","stack":"trace"}` + "\n")
	got := formatTelegramJSON(line)
	want := "[WARN] delivery failed\n- kind=video\n- user_id=7\n- stack=\ntrace"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	if got := formatTelegramJSON([]byte("  plain text \n")); got != "plain text" {
		t.Fatalf("raw = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	if got := truncate(strings.Repeat("a", 20), 12); got != strings.Repeat("a", 9)+"..." {
		t.Fatalf("got %q", got)
	}
	if got := truncate("short", 12); got != "short" {
		t.Fatalf("got %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARNING ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in, zerolog.InfoLevel); got != tt.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNopLoggerIsSafe(t *testing.T) {
	t.Parallel()

	var zero Logger
	if !zero.IsZero() {
		t.Fatalf("zero logger should report IsZero")
	}
	zero.Info("ignored", String("k", "v"))
	Nop().With(Int("n", 1)).Error("ignored", Err(nil))
}

type chanSender chan string

func (c chanSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	c <- fmt.Sprintf("%d/%d %s", to.ChatID, to.ThreadID, text)
	return kit.MessageRef{}, nil
}

func TestTelegramSinkForwardsAboveMinLevel(t *testing.T) {
	t.Parallel()

	sent := make(chanSender, 4)
	svc, log := New(Config{}, sent)
	svc.SetTelegramTarget(-100, 7)
	svc.Apply(Config{Telegram: TelegramConfig{Enabled: true, MinLevel: "warn", RatePerSec: 10}})
	defer svc.Close()

	log.Info("routine")
	log.Warn("push failed", String("kind", "video"))

	select {
	case got := <-sent:
		if !strings.HasPrefix(got, "-100/7 [WARN] push failed") || !strings.Contains(got, "- kind=video") {
			t.Fatalf("forwarded %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("warning was not forwarded")
	}
	select {
	case got := <-sent:
		t.Fatalf("unexpected second message %q", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTelegramSinkWithoutTargetDrops(t *testing.T) {
	t.Parallel()

	sent := make(chanSender, 1)
	svc, log := New(Config{Telegram: TelegramConfig{Enabled: true}}, sent)
	defer svc.Close()

	log.Error("nowhere to go")
	select {
	case got := <-sent:
		t.Fatalf("sent without target: %q", got)
	case <-time.After(50 * time.Millisecond):
	}
}
