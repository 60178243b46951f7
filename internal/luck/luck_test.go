package luck

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	logx "memebot/pkg/logx"
)

func fixedService(cache Cache, at time.Time, draws ...int) *Service {
	s := NewService(cache, time.UTC, logx.Nop())
	s.now = func() time.Time { return at }
	i := 0
	s.draw = func() int {
		v := draws[i%len(draws)]
		i++
		return v
	}
	return s
}

func TestScoreIsIntegerMean(t *testing.T) {
	t.Parallel()
	s := fixedService(NewMemoryCache(), time.Now(), 1, 200, 1, 200, 1, 200, 1, 200, 1, 200)
	if got := s.Score(); got != 100 {
		t.Fatalf("score = %d, want 100", got)
	}
	s = fixedService(NewMemoryCache(), time.Now(), 143)
	if got := s.Score(); got != 143 {
		t.Fatalf("score = %d, want 143", got)
	}
}

func TestTierOf(t *testing.T) {
	t.Parallel()
	cases := []struct {
		score int
		emoji string
	}{
		{1, "😢"}, {22, "😢"}, {23, "🙁"}, {60, "🙁"}, {100, "😐"},
		{101, "🙂"}, {140, "🙂"}, {160, "😃"}, {190, "😄"}, {191, "😍"}, {200, "😍"},
	}
	for _, tc := range cases {
		if got := TierOf(tc.score).Emoji; got != tc.emoji {
			t.Fatalf("TierOf(%d) = %s, want %s", tc.score, got, tc.emoji)
		}
	}
}

func TestReadingText(t *testing.T) {
	t.Parallel()
	first := Reading{Score: 143, Fresh: true}
	txt := first.Text(func(int) int { return 0 })
	if !strings.Contains(txt, "71.5%") || !strings.Contains(txt, "😃") || !strings.Contains(txt, "День с хорошим потенциалом") {
		t.Fatalf("fresh text = %q", txt)
	}
	again := Reading{Score: 142}
	if txt := again.Text(nil); !strings.Contains(txt, "уже определён: 71.0%") {
		t.Fatalf("repeat text = %q", txt)
	}
}

func testCaches(t *testing.T) map[string]Cache {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return map[string]Cache{
		"memory": NewMemoryCache(),
		"redis":  NewRedisCache(client, "test:"),
	}
}

func TestReadFixedPerUserAndDay(t *testing.T) {
	t.Parallel()
	for name, cache := range testCaches(t) {
		cache := cache
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			day1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

			r, err := fixedService(cache, day1, 50).Read(ctx, 7)
			if err != nil || !r.Fresh || r.Score != 50 {
				t.Fatalf("first read = %+v, %v", r, err)
			}
			// later the same day a different draw must not replace it
			r, err = fixedService(cache, day1.Add(5*time.Hour), 180).Read(ctx, 7)
			if err != nil || r.Fresh || r.Score != 50 {
				t.Fatalf("repeat read = %+v, %v", r, err)
			}
			// another user gets their own score
			r, _ = fixedService(cache, day1, 180).Read(ctx, 8)
			if !r.Fresh || r.Score != 180 {
				t.Fatalf("other user read = %+v", r)
			}
			// next day is recomputed
			r, _ = fixedService(cache, day1.Add(24*time.Hour), 120).Read(ctx, 7)
			if !r.Fresh || r.Score != 120 || r.Day != "2026-03-02" {
				t.Fatalf("next day read = %+v", r)
			}
		})
	}
}

func TestMemoryCachePrunesOldDays(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := NewMemoryCache()
	_, _, _ = c.Claim(ctx, 1, "2026-03-01", 10, 0)
	_, _, _ = c.Claim(ctx, 2, "2026-03-01", 10, 0)
	_, _, _ = c.Claim(ctx, 1, "2026-03-02", 10, 0)
	if c.Len() != 1 {
		t.Fatalf("len = %d, want 1", c.Len())
	}
}

func TestRedisTTLEndsWithDay(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	at := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	s := fixedService(NewRedisCache(client, ""), at, 90)
	if _, err := s.Read(context.Background(), 1); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ttl := mr.TTL("luck:1:2026-03-01"); ttl != time.Hour {
		t.Fatalf("ttl = %v, want 1h", ttl)
	}
	mr.FastForward(time.Hour + time.Second)
	if mr.Exists("luck:1:2026-03-01") {
		t.Fatalf("key survived the end of the day")
	}
}
