package tgui

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestData(t *testing.T) {
	t.Parallel()

	got, err := Data("like", "video", "42")
	if err != nil || got != "like_video_42" {
		t.Fatalf("Data = %q, %v", got, err)
	}
	if got, _ := Data("next", "meme", ""); got != "next_meme" {
		t.Fatalf("empty arg kept: %q", got)
	}
	if _, err := Data("check_subscription"); err == nil {
		t.Fatalf("underscore in action accepted")
	}
	if _, err := Data("like", strings.Repeat("x", 70)); err != ErrCallbackDataTooLong {
		t.Fatalf("err = %v, want too long", err)
	}
	if a := Args("video_42"); len(a) != 2 || a[0] != "video" || a[1] != "42" {
		t.Fatalf("Args = %v", a)
	}
	if a := Args(" "); a != nil {
		t.Fatalf("Args(blank) = %v", a)
	}
}

func TestChunkLines(t *testing.T) {
	t.Parallel()

	lines := make([]string, 0, 500)
	for i := 0; i < 500; i++ {
		lines = append(lines, "ф"+strings.Repeat("a", 20))
	}
	chunks := ChunkLines(lines, MaxMessageLen)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	total := 0
	for _, c := range chunks {
		if n := utf8.RuneCountInString(c); n > MaxMessageLen {
			t.Fatalf("chunk of %d runes exceeds limit", n)
		}
		total += len(strings.Split(c, "\n"))
	}
	if total != len(lines) {
		t.Fatalf("lines lost: %d != %d", total, len(lines))
	}

	if got := ChunkLines(nil, 10); len(got) != 0 {
		t.Fatalf("empty input produced %v", got)
	}
	if got := ChunkLines([]string{strings.Repeat("b", 30)}, 10); len(got) != 1 || utf8.RuneCountInString(got[0]) > 10 {
		t.Fatalf("long line not truncated: %q", got)
	}
}

func TestBuilderEscapes(t *testing.T) {
	t.Parallel()

	msg := New().Title("📦", "Stats <all>").KV("videos", "3").Line("a&b").Build()
	want := "📦 <b>Stats &lt;all&gt;</b>\n• <b>videos</b>: 3\na&amp;b"
	if msg.Text != want {
		t.Fatalf("text = %q, want %q", msg.Text, want)
	}
	if msg.Opt.ParseMode != "HTML" || !msg.Opt.DisablePreview || msg.Opt.ReplyMarkupAdapter != nil {
		t.Fatalf("opts = %+v", msg.Opt)
	}
}

func TestKeyboards(t *testing.T) {
	t.Parallel()

	kb := NewInline().Row(Btn("👍 1", "like_video_1")).Row()
	if kb.Rows() != 1 || len(kb.Markup().InlineKeyboard) != 1 {
		t.Fatalf("inline rows = %d", kb.Rows())
	}
	rm := ReplyKeyboard([]string{"A", "B"}, nil, []string{"C"})
	if len(rm.ReplyKeyboard) != 2 || len(rm.ReplyKeyboard[0]) != 2 || !rm.ResizeKeyboard {
		t.Fatalf("reply keyboard = %+v", rm.ReplyKeyboard)
	}
}
