package adapter

import (
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	kit "memebot/internal/transport"
)

func TestSplitTelegramText(t *testing.T) {
	t.Parallel()

	short := "hello"
	if got := splitTelegramText(short, 10, ""); len(got) != 1 || got[0] != short {
		t.Fatalf("short text split: %q", got)
	}

	lines := strings.Repeat("abcdefghi\n", 10) // 100 runes
	got := splitTelegramText(lines, 35, "")
	for i, c := range got {
		if n := len([]rune(c)); n > 35 {
			t.Fatalf("chunk %d has %d runes", i, n)
		}
		if strings.HasSuffix(c, "\n") || strings.HasPrefix(c, "\n") {
			t.Fatalf("chunk %d keeps boundary newline: %q", i, c)
		}
	}
	if joined := strings.Join(got, "\n"); joined != strings.TrimRight(lines, "\n") {
		t.Fatalf("rejoined text differs")
	}

	html := strings.Repeat("x", 28) + "<b>bold</b>"
	for _, c := range splitTelegramText(html, 30, "HTML") {
		if strings.Count(c, "<") != strings.Count(c, ">") {
			t.Fatalf("chunk splits a tag: %q", c)
		}
	}
}

func TestMediaOf(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		msg  *tele.Message
		want *kit.Media
	}{
		{"text", &tele.Message{Text: "hi"}, nil},
		{"photo", &tele.Message{Photo: &tele.Photo{File: tele.File{FileID: "p1"}}, Caption: "c"}, &kit.Media{Type: kit.MediaPhoto, FileID: "p1", Caption: "c"}},
		{"video", &tele.Message{Video: &tele.Video{File: tele.File{FileID: "v1"}}}, &kit.Media{Type: kit.MediaVideo, FileID: "v1"}},
		{"animation wins over document", &tele.Message{
			Animation: &tele.Animation{File: tele.File{FileID: "a1"}},
			Document:  &tele.Document{File: tele.File{FileID: "d1"}},
		}, &kit.Media{Type: kit.MediaAnimation, FileID: "a1"}},
		{"voice", &tele.Message{Voice: &tele.Voice{File: tele.File{FileID: "vo1"}}}, &kit.Media{Type: kit.MediaVoice, FileID: "vo1"}},
		{"sticker", &tele.Message{Sticker: &tele.Sticker{File: tele.File{FileID: "s1"}}, Caption: "ignored"}, &kit.Media{Type: kit.MediaSticker, FileID: "s1"}},
	}
	for _, c := range cases {
		got := mediaOf(c.msg)
		switch {
		case c.want == nil && got != nil:
			t.Fatalf("%s: got %+v, want nil", c.name, got)
		case c.want != nil && (got == nil || *got != *c.want):
			t.Fatalf("%s: got %+v, want %+v", c.name, got, c.want)
		}
	}
}

func TestMessageUpdateSkipsAnonymous(t *testing.T) {
	t.Parallel()
	if _, ok := messageUpdate(&tele.Message{Text: "x", Chat: &tele.Chat{ID: 1}}); ok {
		t.Fatal("message without sender produced an update")
	}
	up, ok := messageUpdate(&tele.Message{ID: 3, Text: "/start", Sender: &tele.User{ID: 9, Username: "u"}, Chat: &tele.Chat{ID: 9, Type: tele.ChatPrivate}})
	if !ok || up.Message.FromID != 9 || up.Message.IsGroup || up.Message.Media != nil {
		t.Fatalf("update %+v ok=%v", up.Message, ok)
	}
}
