package tgui

import (
	"context"
	"strings"

	kit "memebot/internal/transport"

	tele "gopkg.in/telebot.v4"
)

// Message is a rendered UI payload: text plus send options.
type Message struct {
	Text string
	Opt  *kit.SendOptions
}

// Send sends the Message via the provided adapter.
func (m Message) Send(ctx context.Context, ad kit.Adapter, to kit.ChatTarget) (kit.MessageRef, error) {
	if m.Opt == nil {
		m.Opt = &kit.SendOptions{}
	}
	return ad.SendText(ctx, to, m.Text, m.Opt)
}

// Builder assembles an HTML message line by line.
// Default: ParseMode=HTML, DisablePreview=true.
type Builder struct {
	parseMode      string
	disablePreview bool
	rm             *tele.ReplyMarkup
	lines          []string
}

func New() *Builder {
	return &Builder{parseMode: "HTML", disablePreview: true}
}

// ParseMode overrides Telegram parse mode ("HTML", "Markdown", or empty).
func (b *Builder) ParseMode(mode string) *Builder {
	b.parseMode = strings.TrimSpace(mode)
	return b
}

func (b *Builder) html() bool { return strings.EqualFold(b.parseMode, "HTML") }

// Inline attaches an inline keyboard.
func (b *Builder) Inline(kb *Inline) *Builder {
	if kb == nil || kb.Rows() == 0 {
		b.rm = nil
		return b
	}
	b.rm = kb.Markup()
	return b
}

// Markup attaches arbitrary markup (e.g. a reply keyboard).
func (b *Builder) Markup(rm *tele.ReplyMarkup) *Builder {
	b.rm = rm
	return b
}

// Title adds a bold title line. Emoji is optional.
func (b *Builder) Title(emoji, title string) *Builder {
	e := strings.TrimSpace(emoji)
	t := strings.TrimSpace(title)
	if t == "" {
		return b
	}
	line := t
	if b.html() {
		line = B(t).String()
	}
	if e != "" {
		line = e + " " + line
	}
	b.lines = append(b.lines, line)
	return b
}

// Line adds a single line, escaping when ParseMode is HTML.
func (b *Builder) Line(s string) *Builder {
	if b.html() {
		s = Esc(s).String()
	}
	b.lines = append(b.lines, s)
	return b
}

// RawLine appends already-safe HTML.
func (b *Builder) RawLine(h H) *Builder {
	b.lines = append(b.lines, h.String())
	return b
}

// Blank inserts an empty line.
func (b *Builder) Blank() *Builder { return b.Line("") }

// Bullets adds bullet lines.
func (b *Builder) Bullets(items ...string) *Builder {
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		b.Line("• " + it)
	}
	return b
}

// KV adds a "key: value" row with consistent formatting.
func (b *Builder) KV(key, value string) *Builder {
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" {
		return b
	}
	if b.html() {
		b.lines = append(b.lines, "• "+B(key).String()+": "+Esc(value).String())
		return b
	}
	b.lines = append(b.lines, "• "+key+": "+value)
	return b
}

// Build produces a ready-to-send Message.
func (b *Builder) Build() Message {
	text := strings.Trim(strings.Join(b.lines, "\n"), "\n")
	opt := &kit.SendOptions{ParseMode: b.parseMode, DisablePreview: b.disablePreview}
	if b.rm != nil {
		opt.ReplyMarkupAdapter = b.rm
	}
	return Message{Text: text, Opt: opt}
}
