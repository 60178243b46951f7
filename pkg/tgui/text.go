package tgui

import (
	"strings"
	"unicode/utf8"
)

// MaxMessageLen is Telegram's text message limit in characters.
const MaxMessageLen = 4096

// truncRunes cuts s to n runes, the last of which becomes "…" when cut.
func truncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

// ChunkLines packs lines, newline separated, into messages of at most limit
// runes (MaxMessageLen when limit <= 0). Overlong lines are cut.
func ChunkLines(lines []string, limit int) []string {
	if limit <= 0 {
		limit = MaxMessageLen
	}
	var (
		out []string
		buf []string
		n   int
	)
	flush := func() {
		if len(buf) > 0 {
			out = append(out, strings.Join(buf, "\n"))
			buf, n = buf[:0], 0
		}
	}
	for _, ln := range lines {
		ln = truncRunes(ln, limit)
		w := utf8.RuneCountInString(ln)
		if len(buf) > 0 && n+1+w > limit {
			flush()
		}
		if len(buf) > 0 {
			n++
		}
		buf = append(buf, ln)
		n += w
	}
	flush()
	return out
}
