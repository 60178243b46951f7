package router

import (
	"cmp"
	"slices"
	"strings"
	"unicode"

	kit "memebot/internal/transport"
)

const (
	maxMenuName    = 32
	maxMenuEntries = 100
)

// sanitizeTelegramCommand maps a route or alias onto Telegram's command
// alphabet [a-z0-9_]{1,32}. Separators collapse into one underscore and
// everything else is dropped. Names must not start with a digit.
func sanitizeTelegramCommand(s string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return r
		case r == '-', r == '/', unicode.IsSpace(r):
			return '_'
		}
		return -1
	}, strings.ToLower(strings.TrimSpace(s)))

	parts := strings.FieldsFunc(mapped, func(r rune) bool { return r == '_' })
	out := strings.Join(parts, "_")
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = "cmd_" + out
	}
	if len(out) > maxMenuName {
		out = strings.TrimRight(out[:maxMenuName], "_")
	}
	return out
}

// telegramCommandNameFromRoute joins route tokens: ["push","now"] is /push_now.
func telegramCommandNameFromRoute(route []string) (string, bool) {
	out := sanitizeTelegramCommand(strings.Join(route, "_"))
	return out, out != ""
}

type menuEntry struct {
	kit.BotCommand
	// top-level groups sort before leaf shortcuts
	rank int
}

// buildTelegramMenuCommands lists the public commands for the Telegram
// autocomplete menu. Restricted commands stay out of it.
func buildTelegramMenuCommands(root *cmdNode, leafCmds []Command) []kit.BotCommand {
	byName := map[string]menuEntry{}
	offer := func(name, desc string, rank int) {
		if name = sanitizeTelegramCommand(name); name == "" {
			return
		}
		if desc = strings.Join(strings.Fields(desc), " "); desc == "" {
			desc = name
		}
		cur, seen := byName[name]
		if seen && (cur.rank < rank || (cur.rank == rank && len(cur.Description) <= len(desc))) {
			return
		}
		byName[name] = menuEntry{BotCommand: kit.BotCommand{Command: name, Description: desc}, rank: rank}
	}

	if root != nil {
		for _, name := range root.childNames() {
			if n, _ := root.child(name); n != nil && minAccess(n) == AccessEveryone {
				offer(name, summarizeNodeDesc(n), 0)
			}
		}
	}
	for _, c := range leafCmds {
		route := splitRoute(c.Route)
		if len(route) < 2 || c.Access != AccessEveryone {
			continue
		}
		name, ok := telegramCommandNameFromRoute(route)
		if !ok {
			continue
		}
		desc := c.Description
		if strings.TrimSpace(desc) == "" {
			desc = strings.Join(route, " ")
		}
		offer(name, desc, 1)
	}

	entries := make([]menuEntry, 0, len(byName))
	for _, e := range byName {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b menuEntry) int {
		return cmp.Or(cmp.Compare(a.rank, b.rank), cmp.Compare(a.Command, b.Command))
	})
	if len(entries) > maxMenuEntries {
		entries = entries[:maxMenuEntries]
	}
	out := make([]kit.BotCommand, len(entries))
	for i, e := range entries {
		out[i] = e.BotCommand
	}
	return out
}
