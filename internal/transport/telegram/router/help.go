package router

import (
	"fmt"
	"html"
	"sort"
	"strings"
)

// helpText renders help in Telegram HTML parse mode. Commands above the
// viewer's access level are left out.
func (m *CommandManager) helpText(path []string, viewer Access) string {
	m.mu.RLock()
	root := m.root
	alias := m.alias
	m.mu.RUnlock()

	cur := root
	full := make([]string, 0, len(path))
	for _, p := range path {
		n, ok := cur.child(p)
		if !ok {
			if leaf, ok2 := alias[p]; ok2 && leaf != nil && leaf.cmd != nil {
				cur = leaf
				full = splitRoute(leaf.cmd.Route)
				break
			}
			return helpUnknownHTML()
		}
		cur = n
		full = append(full, p)
	}
	if minAccess(cur) > viewer {
		return helpUnknownHTML()
	}

	if len(path) == 0 {
		return helpTopHTML(root, viewer)
	}
	return helpNodeHTML(cur, full, viewer)
}

func helpUnknownHTML() string {
	return strings.Join([]string{
		"❓ <b>Неизвестная команда</b>",
		"Наберите <code>/help</code>, чтобы увидеть список команд.",
	}, "\n")
}

type topRow struct {
	name string
	desc string
	lock bool
}

func helpTopHTML(root *cmdNode, viewer Access) string {
	names := root.childNames()
	rows := make([]topRow, 0, len(names))
	for _, name := range names {
		n, _ := root.child(name)
		if n == nil {
			continue
		}
		need := minAccess(n)
		if need > viewer {
			continue
		}
		rows = append(rows, topRow{name: name, desc: summarizeNodeDesc(n), lock: need > AccessEveryone})
	}
	// restricted commands at the bottom, alphabetical within groups
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].lock != rows[j].lock {
			return !rows[i].lock
		}
		return rows[i].name < rows[j].name
	})

	lines := []string{
		"📚 <b>Команды</b>",
		"Подробнее: <code>/help &lt;команда&gt;</code>",
		"",
	}
	for _, r := range rows {
		suffix := ""
		if r.desc != "" {
			suffix = " - " + html.EscapeString(r.desc)
		}
		prefix := "• "
		if r.lock {
			prefix = "• 🔒 "
		}
		lines = append(lines, prefix+"<code>/"+html.EscapeString(r.name)+"</code>"+suffix)
	}
	return strings.Join(filterEmpty(lines), "\n")
}

func helpNodeHTML(cur *cmdNode, full []string, viewer Access) string {
	title := "/" + strings.Join(full, " ")
	lines := []string{fmt.Sprintf("📚 <b>Справка</b> <code>%s</code>", html.EscapeString(title))}

	if cur != nil && cur.cmd != nil {
		c := cur.cmd
		if d := strings.TrimSpace(c.Description); d != "" {
			lines = append(lines, html.EscapeString(d))
		}
		switch c.Access {
		case AccessPrivileged:
			lines = append(lines, "🔒 <i>Только для админов</i>")
		case AccessOwner:
			lines = append(lines, "🔒 <i>Только для владельца</i>")
		}
		if u := strings.TrimSpace(c.Usage); u != "" {
			lines = append(lines, "", "<b>Использование</b>", "<code>"+html.EscapeString(u)+"</code>")
		}
		if short := buildShortcuts(*c); len(short) > 0 {
			lines = append(lines, "", "<b>Сокращения</b>")
			for _, s := range short {
				lines = append(lines, "• <code>/"+html.EscapeString(s)+"</code>")
			}
		}
	} else {
		lines = append(lines, "Группа команд.")
	}

	if cur != nil && len(cur.children) > 0 {
		lines = append(lines, "", "<b>Подкоманды</b>")
		for _, name := range cur.childNames() {
			n, _ := cur.child(name)
			if n == nil || minAccess(n) > viewer {
				continue
			}
			cmd := "/" + strings.Join(append(append([]string(nil), full...), name), " ")
			suffix := ""
			if desc := summarizeNodeDesc(n); desc != "" {
				suffix = " - " + html.EscapeString(desc)
			}
			lines = append(lines, "• <code>"+html.EscapeString(cmd)+"</code>"+suffix)
		}
	}
	return strings.Join(filterEmpty(lines), "\n")
}

func summarizeNodeDesc(n *cmdNode) string {
	if n == nil {
		return ""
	}
	if n.cmd != nil {
		if d := strings.TrimSpace(n.cmd.Description); d != "" {
			return d
		}
	}
	kids := n.childNames()
	if len(kids) == 0 {
		return ""
	}
	max := 3
	if len(kids) < max {
		max = len(kids)
	}
	s := strings.Join(kids[:max], ", ")
	if len(kids) > max {
		s += ", …"
	}
	return "подкоманды: " + s
}

// minAccess is the lowest access level that can use anything under n.
func minAccess(n *cmdNode) Access {
	if n == nil {
		return AccessEveryone
	}
	best := AccessOwner
	found := false
	var walk func(x *cmdNode)
	walk = func(x *cmdNode) {
		if x.cmd != nil {
			found = true
			if x.cmd.Access < best {
				best = x.cmd.Access
			}
		}
		for _, ch := range x.children {
			walk(ch)
		}
	}
	walk(n)
	if !found {
		return AccessEveryone
	}
	return best
}

func buildShortcuts(c Command) []string {
	out := make([]string, 0, 8)
	seen := map[string]bool{}
	if menu, ok := telegramCommandNameFromRoute(splitRoute(c.Route)); ok && len(splitRoute(c.Route)) > 1 {
		out = append(out, menu)
		seen[menu] = true
	}
	for _, a := range c.Aliases {
		a = strings.TrimSpace(a)
		if a == "" || strings.Contains(a, " ") {
			continue
		}
		if !seen[a] {
			out = append(out, a)
			seen[a] = true
		}
		if sa := sanitizeTelegramCommand(a); sa != "" && !seen[sa] {
			out = append(out, sa)
			seen[sa] = true
		}
	}
	sort.Strings(out)
	return out
}

func filterEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for i, s := range in {
		// keep single blank separators between sections
		if strings.TrimSpace(s) == "" && (i == 0 || strings.TrimSpace(in[i-1]) == "") {
			continue
		}
		out = append(out, s)
	}
	return out
}
