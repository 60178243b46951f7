package storage

import (
	"fmt"
	"strconv"
	"strings"

	"memebot/internal/media"
)

// kindTable names the catalog table and its media ref column for a kind.
// This is the only place where kind values map to SQL identifiers.
type kindTable struct {
	table  string
	refCol string
}

var kindTables = map[media.Kind]kindTable{
	media.KindVideo:   {table: "videos", refCol: "video_id"},
	media.KindMeme:    {table: "memes", refCol: "meme_id"},
	media.KindSticker: {table: "stickers", refCol: "sticker_id"},
	media.KindVoice:   {table: "voice_messages", refCol: "voice_id"},
}

// kindStatements is the pre-built statement set of one catalog table.
type kindStatements struct {
	get       string
	random    string
	insert    string
	lookupRef string
	purge     string
	count     string
	listRefs  string
}

// statements is the full statement table of a dialect. It is built once at
// open time; request values only ever travel as bind arguments.
type statements struct {
	kinds map[media.Kind]kindStatements

	recordExposure string
	countExposures string

	sweepHolds   string
	countClaimed string
	insertHold   string
	deleteHold   string

	selectTally string
	selectVote  string
	upsertTally string
	insertVote  string

	registerUser string
	listUsers    string
	countUsers   string

	insertPrivileged string
	seedOwner        string
	deletePrivileged string
	listPrivileged   string

	insertChannel string
	deleteChannel string
	listChannels  string
}

func buildStatements(rebind func(string) string) *statements {
	st := &statements{kinds: make(map[media.Kind]kindStatements, len(kindTables))}
	for k, t := range kindTables {
		random := fmt.Sprintf(`SELECT c.id, c.%[2]s FROM %[1]s c
WHERE NOT EXISTS (
  SELECT 1 FROM user_content uc
  WHERE uc.user_id = ? AND uc.content_type = ? AND uc.source = ? AND uc.content_id = c.id
)
AND NOT EXISTS (
  SELECT 1 FROM exposure_holds h
  WHERE h.user_id = ? AND h.content_type = ? AND h.source = ? AND h.content_id = c.id
)
ORDER BY RANDOM() LIMIT 1`, t.table, t.refCol)
		st.kinds[k] = kindStatements{
			get:       rebind(fmt.Sprintf(`SELECT id, %[2]s FROM %[1]s WHERE id = ?`, t.table, t.refCol)),
			random:    rebind(random),
			insert:    rebind(fmt.Sprintf(`INSERT INTO %[1]s(%[2]s) VALUES(?) ON CONFLICT(%[2]s) DO NOTHING RETURNING id`, t.table, t.refCol)),
			lookupRef: rebind(fmt.Sprintf(`SELECT id FROM %[1]s WHERE %[2]s = ?`, t.table, t.refCol)),
			purge:     fmt.Sprintf(`DELETE FROM %s`, t.table),
			count:     fmt.Sprintf(`SELECT COUNT(*) FROM %s`, t.table),
			listRefs:  fmt.Sprintf(`SELECT %[2]s FROM %[1]s ORDER BY id`, t.table, t.refCol),
		}
	}

	st.recordExposure = rebind(`INSERT INTO user_content(user_id, content_id, content_type, source, shown_at)
VALUES(?,?,?,?,?)
ON CONFLICT(user_id, content_id, content_type, source) DO NOTHING`)
	st.countExposures = rebind(`SELECT COUNT(*) FROM user_content
WHERE user_id = ? AND content_type = ? AND source = ? AND shown_at >= ? AND shown_at < ?`)

	st.sweepHolds = rebind(`DELETE FROM exposure_holds WHERE held_at < ?`)
	st.countClaimed = rebind(`SELECT
  (SELECT COUNT(*) FROM user_content
    WHERE user_id = ? AND content_type = ? AND source = ? AND shown_at >= ? AND shown_at < ?)
+ (SELECT COUNT(*) FROM exposure_holds
    WHERE user_id = ? AND content_type = ? AND source = ?)`)
	st.insertHold = rebind(`INSERT INTO exposure_holds(user_id, content_id, content_type, source, held_at)
VALUES(?,?,?,?,?)
ON CONFLICT(user_id, content_id, content_type, source) DO NOTHING`)
	st.deleteHold = rebind(`DELETE FROM exposure_holds
WHERE user_id = ? AND content_id = ? AND content_type = ? AND source = ?`)

	st.selectTally = rebind(`SELECT likes, dislikes FROM content_feedback WHERE content_id = ? AND content_type = ?`)
	st.selectVote = rebind(`SELECT feedback_type FROM user_feedback WHERE user_id = ? AND content_id = ? AND content_type = ?`)
	st.upsertTally = rebind(`INSERT INTO content_feedback(content_id, content_type, likes, dislikes)
VALUES(?,?,?,?)
ON CONFLICT(content_id, content_type) DO UPDATE SET
  likes = content_feedback.likes + excluded.likes,
  dislikes = content_feedback.dislikes + excluded.dislikes`)
	st.insertVote = rebind(`INSERT INTO user_feedback(user_id, content_id, content_type, feedback_type) VALUES(?,?,?,?)`)

	st.registerUser = rebind(`INSERT INTO bot_users(user_id, username, joined_at) VALUES(?,?,?) ON CONFLICT(user_id) DO NOTHING`)
	st.listUsers = `SELECT user_id, username, joined_at FROM bot_users ORDER BY user_id`
	st.countUsers = `SELECT COUNT(*) FROM bot_users`

	st.insertPrivileged = rebind(`INSERT INTO privileged_users(user_id, role, added_by, added_at) VALUES(?,?,?,?) ON CONFLICT(user_id) DO NOTHING`)
	st.seedOwner = rebind(`INSERT INTO privileged_users(user_id, role, added_by, added_at) VALUES(?,?,?,?)
ON CONFLICT(user_id) DO UPDATE SET role = excluded.role`)
	st.deletePrivileged = rebind(`DELETE FROM privileged_users WHERE user_id = ? AND role <> ?`)
	st.listPrivileged = `SELECT user_id, role, added_by, added_at FROM privileged_users ORDER BY user_id`

	st.insertChannel = rebind(`INSERT INTO gate_channels(username, added_by, added_at) VALUES(?,?,?) ON CONFLICT(username) DO NOTHING`)
	st.deleteChannel = rebind(`DELETE FROM gate_channels WHERE username = ?`)
	st.listChannels = `SELECT username, added_by, added_at FROM gate_channels ORDER BY username`
	return st
}

func (s *statements) forKind(k media.Kind) (kindStatements, error) {
	ks, ok := s.kinds[k]
	if !ok {
		return kindStatements{}, fmt.Errorf("%w: %q", media.ErrUnknownKind, string(k))
	}
	return ks, nil
}

// rebindNone keeps '?' placeholders (SQLite).
func rebindNone(q string) string { return q }

// rebindDollar rewrites '?' placeholders to $1..$n (PostgreSQL).
func rebindDollar(q string) string {
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(q); i++ {
		c := q[i]
		if c == '\'' {
			inQuote = !inQuote
		}
		if c == '?' && !inQuote {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
