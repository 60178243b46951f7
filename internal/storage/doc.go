// Package storage is the durable store of the bot.
//
// It holds:
//   - the content catalog (one table per kind)
//   - the exposure ledger (what was shown to whom, per origin)
//   - the feedback tally and the per-user vote records
//   - registered users, privileged users and gate channels
//
// Two dialects share the same statement table: SQLite (modernc, default) and
// PostgreSQL (lib/pq). Correctness relies on the schema's uniqueness
// constraints, not on in-process locks.
package storage
