package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"memebot/internal/media"
	logx "memebot/pkg/logx"
)

// dialect captures what differs between the supported databases.
type dialect struct {
	name              string
	schema            string
	rebind            func(string) string
	isUniqueViolation func(error) bool
	// claimLock serializes claims of one (user, kind, origin) across
	// connections. Empty when the pool already has a single connection.
	claimLock string
}

// holdTTL is how long an unconfirmed claim keeps its item reserved.
const holdTTL = 15 * time.Minute

// Store is the SQL-backed durable store. It is safe for concurrent use.
type Store struct {
	db    *sql.DB
	d     dialect
	stmts *statements
	log   logx.Logger
	now   func() time.Time
}

func newStore(db *sql.DB, d dialect, log logx.Logger) *Store {
	return &Store{
		db:    db,
		d:     d,
		stmts: buildStatements(d.rebind),
		log:   log,
		now:   time.Now,
	}
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.d.schema); err != nil {
		return fmt.Errorf("%s schema: %w", s.d.name, err)
	}
	return nil
}

// Dialect reports the active database dialect ("sqlite" or "postgres").
func (s *Store) Dialect() string { return s.d.name }

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	return classify(s.db.PingContext(ctx))
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// classify wraps connection level failures with media.ErrStoreUnavailable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %w", media.ErrStoreUnavailable, err)
	}
	return err
}

// ---- catalog ----

func (s *Store) Get(ctx context.Context, kind media.Kind, id int64) (media.Item, error) {
	ks, err := s.stmts.forKind(kind)
	if err != nil {
		return media.Item{}, err
	}
	it := media.Item{Kind: kind}
	err = s.db.QueryRowContext(ctx, ks.get, id).Scan(&it.ID, &it.Ref)
	if errors.Is(err, sql.ErrNoRows) {
		return media.Item{}, fmt.Errorf("%s %d: %w", kind, id, media.ErrNotFound)
	}
	if err != nil {
		return media.Item{}, classify(err)
	}
	return it, nil
}

// RandomUnseen picks uniformly among items of kind without an exposure record
// or a live claim for (user, kind, origin). It never writes.
func (s *Store) RandomUnseen(ctx context.Context, kind media.Kind, userID int64, origin media.Origin) (media.Item, error) {
	ks, err := s.stmts.forKind(kind)
	if err != nil {
		return media.Item{}, err
	}
	return scanRandom(s.db.QueryRowContext(ctx, ks.random, randomArgs(userID, kind, origin)...), kind, userID)
}

// randomArgs binds the ledger and the hold exclusion of the random statement.
func randomArgs(userID int64, kind media.Kind, origin media.Origin) []any {
	return []any{userID, string(kind), string(origin), userID, string(kind), string(origin)}
}

func scanRandom(row *sql.Row, kind media.Kind, userID int64) (media.Item, error) {
	it := media.Item{Kind: kind}
	err := row.Scan(&it.ID, &it.Ref)
	if errors.Is(err, sql.ErrNoRows) {
		return media.Item{}, fmt.Errorf("%s for user %d: %w", kind, userID, media.ErrExhausted)
	}
	if err != nil {
		return media.Item{}, classify(err)
	}
	return it, nil
}

// AddItem inserts a media ref. A ref already present for the kind returns the
// existing item with created=false.
func (s *Store) AddItem(ctx context.Context, kind media.Kind, ref string) (media.Item, bool, error) {
	ks, err := s.stmts.forKind(kind)
	if err != nil {
		return media.Item{}, false, err
	}
	if ref == "" {
		return media.Item{}, false, errors.New("empty media ref")
	}
	it := media.Item{Kind: kind, Ref: ref}
	err = s.db.QueryRowContext(ctx, ks.insert, ref).Scan(&it.ID)
	if err == nil {
		return it, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return media.Item{}, false, classify(err)
	}
	// conflict: DO NOTHING returns no row
	if err := s.db.QueryRowContext(ctx, ks.lookupRef, ref).Scan(&it.ID); err != nil {
		return media.Item{}, false, classify(err)
	}
	return it, false, nil
}

// PurgeKind deletes every catalog item of kind. Ledger and tally rows stay.
func (s *Store) PurgeKind(ctx context.Context, kind media.Kind) (int64, error) {
	ks, err := s.stmts.forKind(kind)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, ks.purge)
	if err != nil {
		return 0, classify(err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *Store) CountItems(ctx context.Context) (map[media.Kind]int64, error) {
	out := make(map[media.Kind]int64, len(media.Kinds))
	for _, k := range media.Kinds {
		ks, err := s.stmts.forKind(k)
		if err != nil {
			return nil, err
		}
		var n int64
		if err := s.db.QueryRowContext(ctx, ks.count).Scan(&n); err != nil {
			return nil, classify(err)
		}
		out[k] = n
	}
	return out, nil
}

func (s *Store) ListMediaRefs(ctx context.Context, kind media.Kind) ([]string, error) {
	ks, err := s.stmts.forKind(kind)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, ks.listRefs)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

// ---- exposure ledger ----

// RecordExposure inserts an exposure record. A duplicate is a no-op.
func (s *Store) RecordExposure(ctx context.Context, e media.Exposure) error {
	if err := checkScope(e.Kind, e.Origin); err != nil {
		return err
	}
	at := e.ShownAt
	if at.IsZero() {
		at = s.now()
	}
	_, err := s.db.ExecContext(ctx, s.stmts.recordExposure,
		e.UserID, e.ContentID, string(e.Kind), string(e.Origin), at.Unix())
	return classify(err)
}

// CountExposures counts records for (user, kind, origin) with from <= shown_at < to.
func (s *Store) CountExposures(ctx context.Context, userID int64, kind media.Kind, origin media.Origin, from, to time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.stmts.countExposures,
		userID, string(kind), string(origin), from.Unix(), to.Unix()).Scan(&n)
	if err != nil {
		return 0, classify(err)
	}
	return n, nil
}

func checkScope(kind media.Kind, origin media.Origin) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", media.ErrUnknownKind, string(kind))
	}
	if !origin.Valid() {
		return fmt.Errorf("%w: %q", media.ErrUnknownOrigin, string(origin))
	}
	return nil
}

// claimKey is the advisory lock key of one (user, kind, origin) scope.
func claimKey(userID int64, kind media.Kind, origin media.Origin) int64 {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%d/%s/%s", userID, kind, origin)
	return int64(h.Sum64())
}

// Claim reserves one item for a delivery in one transaction. The quota count
// and the random pick include live claims of the same (user, kind, origin),
// and claims of one scope are serialized.
func (s *Store) Claim(ctx context.Context, req media.ClaimRequest) (media.Claim, error) {
	if err := checkScope(req.Kind, req.Origin); err != nil {
		return media.Claim{}, err
	}
	ks, err := s.stmts.forKind(req.Kind)
	if err != nil {
		return media.Claim{}, err
	}
	kind, origin := string(req.Kind), string(req.Origin)
	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return media.Claim{}, classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	if s.d.claimLock != "" {
		if _, err := tx.ExecContext(ctx, s.d.claimLock, claimKey(req.UserID, req.Kind, req.Origin)); err != nil {
			return media.Claim{}, classify(err)
		}
	}
	if _, err := tx.ExecContext(ctx, s.stmts.sweepHolds, now.Add(-holdTTL).Unix()); err != nil {
		return media.Claim{}, classify(err)
	}

	if q := req.Quota; q.Cap > 0 {
		var used int
		err := tx.QueryRowContext(ctx, s.stmts.countClaimed,
			req.UserID, kind, origin, q.From.Unix(), q.To.Unix(),
			req.UserID, kind, origin).Scan(&used)
		if err != nil {
			return media.Claim{}, classify(err)
		}
		if used >= q.Cap {
			return media.Claim{}, fmt.Errorf("%d/%d %s today: %w", used, q.Cap, kind, media.ErrQuotaExceeded)
		}
	}

	var it media.Item
	if req.ExplicitID != nil {
		it = media.Item{Kind: req.Kind}
		err = tx.QueryRowContext(ctx, ks.get, *req.ExplicitID).Scan(&it.ID, &it.Ref)
		if errors.Is(err, sql.ErrNoRows) {
			return media.Claim{}, fmt.Errorf("%s %d: %w", kind, *req.ExplicitID, media.ErrNotFound)
		}
		if err != nil {
			return media.Claim{}, classify(err)
		}
	} else {
		row := tx.QueryRowContext(ctx, ks.random, randomArgs(req.UserID, req.Kind, req.Origin)...)
		if it, err = scanRandom(row, req.Kind, req.UserID); err != nil {
			return media.Claim{}, err
		}
	}

	res, err := tx.ExecContext(ctx, s.stmts.insertHold, req.UserID, it.ID, kind, origin, now.Unix())
	if err != nil {
		return media.Claim{}, classify(err)
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return media.Claim{}, classify(err)
	}
	return media.Claim{Item: it, UserID: req.UserID, Origin: req.Origin, Held: n > 0}, nil
}

// ConfirmClaim turns a claim into an exposure record and drops its hold.
func (s *Store) ConfirmClaim(ctx context.Context, c media.Claim) error {
	if err := checkScope(c.Item.Kind, c.Origin); err != nil {
		return err
	}
	kind, origin := string(c.Item.Kind), string(c.Origin)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.stmts.recordExposure,
		c.UserID, c.Item.ID, kind, origin, s.now().Unix()); err != nil {
		return classify(err)
	}
	if c.Held {
		if _, err := tx.ExecContext(ctx, s.stmts.deleteHold, c.UserID, c.Item.ID, kind, origin); err != nil {
			return classify(err)
		}
	}
	return classify(tx.Commit())
}

// ReleaseClaim drops the hold of an undelivered claim. The item returns to
// the pool and the quota slot frees up.
func (s *Store) ReleaseClaim(ctx context.Context, c media.Claim) error {
	if !c.Held {
		return nil
	}
	_, err := s.db.ExecContext(ctx, s.stmts.deleteHold,
		c.UserID, c.Item.ID, string(c.Item.Kind), string(c.Origin))
	return classify(err)
}

// ---- feedback ----

// Tally returns the counters of an item; zero when no vote exists yet.
func (s *Store) Tally(ctx context.Context, kind media.Kind, contentID int64) (media.Tally, error) {
	var t media.Tally
	err := s.db.QueryRowContext(ctx, s.stmts.selectTally, contentID, string(kind)).Scan(&t.Likes, &t.Dislikes)
	if errors.Is(err, sql.ErrNoRows) {
		return media.Tally{}, nil
	}
	if err != nil {
		return media.Tally{}, classify(err)
	}
	return t, nil
}

// Vote applies one user's vote in a single transaction and returns the
// post-update tally. The vote insert runs last; its unique violation rolls
// the tally increment back and maps to media.ErrAlreadyVoted.
func (s *Store) Vote(ctx context.Context, v media.Vote) (media.Tally, error) {
	ks, err := s.stmts.forKind(v.Kind)
	if err != nil {
		return media.Tally{}, err
	}
	if !v.Vote.Valid() {
		return media.Tally{}, fmt.Errorf("invalid vote %q", string(v.Vote))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return media.Tally{}, classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	var ref string
	err = tx.QueryRowContext(ctx, ks.get, v.ContentID).Scan(&id, &ref)
	if errors.Is(err, sql.ErrNoRows) {
		return media.Tally{}, fmt.Errorf("%s %d: %w", v.Kind, v.ContentID, media.ErrNotFound)
	}
	if err != nil {
		return media.Tally{}, classify(err)
	}

	var prev string
	err = tx.QueryRowContext(ctx, s.stmts.selectVote, v.UserID, v.ContentID, string(v.Kind)).Scan(&prev)
	if err == nil {
		return media.Tally{}, media.ErrAlreadyVoted
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return media.Tally{}, classify(err)
	}

	var likes, dislikes int64
	if v.Vote == media.VoteLike {
		likes = 1
	} else {
		dislikes = 1
	}
	if _, err := tx.ExecContext(ctx, s.stmts.upsertTally, v.ContentID, string(v.Kind), likes, dislikes); err != nil {
		return media.Tally{}, classify(err)
	}
	if _, err := tx.ExecContext(ctx, s.stmts.insertVote, v.UserID, v.ContentID, string(v.Kind), string(v.Vote)); err != nil {
		if s.d.isUniqueViolation(err) {
			return media.Tally{}, media.ErrAlreadyVoted
		}
		return media.Tally{}, classify(err)
	}

	var t media.Tally
	if err := tx.QueryRowContext(ctx, s.stmts.selectTally, v.ContentID, string(v.Kind)).Scan(&t.Likes, &t.Dislikes); err != nil {
		return media.Tally{}, classify(err)
	}
	if err := tx.Commit(); err != nil {
		if s.d.isUniqueViolation(err) {
			return media.Tally{}, media.ErrAlreadyVoted
		}
		return media.Tally{}, classify(err)
	}
	return t, nil
}

// ---- users ----

// RegisterUser stores a user once; created is false when already present.
func (s *Store) RegisterUser(ctx context.Context, u media.User) (bool, error) {
	if u.Username == "" {
		u.Username = "Unknown"
	}
	at := u.JoinedAt
	if at.IsZero() {
		at = s.now()
	}
	res, err := s.db.ExecContext(ctx, s.stmts.registerUser, u.ID, u.Username, at.Unix())
	if err != nil {
		return false, classify(err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]media.User, error) {
	rows, err := s.db.QueryContext(ctx, s.stmts.listUsers)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []media.User
	for rows.Next() {
		var u media.User
		var joined int64
		if err := rows.Scan(&u.ID, &u.Username, &joined); err != nil {
			return nil, err
		}
		u.JoinedAt = time.Unix(joined, 0)
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, s.stmts.countUsers).Scan(&n); err != nil {
		return 0, classify(err)
	}
	return n, nil
}

// ---- privileged users ----

// AddPrivileged inserts an admin; created is false when the user is already privileged.
func (s *Store) AddPrivileged(ctx context.Context, p PrivilegedUser) (bool, error) {
	if p.Role == "" {
		p.Role = RoleAdmin
	}
	at := p.AddedAt
	if at.IsZero() {
		at = s.now()
	}
	res, err := s.db.ExecContext(ctx, s.stmts.insertPrivileged, p.UserID, string(p.Role), p.AddedBy, at.Unix())
	if err != nil {
		return false, classify(err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// SeedOwner inserts or promotes a user to owner.
func (s *Store) SeedOwner(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, s.stmts.seedOwner, userID, string(RoleOwner), int64(0), s.now().Unix())
	return classify(err)
}

// RemovePrivileged deletes a non-owner privileged user.
func (s *Store) RemovePrivileged(ctx context.Context, userID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.stmts.deletePrivileged, userID, string(RoleOwner))
	if err != nil {
		return false, classify(err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) ListPrivileged(ctx context.Context) ([]PrivilegedUser, error) {
	rows, err := s.db.QueryContext(ctx, s.stmts.listPrivileged)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []PrivilegedUser
	for rows.Next() {
		var p PrivilegedUser
		var role string
		var at int64
		if err := rows.Scan(&p.UserID, &role, &p.AddedBy, &at); err != nil {
			return nil, err
		}
		p.Role = Role(role)
		p.AddedAt = time.Unix(at, 0)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ---- gate channels ----

func (s *Store) AddChannel(ctx context.Context, c GateChannel) (bool, error) {
	at := c.AddedAt
	if at.IsZero() {
		at = s.now()
	}
	res, err := s.db.ExecContext(ctx, s.stmts.insertChannel, c.Username, c.AddedBy, at.Unix())
	if err != nil {
		return false, classify(err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) RemoveChannel(ctx context.Context, username string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.stmts.deleteChannel, username)
	if err != nil {
		return false, classify(err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) ListChannels(ctx context.Context) ([]GateChannel, error) {
	rows, err := s.db.QueryContext(ctx, s.stmts.listChannels)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []GateChannel
	for rows.Next() {
		var c GateChannel
		var at int64
		if err := rows.Scan(&c.Username, &c.AddedBy, &at); err != nil {
			return nil, err
		}
		c.AddedAt = time.Unix(at, 0)
		out = append(out, c)
	}
	return out, rows.Err()
}
