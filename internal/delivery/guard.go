package delivery

import (
	"context"
	"time"

	"memebot/internal/media"
)

// DefaultDailyCap is the number of deliveries allowed per (user, kind, origin)
// per calendar day.
const DefaultDailyCap = 15

// Privileges reports whether a user bypasses quotas.
type Privileges interface {
	IsPrivileged(ctx context.Context, userID int64) bool
}

// Guard computes the quota a claim is admitted against. The count itself
// happens inside the store's claim transaction.
type Guard struct {
	access Privileges
	cap    int
	loc    *time.Location
	now    func() time.Time
}

func NewGuard(access Privileges, dailyCap int, loc *time.Location) *Guard {
	if dailyCap <= 0 {
		dailyCap = DefaultDailyCap
	}
	if loc == nil {
		loc = time.Local
	}
	return &Guard{access: access, cap: dailyCap, loc: loc, now: time.Now}
}

// Cap is the effective daily limit per (user, kind, origin).
func (g *Guard) Cap() int { return g.cap }

// Quota is today's window for userID. Privileged users get an unlimited quota.
func (g *Guard) Quota(ctx context.Context, userID int64) media.Quota {
	if g.access != nil && g.access.IsPrivileged(ctx, userID) {
		return media.Quota{}
	}
	from, to := dayBounds(g.now(), g.loc)
	return media.Quota{Cap: g.cap, From: from, To: to}
}

// dayBounds returns [start of day, start of next day) of t in loc.
func dayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	t = t.In(loc)
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
