// Package media holds the domain vocabulary shared by the content catalog,
// the delivery path and the feedback tally.
package media

import (
	"fmt"
	"strings"
	"time"
)

// Kind is a content category.
type Kind string

const (
	KindVideo   Kind = "video"
	KindMeme    Kind = "meme"
	KindSticker Kind = "sticker"
	KindVoice   Kind = "voice"
)

// Kinds lists every supported kind in display order.
var Kinds = []Kind{KindVideo, KindMeme, KindSticker, KindVoice}

func (k Kind) Valid() bool {
	switch k {
	case KindVideo, KindMeme, KindSticker, KindVoice:
		return true
	}
	return false
}

// ParseKind accepts the canonical names plus the plural forms used by commands
// ("memes", "stickers", "videos").
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "video", "videos":
		return KindVideo, nil
	case "meme", "memes":
		return KindMeme, nil
	case "sticker", "stickers":
		return KindSticker, nil
	case "voice", "voices":
		return KindVoice, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Origin is the request channel that produced a delivery. Quota and dedup are
// scoped per origin.
type Origin string

const (
	OriginCommand   Origin = "command"
	OriginCallback  Origin = "callback"
	OriginScheduled Origin = "scheduled"
)

func (o Origin) Valid() bool {
	switch o {
	case OriginCommand, OriginCallback, OriginScheduled:
		return true
	}
	return false
}

// VoteKind is the engagement signal on an item.
type VoteKind string

const (
	VoteLike    VoteKind = "like"
	VoteDislike VoteKind = "dislike"
)

func (v VoteKind) Valid() bool { return v == VoteLike || v == VoteDislike }

// Item is a catalog entry. Ref is the opaque transport media reference
// (a Telegram file_id).
type Item struct {
	ID   int64
	Kind Kind
	Ref  string
}

// Tally is the aggregate like/dislike counters for one item.
type Tally struct {
	Likes    int64
	Dislikes int64
}

// Exposure marks an item as delivered to a user under a kind/origin.
type Exposure struct {
	UserID    int64
	ContentID int64
	Kind      Kind
	Origin    Origin
	ShownAt   time.Time
}

// Quota bounds exposures per (user, kind, origin) within [From, To).
// Cap <= 0 means unlimited.
type Quota struct {
	Cap      int
	From, To time.Time
}

// ClaimRequest asks the store to reserve one item for a delivery. ExplicitID
// selects a specific item; nil picks a random unseen one.
type ClaimRequest struct {
	UserID     int64
	Kind       Kind
	Origin     Origin
	ExplicitID *int64
	Quota      Quota
}

// Claim is an item reserved for a pending delivery. Until it is confirmed or
// released it counts toward the quota and is excluded from random picks.
// Held is false when an identical reservation already existed.
type Claim struct {
	Item   Item
	UserID int64
	Origin Origin
	Held   bool
}

// Vote is one user's permanent vote on an item.
type Vote struct {
	UserID    int64
	ContentID int64
	Kind      Kind
	Vote      VoteKind
}

// User is a registered bot user; the broadcast and push audience.
type User struct {
	ID       int64
	Username string
	JoinedAt time.Time
}
