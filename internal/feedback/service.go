// Package feedback records like/dislike votes. A vote is permanent: one per
// (user, item, kind), never changed or retracted.
package feedback

import (
	"context"
	"errors"
	"fmt"

	"memebot/internal/eventbus"
	"memebot/internal/media"
	"memebot/internal/observability/metrics"
	logx "memebot/pkg/logx"
)

// Store applies a vote atomically and returns the post-update tally.
type Store interface {
	Vote(ctx context.Context, v media.Vote) (media.Tally, error)
}

const TopicVote = "feedback.voted"

// Event payload published on TopicVote.
type Event struct {
	UserID    int64
	ContentID int64
	Kind      media.Kind
	Vote      media.VoteKind
	Result    string
	Tally     media.Tally
}

type Service struct {
	store   Store
	metrics *metrics.Metrics
	bus     eventbus.Bus
	log     logx.Logger
}

func New(store Store, m *metrics.Metrics, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{store: store, metrics: m, bus: bus, log: log.With(logx.String("comp", "feedback"))}
}

// Vote records the user's vote and returns the item's updated counters.
// Errors: media.ErrAlreadyVoted, media.ErrNotFound, media.ErrUnknownKind.
func (s *Service) Vote(ctx context.Context, userID, contentID int64, kind media.Kind, vote media.VoteKind) (media.Tally, error) {
	if !kind.Valid() {
		return media.Tally{}, fmt.Errorf("%w: %q", media.ErrUnknownKind, string(kind))
	}
	if !vote.Valid() {
		return media.Tally{}, fmt.Errorf("invalid vote %q", string(vote))
	}

	t, err := s.store.Vote(ctx, media.Vote{UserID: userID, ContentID: contentID, Kind: kind, Vote: vote})
	result := media.Class(err)
	s.metrics.Vote(string(kind), string(vote), result)
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: TopicVote, Data: Event{
			UserID: userID, ContentID: contentID, Kind: kind, Vote: vote, Result: result, Tally: t,
		}})
	}
	if err != nil {
		if !errors.Is(err, media.ErrAlreadyVoted) && !errors.Is(err, media.ErrNotFound) {
			s.log.Error("vote failed",
				logx.Int64("user_id", userID),
				logx.Int64("content_id", contentID),
				logx.String("kind", string(kind)),
				logx.Err(err),
			)
		}
		return media.Tally{}, err
	}
	s.log.Debug("vote recorded",
		logx.Int64("user_id", userID),
		logx.Int64("content_id", contentID),
		logx.String("kind", string(kind)),
		logx.String("vote", string(vote)),
	)
	return t, nil
}
