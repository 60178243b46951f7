// Package delivery picks content for a user and records what was shown.
//
// Flow per request: the store claims an item under the quota (explicit id or
// random unseen), then the caller's send, then the claim is confirmed into
// exactly one exposure record. A failed send releases the claim.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"memebot/internal/eventbus"
	"memebot/internal/media"
	"memebot/internal/observability/metrics"
	logx "memebot/pkg/logx"
)

// Store is the catalog and ledger surface the selector needs.
type Store interface {
	Claim(ctx context.Context, req media.ClaimRequest) (media.Claim, error)
	ConfirmClaim(ctx context.Context, c media.Claim) error
	ReleaseClaim(ctx context.Context, c media.Claim) error
	Tally(ctx context.Context, kind media.Kind, contentID int64) (media.Tally, error)
}

// ResultExposureFailed labels a delivery that reached the user but whose
// exposure record could not be written.
const ResultExposureFailed = "exposure_failed"

// releaseTimeout bounds the cleanup of a claim after a failed send.
const releaseTimeout = 5 * time.Second

// Request asks for one item. ExplicitID skips the unseen filter but not the quota.
type Request struct {
	UserID     int64
	Kind       media.Kind
	Origin     media.Origin
	ExplicitID *int64
}

// Delivered is the item handed to the sender, with its current tally.
type Delivered struct {
	Item  media.Item
	Tally media.Tally
}

// SendFunc renders and transmits a delivery. A non-nil error means the user
// did not receive it.
type SendFunc func(ctx context.Context, d Delivered) error

type Config struct {
	DailyCap int
	Location *time.Location
}

type Deps struct {
	Store   Store
	Access  Privileges
	Metrics *metrics.Metrics
	Bus     eventbus.Bus
	Log     logx.Logger
}

type Service struct {
	store   Store
	access  Privileges
	metrics *metrics.Metrics
	bus     eventbus.Bus
	log     logx.Logger

	guard atomic.Pointer[Guard]
}

func New(cfg Config, deps Deps) *Service {
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		store:   deps.Store,
		access:  deps.Access,
		metrics: deps.Metrics,
		bus:     deps.Bus,
		log:     log.With(logx.String("comp", "delivery")),
	}
	s.Apply(cfg)
	return s
}

// Apply swaps the quota settings; safe during hot reload.
func (s *Service) Apply(cfg Config) {
	s.guard.Store(NewGuard(s.access, cfg.DailyCap, cfg.Location))
}

// DailyCap is the active daily limit.
func (s *Service) DailyCap() int { return s.guard.Load().Cap() }

// Deliver runs the interactive flow: claim under the quota, send, confirm.
func (s *Service) Deliver(ctx context.Context, req Request, send SendFunc) (Delivered, error) {
	if err := checkRequest(req.Kind, req.Origin); err != nil {
		return Delivered{}, err
	}
	return s.deliver(ctx, req, s.guard.Load().Quota(ctx, req.UserID), send)
}

// DeliverScheduled runs the push flow: origin scheduled, no quota.
func (s *Service) DeliverScheduled(ctx context.Context, userID int64, kind media.Kind, send SendFunc) (Delivered, error) {
	if err := checkRequest(kind, media.OriginScheduled); err != nil {
		return Delivered{}, err
	}
	req := Request{UserID: userID, Kind: kind, Origin: media.OriginScheduled}
	return s.deliver(ctx, req, media.Quota{}, send)
}

func checkRequest(kind media.Kind, origin media.Origin) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", media.ErrUnknownKind, string(kind))
	}
	if !origin.Valid() {
		return fmt.Errorf("%w: %q", media.ErrUnknownOrigin, string(origin))
	}
	return nil
}

func (s *Service) deliver(ctx context.Context, req Request, quota media.Quota, send SendFunc) (Delivered, error) {
	claim, err := s.store.Claim(ctx, media.ClaimRequest{
		UserID:     req.UserID,
		Kind:       req.Kind,
		Origin:     req.Origin,
		ExplicitID: req.ExplicitID,
		Quota:      quota,
	})
	if err != nil {
		s.observe(req, 0, media.Class(err), err)
		return Delivered{}, err
	}
	item := claim.Item

	tally, err := s.store.Tally(ctx, req.Kind, item.ID)
	if err != nil {
		s.release(ctx, claim)
		s.observe(req, item.ID, media.Class(err), err)
		return Delivered{}, fmt.Errorf("load tally: %w", err)
	}
	d := Delivered{Item: item, Tally: tally}

	if err := send(ctx, d); err != nil {
		s.release(ctx, claim)
		err = fmt.Errorf("%w: %w", media.ErrDeliveryFailed, err)
		s.observe(req, item.ID, media.Class(err), err)
		return Delivered{}, err
	}

	if err := s.store.ConfirmClaim(ctx, claim); err != nil {
		// the user has the item; the hold keeps it out of the pool until it expires
		s.log.Error("record exposure failed",
			logx.Int64("user_id", req.UserID),
			logx.Int64("content_id", item.ID),
			logx.String("kind", string(req.Kind)),
			logx.String("origin", string(req.Origin)),
			logx.Err(err),
		)
		s.observe(req, item.ID, ResultExposureFailed, nil)
		return d, nil
	}
	s.observe(req, item.ID, media.Class(nil), nil)
	return d, nil
}

// release drops a claim after a failed delivery, even when ctx is done.
func (s *Service) release(ctx context.Context, c media.Claim) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := s.store.ReleaseClaim(ctx, c); err != nil {
		s.log.Warn("release claim failed",
			logx.Int64("user_id", c.UserID),
			logx.Int64("content_id", c.Item.ID),
			logx.String("kind", string(c.Item.Kind)),
			logx.Err(err),
		)
	}
}

// Event payload published on TopicDelivery.
type Event struct {
	UserID    int64
	Kind      media.Kind
	Origin    media.Origin
	ContentID int64
	Result    string
}

const TopicDelivery = "delivery.completed"

func (s *Service) observe(req Request, contentID int64, result string, err error) {
	s.metrics.Delivery(string(req.Kind), string(req.Origin), result)
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: TopicDelivery, Data: Event{
			UserID: req.UserID, Kind: req.Kind, Origin: req.Origin, ContentID: contentID, Result: result,
		}})
	}
	if err != nil && !isExpected(err) {
		s.log.Warn("delivery failed",
			logx.Int64("user_id", req.UserID),
			logx.String("kind", string(req.Kind)),
			logx.String("origin", string(req.Origin)),
			logx.Err(err),
		)
	}
}

// isExpected reports outcomes that are normal product behavior, not faults.
func isExpected(err error) bool {
	return errors.Is(err, media.ErrExhausted) ||
		errors.Is(err, media.ErrQuotaExceeded) ||
		errors.Is(err, media.ErrNotFound)
}
