package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	"memebot/internal/broadcast"
	"memebot/internal/media"
	"memebot/internal/transport/telegram/router"
	logx "memebot/pkg/logx"
)

// sessionTTL expires forgotten modes.
const sessionTTL = 30 * time.Minute

type mode int

const (
	modeUpload mode = iota + 1
	modeBroadcast
)

type session struct {
	mode    mode
	kind    media.Kind // upload only
	expires time.Time
}

// sessions holds at most one active mode per user.
type sessions struct {
	mu  sync.Mutex
	ttl time.Duration
	now func() time.Time
	m   map[int64]session
}

func newSessions(ttl time.Duration) *sessions {
	return &sessions{ttl: ttl, now: time.Now, m: map[int64]session{}}
}

func (s *sessions) set(userID int64, sess session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.expires = s.now().Add(s.ttl)
	s.m[userID] = sess
}

func (s *sessions) get(userID int64) (session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[userID]
	if !ok {
		return session{}, false
	}
	if s.now().After(sess.expires) {
		delete(s.m, userID)
		return session{}, false
	}
	return sess, true
}

// touch extends an active session.
func (s *sessions) touch(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.m[userID]; ok {
		sess.expires = s.now().Add(s.ttl)
		s.m[userID] = sess
	}
}

func (s *sessions) end(userID int64) (session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[userID]
	delete(s.m, userID)
	if ok && s.now().After(sess.expires) {
		return session{}, false
	}
	return sess, ok
}

func (b *Bot) intercept(ctx context.Context, req *router.Request) (bool, error) {
	if req.Message == nil {
		return false, nil
	}
	sess, ok := b.sessions.get(req.FromID)
	if !ok {
		return false, nil
	}
	if !b.access.IsPrivileged(ctx, req.FromID) {
		// revoked while in a mode
		b.sessions.end(req.FromID)
		return false, nil
	}
	switch sess.mode {
	case modeUpload:
		return true, b.acceptUpload(ctx, req, sess.kind)
	case modeBroadcast:
		b.sessions.touch(req.FromID)
		return true, b.relayBroadcast(ctx, req)
	}
	return false, nil
}

func (b *Bot) startUpload(kind media.Kind) router.HandlerFunc {
	return func(ctx context.Context, req *router.Request) error {
		b.sessions.set(req.FromID, session{mode: modeUpload, kind: kind})
		return req.Reply(ctx, uploadPrompt(kind))
	}
}

// acceptUpload stores the media of the expected type and ends the mode.
// Anything else is rejected and the mode stays.
func (b *Bot) acceptUpload(ctx context.Context, req *router.Request, kind media.Kind) error {
	m := req.Message.Media
	if m == nil || m.Type != mediaTypes[kind] || m.FileID == "" {
		return req.Reply(ctx, txtUploadWrong)
	}
	item, created, err := b.catalog.AddItem(ctx, kind, m.FileID)
	if err != nil {
		req.Logger.Error("add content failed", logx.String("kind", string(kind)), logx.Err(err))
		return req.Reply(ctx, txtFailure)
	}
	b.sessions.end(req.FromID)
	req.Logger.Info("content added",
		logx.String("kind", string(kind)),
		logx.Int64("content_id", item.ID),
		logx.Bool("created", created),
	)
	if !created {
		return req.Reply(ctx, kindTexts[kind].exists)
	}
	return req.Reply(ctx, kindTexts[kind].added)
}

func (b *Bot) handleBroadcastStart(ctx context.Context, req *router.Request) error {
	b.sessions.set(req.FromID, session{mode: modeBroadcast})
	return req.Reply(ctx, txtBroadcastStart)
}

// relayBroadcast sends the message (text or media with caption) to every user.
func (b *Bot) relayBroadcast(ctx context.Context, req *router.Request) error {
	p := broadcast.Payload{Text: req.Message.Text}
	if m := req.Message.Media; m != nil {
		mm := *m
		p = broadcast.Payload{Media: &mm}
	}
	res, err := b.broadcast.Broadcast(ctx, p)
	switch {
	case errors.Is(err, broadcast.ErrEmptyPayload):
		return req.Reply(ctx, txtBroadcastUnsupported)
	case err != nil && res.Attempted == 0:
		req.Logger.Error("broadcast failed", logx.Err(err))
		return req.Reply(ctx, txtFailure)
	case err != nil:
		req.Logger.Warn("broadcast interrupted", logx.Int("succeeded", res.Succeeded), logx.Err(err))
	}
	return req.Reply(ctx, broadcastDone(res.Succeeded, res.Failed()))
}

// handleStop leaves whichever mode the user is in.
func (b *Bot) handleStop(ctx context.Context, req *router.Request) error {
	sess, ok := b.sessions.end(req.FromID)
	if !ok {
		return req.Reply(ctx, txtNoMode)
	}
	if sess.mode == modeBroadcast {
		return req.Reply(ctx, txtBroadcastStop)
	}
	return req.Reply(ctx, txtUploadCanceled)
}
