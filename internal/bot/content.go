package bot

import (
	"context"
	"errors"
	"strconv"

	"memebot/internal/delivery"
	"memebot/internal/media"
	kit "memebot/internal/transport"
	"memebot/internal/transport/telegram/router"
	logx "memebot/pkg/logx"
	"memebot/pkg/tgui"
)

const (
	actionNext  = "next"
	actionCheck = "check"
)

// contentCommand serves /video, /memes, /stickers and /voice. A positive
// numeric first argument requests that exact item.
func (b *Bot) contentCommand(kind media.Kind) router.HandlerFunc {
	return func(ctx context.Context, req *router.Request) error {
		if !b.gate.Allow(ctx, req) {
			return nil
		}
		var explicit *int64
		if len(req.Args) > 0 {
			if id, err := strconv.ParseInt(req.Args[0], 10, 64); err == nil && id > 0 {
				explicit = &id
			}
		}
		return b.deliver(ctx, req, kind, media.OriginCommand, explicit)
	}
}

// handleNext serves next_<kind>[_<id>].
func (b *Bot) handleNext(ctx context.Context, req *router.Request, payload string) error {
	args := tgui.Args(payload)
	if len(args) == 0 {
		return req.Answer(ctx, txtNotFound)
	}
	kind, err := media.ParseKind(args[0])
	if err != nil {
		return req.Answer(ctx, txtNotFound)
	}
	if !b.gate.Allow(ctx, req) {
		return nil
	}
	var explicit *int64
	if len(args) > 1 {
		if id, err := strconv.ParseInt(args[1], 10, 64); err == nil && id > 0 {
			explicit = &id
		}
	}
	return b.deliver(ctx, req, kind, media.OriginCallback, explicit)
}

func (b *Bot) deliver(ctx context.Context, req *router.Request, kind media.Kind, origin media.Origin, explicit *int64) error {
	_, err := b.delivery.Deliver(ctx, delivery.Request{
		UserID:     req.FromID,
		Kind:       kind,
		Origin:     origin,
		ExplicitID: explicit,
	}, b.sendTo(req.Chat, kind))
	if err == nil {
		return nil
	}
	text := b.deliveryErrorText(kind, err)
	if req.Callback != nil {
		return req.Answer(ctx, text)
	}
	return req.Reply(ctx, text)
}

func (b *Bot) deliveryErrorText(kind media.Kind, err error) string {
	switch {
	case errors.Is(err, media.ErrQuotaExceeded):
		return quotaText(b.delivery.DailyCap(), kind)
	case errors.Is(err, media.ErrExhausted):
		return exhaustedText(kind)
	case errors.Is(err, media.ErrNotFound):
		return txtNotFound
	}
	return txtFailure
}

// sendTo builds the delivery send: the media with its vote keyboard.
func (b *Bot) sendTo(to kit.ChatTarget, kind media.Kind) delivery.SendFunc {
	return func(ctx context.Context, d delivery.Delivered) error {
		opt := &kit.SendOptions{ReplyMarkupAdapter: contentKeyboard(kind, d.Item.ID, d.Tally).Markup()}
		_, err := b.adapter.SendMedia(ctx, to, kit.Media{Type: mediaTypes[kind], FileID: d.Item.Ref}, opt)
		return err
	}
}

// PushSender is the send used by the daily push: the user's private chat.
func (b *Bot) PushSender(userID int64, kind media.Kind) delivery.SendFunc {
	return b.sendTo(kit.ChatTarget{ChatID: userID}, kind)
}

// contentKeyboard renders 👍/👎 counters and the next button.
func contentKeyboard(kind media.Kind, id int64, t media.Tally) *tgui.Inline {
	sid := strconv.FormatInt(id, 10)
	return tgui.NewInline().
		Row(
			tgui.Btn("👍 "+strconv.FormatInt(t.Likes, 10), callbackData(string(media.VoteLike), string(kind), sid)),
			tgui.Btn("👎 "+strconv.FormatInt(t.Dislikes, 10), callbackData(string(media.VoteDislike), string(kind), sid)),
		).
		Row(tgui.Btn(txtNext, callbackData(actionNext, string(kind))))
}

// callbackData is tgui.Data for inputs that always fit: fixed actions, kinds
// and decimal ids.
func callbackData(action string, args ...string) string {
	s, _ := tgui.Data(action, args...)
	return s
}

// voteCallback serves like_<kind>_<id> and dislike_<kind>_<id>.
func (b *Bot) voteCallback(vote media.VoteKind) router.CallbackHandlerFunc {
	return func(ctx context.Context, req *router.Request, payload string) error {
		args := tgui.Args(payload)
		if len(args) != 2 {
			return req.Answer(ctx, txtNotFound)
		}
		kind, err := media.ParseKind(args[0])
		if err != nil {
			return req.Answer(ctx, txtNotFound)
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || id <= 0 {
			return req.Answer(ctx, txtNotFound)
		}

		tally, err := b.feedback.Vote(ctx, req.FromID, id, kind, vote)
		switch {
		case errors.Is(err, media.ErrAlreadyVoted):
			return req.Answer(ctx, txtAlreadyVoted)
		case errors.Is(err, media.ErrNotFound):
			return req.Answer(ctx, txtNotFound)
		case err != nil:
			return req.Answer(ctx, txtVoteFailed)
		}

		ref := kit.MessageRef{ChatID: req.Callback.ChatID, ThreadID: req.Callback.ThreadID, MessageID: req.Callback.MessageID}
		opt := &kit.SendOptions{ReplyMarkupAdapter: contentKeyboard(kind, id, tally).Markup()}
		if err := b.adapter.EditMarkup(ctx, ref, opt); err != nil {
			// the vote is stored; a stale keyboard is cosmetic
			req.Logger.Debug("vote keyboard refresh failed", logx.Err(err))
		}
		return req.Answer(ctx, txtVoteCounted)
	}
}

func (b *Bot) handleLuck(ctx context.Context, req *router.Request) error {
	if !b.gate.Allow(ctx, req) {
		return nil
	}
	r, err := b.luck.Read(ctx, req.FromID)
	if err != nil {
		req.Logger.Warn("luck read failed", logx.Err(err))
		return req.Reply(ctx, txtFailure)
	}
	return req.Reply(ctx, r.Text(nil))
}

func (b *Bot) handleStart(ctx context.Context, req *router.Request) error {
	created, err := b.catalog.RegisterUser(ctx, media.User{ID: req.FromID, Username: req.FromUsername})
	if err != nil {
		req.Logger.Error("register user failed", logx.Err(err))
	} else if created {
		req.Logger.Info("user registered", logx.String("username", req.FromUsername))
	}
	if !b.gate.Allow(ctx, req) {
		return nil
	}
	_, err = b.adapter.SendText(ctx, req.Chat, txtWelcome, &kit.SendOptions{ReplyMarkupAdapter: mainKeyboard()})
	return err
}

func (b *Bot) handleMenu(ctx context.Context, req *router.Request) error {
	return b.sendMenu(ctx, req.Chat)
}

func (b *Bot) sendMenu(ctx context.Context, to kit.ChatTarget) error {
	_, err := b.adapter.SendText(ctx, to, txtChooseCategory, &kit.SendOptions{ReplyMarkupAdapter: mainKeyboard()})
	return err
}

func mainKeyboard() any {
	return tgui.ReplyKeyboard(
		[]string{labelVideo, labelMemes},
		[]string{labelSticker, labelVoice},
		[]string{labelLuck},
	)
}
