package bot

import (
	"context"
	"strings"

	kit "memebot/internal/transport"
	"memebot/internal/transport/telegram/router"
	logx "memebot/pkg/logx"
	"memebot/pkg/tgui"
)

// GateAccess is what the gate needs from the access lists.
type GateAccess interface {
	IsPrivileged(ctx context.Context, userID int64) bool
	Channels(ctx context.Context) []string
}

// Gate requires a subscription to every configured channel. Privileged users
// pass. Lookup failures count as not subscribed.
type Gate struct {
	adapter kit.Adapter
	access  GateAccess
	log     logx.Logger
}

func NewGate(adapter kit.Adapter, access GateAccess, log logx.Logger) *Gate {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Gate{adapter: adapter, access: access, log: log.With(logx.String("sub", "gate"))}
}

// Check returns the channels userID is missing; empty means the user passes.
func (g *Gate) Check(ctx context.Context, userID int64) []string {
	if g.access.IsPrivileged(ctx, userID) {
		return nil
	}
	var missing []string
	for _, ch := range g.access.Channels(ctx) {
		st, err := g.adapter.ChatMember(ctx, ch, userID)
		if err != nil {
			g.log.Warn("channel membership lookup failed",
				logx.String("channel", ch),
				logx.Int64("user_id", userID),
				logx.Err(err),
			)
			missing = append(missing, ch)
			continue
		}
		if !st.Subscribed() {
			missing = append(missing, ch)
		}
	}
	return missing
}

// Allow reports whether the request may proceed. Otherwise it sends the
// subscription prompt with one link per missing channel.
func (g *Gate) Allow(ctx context.Context, req *router.Request) bool {
	missing := g.Check(ctx, req.FromID)
	if len(missing) == 0 {
		return true
	}
	if req.Callback != nil {
		_ = req.Answer(ctx, txtGateStillNeeds)
	}
	if _, err := g.adapter.SendText(ctx, req.Chat, txtGatePrompt, &kit.SendOptions{
		DisablePreview:     true,
		ReplyMarkupAdapter: promptKeyboard(missing).Markup(),
	}); err != nil {
		req.Logger.Warn("gate prompt failed", logx.Err(err))
	}
	return false
}

func promptKeyboard(channels []string) *tgui.Inline {
	kb := tgui.NewInline()
	for _, ch := range channels {
		kb.Row(tgui.URLBtn(ch, "https://t.me/"+strings.TrimPrefix(ch, "@")))
	}
	return kb.Row(tgui.Btn(txtGateCheck, callbackData(actionCheck, "subscription")))
}

// handleCheckSubscription serves the check_subscription button.
func (b *Bot) handleCheckSubscription(ctx context.Context, req *router.Request, _ string) error {
	if missing := b.gate.Check(ctx, req.FromID); len(missing) > 0 {
		return req.Answer(ctx, txtGateStillNeeds)
	}
	_ = req.Answer(ctx, txtGateOK)
	if err := req.Reply(ctx, txtUnlocked); err != nil {
		return err
	}
	return b.sendMenu(ctx, req.Chat)
}
