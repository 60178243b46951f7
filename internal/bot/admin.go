package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"memebot/internal/access"
	"memebot/internal/media"
	"memebot/internal/push"
	"memebot/internal/storage"
	"memebot/internal/transport/telegram/router"
	logx "memebot/pkg/logx"
	"memebot/pkg/tgui"
)

// listRefs sends every stored file id of kind, split under the message limit.
func (b *Bot) listRefs(kind media.Kind) router.HandlerFunc {
	return func(ctx context.Context, req *router.Request) error {
		refs, err := b.catalog.ListMediaRefs(ctx, kind)
		if err != nil {
			req.Logger.Error("list refs failed", logx.String("kind", string(kind)), logx.Err(err))
			return req.Reply(ctx, txtFailure)
		}
		if len(refs) == 0 {
			return req.Reply(ctx, kindTexts[kind].empty)
		}
		lines := append([]string{kindTexts[kind].listHead}, refs...)
		for _, chunk := range tgui.ChunkLines(lines, tgui.MaxMessageLen) {
			if err := req.Reply(ctx, chunk); err != nil {
				return err
			}
		}
		return nil
	}
}

func (b *Bot) handleContentCount(ctx context.Context, req *router.Request) error {
	counts, err := b.catalog.CountItems(ctx)
	if err != nil {
		req.Logger.Error("count content failed", logx.Err(err))
		return req.Reply(ctx, txtFailure)
	}
	ub := tgui.New().Title("📊", "Статистика контента:")
	for _, k := range media.Kinds {
		ub.KV(kindTexts[k].label, strconv.FormatInt(counts[k], 10))
	}
	_, err = ub.Build().Send(ctx, b.adapter, req.Chat)
	return err
}

func (b *Bot) purge(kind media.Kind) router.HandlerFunc {
	return func(ctx context.Context, req *router.Request) error {
		n, err := b.catalog.PurgeKind(ctx, kind)
		if err != nil {
			req.Logger.Error("purge failed", logx.String("kind", string(kind)), logx.Err(err))
			return req.Reply(ctx, txtFailure)
		}
		req.Logger.Warn("content purged", logx.String("kind", string(kind)), logx.Int64("deleted", n))
		return req.Reply(ctx, fmt.Sprintf("%s (%d)", kindTexts[kind].purged, n))
	}
}

func userArg(req *router.Request) (int64, bool) {
	if len(req.Args) == 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(req.Args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (b *Bot) handleGrant(ctx context.Context, req *router.Request) error {
	id, ok := userArg(req)
	if !ok {
		return req.Reply(ctx, txtGrantUsage)
	}
	added, err := b.access.Grant(ctx, req.FromID, id)
	if err != nil {
		req.Logger.Error("grant failed", logx.Int64("user_id", id), logx.Err(err))
		return req.Reply(ctx, txtFailure)
	}
	if !added {
		return req.Reply(ctx, txtAlreadyAdmin)
	}
	return req.Reply(ctx, txtGranted)
}

func (b *Bot) handleRevoke(ctx context.Context, req *router.Request) error {
	id, ok := userArg(req)
	if !ok {
		return req.Reply(ctx, txtRevokeUsage)
	}
	removed, err := b.access.Revoke(ctx, req.FromID, id)
	switch {
	case errors.Is(err, access.ErrOwnerProtected):
		return req.Reply(ctx, txtOwnerRevoke)
	case err != nil:
		req.Logger.Error("revoke failed", logx.Int64("user_id", id), logx.Err(err))
		return req.Reply(ctx, txtFailure)
	case !removed:
		return req.Reply(ctx, txtNotAdmin)
	}
	return req.Reply(ctx, txtRevoked)
}

func (b *Bot) handleListPrivileged(ctx context.Context, req *router.Request) error {
	users := b.access.List(ctx)
	ub := tgui.New().Title("🛡", "Админы:")
	for _, u := range users {
		role := "админ"
		if u.Role == storage.RoleOwner {
			role = "владелец"
		}
		ub.RawLine(tgui.H("• " + tgui.Code(strconv.FormatInt(u.UserID, 10)).String() + " " + tgui.Esc(role).String()))
	}
	_, err := ub.Build().Send(ctx, b.adapter, req.Chat)
	return err
}

func (b *Bot) handleAddChannel(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return req.Reply(ctx, txtChannelUsageAdd)
	}
	name, err := access.NormalizeChannel(req.Args[0])
	if err != nil {
		return req.Reply(ctx, txtChannelFormatAdd)
	}
	added, err := b.access.AddChannel(ctx, req.FromID, name)
	if err != nil {
		req.Logger.Error("add channel failed", logx.String("channel", name), logx.Err(err))
		return req.Reply(ctx, txtFailure)
	}
	if !added {
		return req.Reply(ctx, fmt.Sprintf("Канал %s уже есть в списке.", name))
	}
	return req.Reply(ctx, fmt.Sprintf("Канал %s добавлен в список проверки.", name))
}

func (b *Bot) handleRemoveChannel(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return req.Reply(ctx, txtChannelUsageMinus)
	}
	name, err := access.NormalizeChannel(req.Args[0])
	if err != nil {
		return req.Reply(ctx, txtChannelFormatMinus)
	}
	removed, err := b.access.RemoveChannel(ctx, req.FromID, name)
	if err != nil {
		req.Logger.Error("remove channel failed", logx.String("channel", name), logx.Err(err))
		return req.Reply(ctx, txtFailure)
	}
	if !removed {
		return req.Reply(ctx, fmt.Sprintf("Канала %s не было в списке.", name))
	}
	return req.Reply(ctx, fmt.Sprintf("Канал %s теперь нет в списке.", name))
}

func (b *Bot) handleListChannels(ctx context.Context, req *router.Request) error {
	chs := b.access.Channels(ctx)
	if len(chs) == 0 {
		return req.Reply(ctx, txtChannelsEmpty)
	}
	return req.Reply(ctx, "Список каналов для проверки:\n"+strings.Join(chs, "\n"))
}

func (b *Bot) handlePushNow(ctx context.Context, req *router.Request) error {
	if b.pusher == nil {
		return req.Reply(ctx, txtPushDisabled)
	}
	_ = req.Reply(ctx, "Запускаю рассылку…")
	sum, err := b.pusher.RunNow(ctx)
	if errors.Is(err, push.ErrBusy) {
		return req.Reply(ctx, txtPushBusy)
	}
	if err != nil && sum.Users == 0 {
		req.Logger.Error("manual push failed", logx.Err(err))
		return req.Reply(ctx, txtFailure)
	}
	_, err = pushSummaryMessage("Рассылка завершена", sum).Send(ctx, b.adapter, req.Chat)
	return err
}

func (b *Bot) handlePushStatus(ctx context.Context, req *router.Request) error {
	if b.pusher == nil {
		return req.Reply(ctx, txtPushDisabled)
	}
	ub := tgui.New().Title("⏰", "Ежедневная рассылка").
		KV("Состояние", b.pusher.State().String())
	if next := b.pusher.Next(); !next.IsZero() {
		ub.KV("Следующий запуск", next.Format("2006-01-02 15:04 MST"))
	}
	last, ok := b.pusher.Last()
	if !ok {
		ub.KV("Последний запуск", txtPushNever)
		_, err := ub.Build().Send(ctx, b.adapter, req.Chat)
		return err
	}
	ub.Blank()
	appendPushSummary(ub, last)
	_, err := ub.Build().Send(ctx, b.adapter, req.Chat)
	return err
}

func pushSummaryMessage(title string, sum push.Summary) tgui.Message {
	ub := tgui.New().Title("📬", title)
	appendPushSummary(ub, sum)
	return ub.Build()
}

func appendPushSummary(ub *tgui.Builder, sum push.Summary) {
	trigger := "по расписанию"
	if sum.Manual {
		trigger = "вручную"
	}
	ub.KV("Запуск", sum.Started.Format("2006-01-02 15:04 MST")+", "+trigger).
		KV("Длительность", sum.Duration.Round(time.Millisecond).String()).
		KV("Пользователей", strconv.Itoa(sum.Users)).
		KV("Доставлено", strconv.Itoa(sum.Delivered)).
		KV("Всё просмотрено", strconv.Itoa(sum.Exhausted)).
		KV("Ошибок", strconv.Itoa(sum.Failed))
	if sum.Err != nil {
		ub.KV("Прервано", sum.Err.Error())
	}
}
