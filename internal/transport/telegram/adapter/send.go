package adapter

import (
	"context"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	kit "memebot/internal/transport"
)

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}

	chunks := splitTelegramText(text, telegramTextLimit, opt.ParseMode)
	if len(chunks) == 0 {
		chunks = []string{""}
	}

	chat := &tele.Chat{ID: to.ChatID}

	var first kit.MessageRef
	for i, chunk := range chunks {
		if ctx != nil {
			select {
			case <-ctx.Done():
				if first.ChatID != 0 {
					return first, ctx.Err()
				}
				return kit.MessageRef{}, ctx.Err()
			default:
			}
		}

		// markup rides on the first chunk only
		sendOpt := sendOptions(to, opt)
		if i > 0 {
			sendOpt.ReplyMarkup = nil
		}

		msg, err := a.bot.Send(chat, chunk, sendOpt)
		if err != nil {
			if first.ChatID != 0 {
				return first, err
			}
			return kit.MessageRef{}, err
		}

		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}

	return first, nil
}

func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	if opt == nil {
		opt = &kit.SendOptions{}
	}

	chunks := splitTelegramText(text, telegramTextLimit, opt.ParseMode)
	if len(chunks) == 0 {
		chunks = []string{""}
	}

	to := kit.ChatTarget{ChatID: ref.ChatID, ThreadID: ref.ThreadID}
	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	editOpt := sendOptions(to, opt)
	editOpt.ThreadID = 0
	if _, err := a.bot.Edit(m, chunks[0], editOpt); err != nil {
		return err
	}

	// overflow beyond one message goes out as new messages
	chat := &tele.Chat{ID: to.ChatID}
	for _, chunk := range chunks[1:] {
		if ctx != nil {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		more := sendOptions(to, opt)
		more.ReplyMarkup = nil
		if _, err := a.bot.Send(chat, chunk, more); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text})
}

func sendOptions(to kit.ChatTarget, opt *kit.SendOptions) *tele.SendOptions {
	so := &tele.SendOptions{ThreadID: to.ThreadID}
	if opt == nil {
		return so
	}
	so.ParseMode = opt.ParseMode
	so.DisableWebPagePreview = opt.DisablePreview
	if rm, ok := opt.ReplyMarkupAdapter.(*tele.ReplyMarkup); ok {
		so.ReplyMarkup = rm
	}
	return so
}

// SendMedia re-sends an attachment by file id. Stickers carry no caption.
func (a *Adapter) SendMedia(ctx context.Context, to kit.ChatTarget, m kit.Media, opt *kit.SendOptions) (kit.MessageRef, error) {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return kit.MessageRef{}, err
		}
	}
	if strings.TrimSpace(m.FileID) == "" {
		return kit.MessageRef{}, fmt.Errorf("empty file id for %s", m.Type)
	}
	file := tele.File{FileID: m.FileID}
	var what any
	switch m.Type {
	case kit.MediaPhoto:
		what = &tele.Photo{File: file, Caption: m.Caption}
	case kit.MediaVideo:
		what = &tele.Video{File: file, Caption: m.Caption}
	case kit.MediaAnimation:
		what = &tele.Animation{File: file, Caption: m.Caption}
	case kit.MediaDocument:
		what = &tele.Document{File: file, Caption: m.Caption}
	case kit.MediaAudio:
		what = &tele.Audio{File: file, Caption: m.Caption}
	case kit.MediaVoice:
		what = &tele.Voice{File: file, Caption: m.Caption}
	case kit.MediaSticker:
		what = &tele.Sticker{File: file}
	default:
		return kit.MessageRef{}, fmt.Errorf("%w: %q", kit.ErrUnsupportedMedia, string(m.Type))
	}

	msg, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, what, sendOptions(to, opt))
	if err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}, nil
}

// EditMarkup swaps the inline keyboard of a message, leaving its content alone.
func (a *Adapter) EditMarkup(ctx context.Context, ref kit.MessageRef, opt *kit.SendOptions) error {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	var rm *tele.ReplyMarkup
	if opt != nil {
		rm, _ = opt.ReplyMarkupAdapter.(*tele.ReplyMarkup)
	}
	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	_, err := a.bot.EditReplyMarkup(m, rm)
	if err != nil && strings.Contains(err.Error(), "message is not modified") {
		return nil
	}
	return err
}

// ChatMember resolves channel ("@name") once and reports userID's status in it.
func (a *Adapter) ChatMember(ctx context.Context, channel string, userID int64) (kit.MemberStatus, error) {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return "", err
		}
	}
	chat, err := a.resolveChat(channel)
	if err != nil {
		return "", err
	}
	cm, err := a.bot.ChatMemberOf(chat, &tele.User{ID: userID})
	if err != nil {
		return "", err
	}
	return kit.MemberStatus(cm.Role), nil
}

func (a *Adapter) resolveChat(channel string) (*tele.Chat, error) {
	a.chatMu.Lock()
	c := a.chatCache[channel]
	a.chatMu.Unlock()
	if c != nil {
		return c, nil
	}
	c, err := a.bot.ChatByUsername(channel)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", channel, err)
	}
	a.chatMu.Lock()
	a.chatCache[channel] = c
	a.chatMu.Unlock()
	return c, nil
}
