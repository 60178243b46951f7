// Package transport defines the chat-platform boundary: inbound updates and
// the outbound operations the bot needs. The Telegram implementation lives in
// transport/telegram/adapter.
package transport

import (
	"context"
	"errors"
)

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

// MediaType is the platform media class of an attachment.
type MediaType string

const (
	MediaPhoto     MediaType = "photo"
	MediaVideo     MediaType = "video"
	MediaAnimation MediaType = "animation"
	MediaDocument  MediaType = "document"
	MediaAudio     MediaType = "audio"
	MediaVoice     MediaType = "voice"
	MediaSticker   MediaType = "sticker"
)

// Media is an attachment referenced by its platform file id.
type Media struct {
	Type    MediaType
	FileID  string
	Caption string
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // telegram forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string
	Media        *Media // nil for plain text
	IsGroup      bool
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	ThreadID  int
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

// MemberStatus is a user's status in a channel.
type MemberStatus string

const (
	MemberCreator       MemberStatus = "creator"
	MemberAdministrator MemberStatus = "administrator"
	MemberMember        MemberStatus = "member"
	MemberRestricted    MemberStatus = "restricted"
	MemberLeft          MemberStatus = "left"
	MemberKicked        MemberStatus = "kicked"
)

// Subscribed reports whether the status counts as a channel subscription.
func (s MemberStatus) Subscribed() bool {
	return s == MemberCreator || s == MemberAdministrator || s == MemberMember
}

var ErrUnsupportedMedia = errors.New("unsupported media type")

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendMedia(ctx context.Context, to ChatTarget, m Media, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	// EditMarkup replaces only the inline keyboard of a sent message.
	EditMarkup(ctx context.Context, ref MessageRef, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
	// ChatMember looks up userID in a public channel given as "@name".
	ChatMember(ctx context.Context, channel string, userID int64) (MemberStatus, error)
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus (e.g. Telegram /menu list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
