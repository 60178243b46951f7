// Package bot is the chat surface: command and callback handlers, the reply
// keyboard, the subscription gate and the upload/broadcast modes. Business
// rules live in delivery, feedback, broadcast and push; handlers only map
// requests and errors to messages.
package bot

import (
	"context"
	"time"

	"memebot/internal/access"
	"memebot/internal/broadcast"
	"memebot/internal/delivery"
	"memebot/internal/luck"
	"memebot/internal/media"
	"memebot/internal/push"
	"memebot/internal/storage"
	kit "memebot/internal/transport"
	"memebot/internal/transport/telegram/router"
	logx "memebot/pkg/logx"
)

// Catalog is the content and user surface of the store.
type Catalog interface {
	AddItem(ctx context.Context, kind media.Kind, ref string) (media.Item, bool, error)
	PurgeKind(ctx context.Context, kind media.Kind) (int64, error)
	CountItems(ctx context.Context) (map[media.Kind]int64, error)
	ListMediaRefs(ctx context.Context, kind media.Kind) ([]string, error)
	RegisterUser(ctx context.Context, u media.User) (bool, error)
}

type Deliverer interface {
	Deliver(ctx context.Context, req delivery.Request, send delivery.SendFunc) (delivery.Delivered, error)
	DailyCap() int
}

type Voter interface {
	Vote(ctx context.Context, userID, contentID int64, kind media.Kind, vote media.VoteKind) (media.Tally, error)
}

// Access is the privileged list and gate channel list.
type Access interface {
	IsPrivileged(ctx context.Context, userID int64) bool
	IsOwner(ctx context.Context, userID int64) bool
	Grant(ctx context.Context, actor, userID int64) (bool, error)
	Revoke(ctx context.Context, actor, userID int64) (bool, error)
	List(ctx context.Context) []storage.PrivilegedUser
	AddChannel(ctx context.Context, actor int64, name string) (bool, error)
	RemoveChannel(ctx context.Context, actor int64, name string) (bool, error)
	Channels(ctx context.Context) []string
}

type Luck interface {
	Read(ctx context.Context, userID int64) (luck.Reading, error)
}

type Broadcaster interface {
	Broadcast(ctx context.Context, p broadcast.Payload) (broadcast.Result, error)
}

// Pusher controls the daily push. It is optional.
type Pusher interface {
	RunNow(ctx context.Context) (push.Summary, error)
	State() push.State
	Last() (push.Summary, bool)
	Next() time.Time
}

type Deps struct {
	Adapter   kit.Adapter
	Catalog   Catalog
	Delivery  Deliverer
	Feedback  Voter
	Access    Access
	Luck      Luck
	Broadcast Broadcaster
	Log       logx.Logger
}

type Bot struct {
	adapter   kit.Adapter
	catalog   Catalog
	delivery  Deliverer
	feedback  Voter
	access    Access
	luck      Luck
	broadcast Broadcaster
	log       logx.Logger

	gate     *Gate
	sessions *sessions
	pusher   Pusher
}

var _ Access = (*access.Service)(nil)

func New(deps Deps) *Bot {
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "bot"))
	return &Bot{
		adapter:   deps.Adapter,
		catalog:   deps.Catalog,
		delivery:  deps.Delivery,
		feedback:  deps.Feedback,
		access:    deps.Access,
		luck:      deps.Luck,
		broadcast: deps.Broadcast,
		log:       log,
		gate:      NewGate(deps.Adapter, deps.Access, log),
		sessions:  newSessions(sessionTTL),
	}
}

// SetPusher attaches the daily push trigger. Call before serving updates.
func (b *Bot) SetPusher(p Pusher) { b.pusher = p }

// Gate exposes the subscription gate.
func (b *Bot) Gate() *Gate { return b.gate }

// Interceptor routes non-command messages of users in upload or broadcast mode.
func (b *Bot) Interceptor() router.Interceptor { return b.intercept }

// Commands is the full command registry.
func (b *Bot) Commands() []router.Command {
	return []router.Command{
		{Route: "start", Description: "регистрация и приветствие", Handle: b.handleStart},
		{Route: "menu", Description: "клавиатура с категориями", Handle: b.handleMenu},
		{Route: "video", Description: "случайное видео", Usage: "/video [id]", Triggers: []string{labelVideo}, Handle: b.contentCommand(media.KindVideo)},
		{Route: "memes", Description: "случайный мем", Usage: "/memes [id]", Triggers: []string{labelMemes}, Handle: b.contentCommand(media.KindMeme)},
		{Route: "stickers", Aliases: []string{"s"}, Description: "случайный стикер", Usage: "/stickers [id]", Triggers: []string{labelSticker}, Handle: b.contentCommand(media.KindSticker)},
		{Route: "voice", Aliases: []string{"vo"}, Description: "случайная голосовуха", Usage: "/voice [id]", Triggers: []string{labelVoice}, Handle: b.contentCommand(media.KindVoice)},
		{Route: "luck", Description: "уровень удачи на сегодня", Triggers: []string{labelLuck}, Handle: b.handleLuck},
		{Route: "stop", Description: "выйти из режима рассылки или добавления", Handle: b.handleStop},

		{Route: "addvideo", Description: "добавить видео", Access: router.AccessPrivileged, Handle: b.startUpload(media.KindVideo)},
		{Route: "addmeme", Description: "добавить мем", Access: router.AccessPrivileged, Handle: b.startUpload(media.KindMeme)},
		{Route: "addsticker", Description: "добавить стикер", Access: router.AccessPrivileged, Handle: b.startUpload(media.KindSticker)},
		{Route: "addvoice", Description: "добавить голосовуху", Access: router.AccessPrivileged, Handle: b.startUpload(media.KindVoice)},

		{Route: "get_all_video_ids", Description: "file_id всех видео", Access: router.AccessPrivileged, Handle: b.listRefs(media.KindVideo)},
		{Route: "get_all_memes_ids", Description: "file_id всех мемов", Access: router.AccessPrivileged, Handle: b.listRefs(media.KindMeme)},
		{Route: "get_all_stickers_ids", Description: "file_id всех стикеров", Access: router.AccessPrivileged, Handle: b.listRefs(media.KindSticker)},
		{Route: "get_all_voice_ids", Description: "file_id всех голосовух", Access: router.AccessPrivileged, Handle: b.listRefs(media.KindVoice)},
		{Route: "content_count", Description: "статистика контента", Access: router.AccessPrivileged, Handle: b.handleContentCount},

		{Route: "delete_all_videos", Description: "удалить все видео", Access: router.AccessOwner, Handle: b.purge(media.KindVideo)},
		{Route: "delete_all_memes", Description: "удалить все мемы", Access: router.AccessOwner, Handle: b.purge(media.KindMeme)},
		{Route: "delete_all_stickers", Description: "удалить все стикеры", Access: router.AccessOwner, Handle: b.purge(media.KindSticker)},
		{Route: "delete_all_voice", Description: "удалить все голосовухи", Access: router.AccessOwner, Handle: b.purge(media.KindVoice)},

		{Route: "dobro", Description: "выдать админку", Usage: "/dobro <id>", Access: router.AccessOwner, Handle: b.handleGrant},
		{Route: "pshlnx", Description: "забрать админку", Usage: "/pshlnx <id>", Access: router.AccessOwner, Handle: b.handleRevoke},
		{Route: "spisok_ebanko", Description: "список админов", Access: router.AccessPrivileged, Handle: b.handleListPrivileged},

		{Route: "add_channel", Description: "добавить канал для проверки подписки", Usage: "/add_channel @channel", Access: router.AccessPrivileged, Handle: b.handleAddChannel},
		{Route: "minus_channel", Description: "убрать канал из проверки", Usage: "/minus_channel @channel", Access: router.AccessPrivileged, Handle: b.handleRemoveChannel},
		{Route: "list_channels", Description: "каналы для проверки подписки", Access: router.AccessPrivileged, Handle: b.handleListChannels},

		{Route: "otpravka", Description: "режим рассылки", Access: router.AccessPrivileged, Handle: b.handleBroadcastStart},
		{Route: "push_now", Description: "запустить ежедневную рассылку сейчас", Access: router.AccessOwner, Timeout: 30 * time.Minute, Handle: b.handlePushNow},
		{Route: "push_status", Description: "статус ежедневной рассылки", Access: router.AccessOwner, Handle: b.handlePushStatus},
	}
}

// Callbacks is the inline button registry.
func (b *Bot) Callbacks() []router.CallbackRoute {
	return []router.CallbackRoute{
		{Action: string(media.VoteLike), Description: "лайк", Handle: b.voteCallback(media.VoteLike)},
		{Action: string(media.VoteDislike), Description: "дизлайк", Handle: b.voteCallback(media.VoteDislike)},
		{Action: actionNext, Description: "следующее", Handle: b.handleNext},
		{Action: actionCheck, Description: "проверка подписки", Handle: b.handleCheckSubscription},
	}
}
