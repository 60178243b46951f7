// Package adapter implements transport.Adapter on top of telebot.
package adapter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "memebot/internal/transport"
	rtsup "memebot/internal/runtime/supervisor"
	logx "memebot/pkg/logx"
)

// Config configures the Telegram adapter.
type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	out     atomic.Value // stores (chan<- kit.Update)
	runMu   sync.Mutex
	running bool

	// sup owns the poll loop, the drop reporter and the stop watcher.
	sup *rtsup.Supervisor

	// droppedUpdates counts updates dropped because the consumer was slower
	// than the poll loop; reported periodically.
	droppedUpdates atomic.Uint64

	chatMu    sync.Mutex
	chatCache map[string]*tele.Chat

	menuMu   sync.Mutex
	menuHash uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{
		cfg:       cfg,
		log:       log.With(logx.String("comp", "telegram.adapter")),
		bot:       b,
		chatCache: map[string]*tele.Chat{},
	}
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

var mediaEndpoints = []string{
	tele.OnPhoto, tele.OnVideo, tele.OnAnimation, tele.OnDocument,
	tele.OnAudio, tele.OnVoice, tele.OnSticker,
}

func (a *Adapter) registerHandlers() {
	// Handlers forward to the CURRENT output channel; Start() may swap it.
	onMessage := func(c tele.Context) error {
		if up, ok := messageUpdate(c.Message()); ok {
			a.sendUpdate(up)
		}
		return nil
	}
	a.bot.Handle(tele.OnText, onMessage)
	for _, ep := range mediaEndpoints {
		a.bot.Handle(ep, onMessage)
	}

	a.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		cb := c.Callback()
		m := c.Message()
		if cb == nil || m == nil || cb.Sender == nil {
			return nil
		}
		a.sendUpdate(kit.Update{
			Kind: kit.UpdateCallback,
			Callback: &kit.Callback{
				ID:        cb.ID,
				ChatID:    m.Chat.ID,
				ThreadID:  m.ThreadID,
				FromID:    cb.Sender.ID,
				MessageID: m.ID,
				Data:      cb.Data,
			},
		})
		return nil
	})
}

func messageUpdate(m *tele.Message) (kit.Update, bool) {
	if m == nil || m.Sender == nil || m.Chat == nil {
		return kit.Update{}, false
	}
	return kit.Update{
		Kind: kit.UpdateMessage,
		Message: &kit.Message{
			ID:           m.ID,
			ChatID:       m.Chat.ID,
			ThreadID:     m.ThreadID,
			FromID:       m.Sender.ID,
			FromUsername: m.Sender.Username,
			Text:         m.Text,
			Media:        mediaOf(m),
			IsGroup:      m.Chat.Type == tele.ChatGroup || m.Chat.Type == tele.ChatSuperGroup,
		},
	}, true
}

// mediaOf extracts the attachment of m, if any.
func mediaOf(m *tele.Message) *kit.Media {
	switch {
	case m.Photo != nil:
		return &kit.Media{Type: kit.MediaPhoto, FileID: m.Photo.FileID, Caption: m.Caption}
	case m.Animation != nil:
		// animations also carry a Document; check first
		return &kit.Media{Type: kit.MediaAnimation, FileID: m.Animation.FileID, Caption: m.Caption}
	case m.Video != nil:
		return &kit.Media{Type: kit.MediaVideo, FileID: m.Video.FileID, Caption: m.Caption}
	case m.Document != nil:
		return &kit.Media{Type: kit.MediaDocument, FileID: m.Document.FileID, Caption: m.Caption}
	case m.Audio != nil:
		return &kit.Media{Type: kit.MediaAudio, FileID: m.Audio.FileID, Caption: m.Caption}
	case m.Voice != nil:
		return &kit.Media{Type: kit.MediaVoice, FileID: m.Voice.FileID, Caption: m.Caption}
	case m.Sticker != nil:
		return &kit.Media{Type: kit.MediaSticker, FileID: m.Sticker.FileID}
	}
	return nil
}

func (a *Adapter) sendUpdate(up kit.Update) {
	out, _ := a.out.Load().(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		a.droppedUpdates.Add(1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(a.log),
		// transport errors must not take down the whole app
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	report := func() {
		if n := a.droppedUpdates.Swap(0); n > 0 {
			a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", cap(out)))
		}
	}
	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-c.Done():
				report()
				return
			case <-ticker.C:
				report()
			}
		}
	})

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})

	// telebot's Start blocks until Stop; restart it if it returns early.
	sup.GoRestart0("telebot.poll", func(c context.Context) {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithPublishFirstError(true),
		rtsup.WithStopOnCleanExit(false),
	)
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	a.log.Info("stopping", logx.Uint64("dropped_updates_pending", a.droppedUpdates.Load()))
	if !wasRunning || sup == nil {
		return nil
	}
	sup.Cancel()
	go a.bot.Stop()

	// keep shutdown snappy even if getUpdates long-poll is still waiting
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	if err := sup.Wait(wctx); err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			a.log.Warn("telegram stop timed out", logx.Err(err))
		case sup.Context().Err() != nil:
			a.log.Debug("telegram stopped with supervisor error", logx.Err(err))
		default:
			a.log.Warn("telegram stop error", logx.Err(err))
		}
	}
	return nil
}
