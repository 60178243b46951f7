package bot

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"

	"memebot/internal/access"
	"memebot/internal/broadcast"
	"memebot/internal/delivery"
	"memebot/internal/feedback"
	"memebot/internal/luck"
	"memebot/internal/media"
	"memebot/internal/storage"
	kit "memebot/internal/transport"
	"memebot/internal/transport/telegram/router"
	"memebot/internal/transport/transporttest"
	logx "memebot/pkg/logx"
	"memebot/pkg/tgui"
)

const ownerID = 1

type harness struct {
	bot    *Bot
	fake   *transporttest.Fake
	store  *storage.Store
	access *access.Service
}

func newHarness(t *testing.T, dailyCap int) *harness {
	t.Helper()
	ctx := context.Background()
	st, err := storage.Open(ctx, storage.Config{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "bot.db"),
	}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	acc := access.New(st, logx.Nop())
	if err := acc.Load(ctx, []int64{ownerID}); err != nil {
		t.Fatalf("load access: %v", err)
	}
	fake := &transporttest.Fake{}
	b := New(Deps{
		Adapter:   fake,
		Catalog:   st,
		Delivery:  delivery.New(delivery.Config{DailyCap: dailyCap, Location: time.UTC}, delivery.Deps{Store: st, Access: acc}),
		Feedback:  feedback.New(st, nil, nil, logx.Nop()),
		Access:    acc,
		Luck:      luck.NewService(luck.NewMemoryCache(), time.UTC, logx.Nop()),
		Broadcast: broadcast.New(broadcast.Config{}, broadcast.Deps{Adapter: fake, Recipients: st}),
		Log:       logx.Nop(),
	})
	return &harness{bot: b, fake: fake, store: st, access: acc}
}

func (h *harness) msg(from int64, args ...string) *router.Request {
	return &router.Request{
		Message: &kit.Message{ChatID: from, FromID: from},
		Chat:    kit.ChatTarget{ChatID: from},
		FromID:  from,
		Args:    args,
		Adapter: h.fake,
		Logger:  logx.Nop(),
	}
}

func (h *harness) media(from int64, typ kit.MediaType, fileID string) *router.Request {
	r := h.msg(from)
	r.Message.Media = &kit.Media{Type: typ, FileID: fileID}
	return r
}

func (h *harness) callback(from int64, data string) *router.Request {
	return &router.Request{
		Callback: &kit.Callback{ID: "cb", FromID: from, ChatID: from, MessageID: 42, Data: data},
		Chat:     kit.ChatTarget{ChatID: from},
		FromID:   from,
		Adapter:  h.fake,
		Logger:   logx.Nop(),
	}
}

func (h *harness) addItem(t *testing.T, kind media.Kind, ref string) media.Item {
	t.Helper()
	it, _, err := h.store.AddItem(context.Background(), kind, ref)
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	return it
}

func (h *harness) lastText(t *testing.T) string {
	t.Helper()
	texts := h.fake.Texts()
	if len(texts) == 0 {
		t.Fatalf("no text sent")
	}
	return texts[len(texts)-1]
}

func (h *harness) lastAnswer(t *testing.T) string {
	t.Helper()
	answers := h.fake.Answers()
	if len(answers) == 0 {
		t.Fatalf("no callback answered")
	}
	return answers[len(answers)-1].Text
}

func mediaSends(sent []transporttest.Sent) []transporttest.Sent {
	var out []transporttest.Sent
	for _, s := range sent {
		if s.Media != nil {
			out = append(out, s)
		}
	}
	return out
}

func inlineTexts(t *testing.T, opt *kit.SendOptions) [][]string {
	t.Helper()
	if opt == nil {
		t.Fatalf("no send options")
	}
	rm, ok := opt.ReplyMarkupAdapter.(*tele.ReplyMarkup)
	if !ok {
		t.Fatalf("markup type %T", opt.ReplyMarkupAdapter)
	}
	var rows [][]string
	for _, row := range rm.InlineKeyboard {
		var labels []string
		for _, btn := range row {
			labels = append(labels, btn.Text)
		}
		rows = append(rows, labels)
	}
	return rows
}

func TestContentCommandSendsMediaWithKeyboard(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, 0)
	it := h.addItem(t, media.KindVideo, "file-v1")

	if err := h.bot.contentCommand(media.KindVideo)(ctx, h.msg(5)); err != nil {
		t.Fatalf("video: %v", err)
	}
	sent := mediaSends(h.fake.Sent())
	if len(sent) != 1 {
		t.Fatalf("media sends = %d, want 1", len(sent))
	}
	if sent[0].Media.Type != kit.MediaVideo || sent[0].Media.FileID != "file-v1" || sent[0].To.ChatID != 5 {
		t.Fatalf("unexpected send %+v to %+v", *sent[0].Media, sent[0].To)
	}
	rows := inlineTexts(t, sent[0].Opt)
	want := [][]string{{"👍 0", "👎 0"}, {txtNext}}
	if fmt.Sprint(rows) != fmt.Sprint(want) {
		t.Fatalf("keyboard = %v, want %v", rows, want)
	}

	rm := sent[0].Opt.ReplyMarkupAdapter.(*tele.ReplyMarkup)
	if got, want := rm.InlineKeyboard[0][0].Data, "like_video_"+strconv.FormatInt(it.ID, 10); !strings.HasSuffix(got, want) {
		t.Fatalf("like data = %q, want suffix %q", got, want)
	}
}

func TestContentExhaustedIsReported(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, 0)
	h.addItem(t, media.KindMeme, "m1")

	handle := h.bot.contentCommand(media.KindMeme)
	for i := 0; i < 2; i++ {
		if err := handle(ctx, h.msg(5)); err != nil {
			t.Fatalf("memes #%d: %v", i, err)
		}
	}
	if n := len(mediaSends(h.fake.Sent())); n != 1 {
		t.Fatalf("media sends = %d, want 1", n)
	}
	if got := h.lastText(t); got != exhaustedText(media.KindMeme) {
		t.Fatalf("text = %q", got)
	}
}

func TestQuotaReplyNamesTheLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, 1)
	h.addItem(t, media.KindSticker, "s1")
	h.addItem(t, media.KindSticker, "s2")

	handle := h.bot.contentCommand(media.KindSticker)
	_ = handle(ctx, h.msg(5))
	_ = handle(ctx, h.msg(5))

	if got, want := h.lastText(t), quotaText(1, media.KindSticker); got != want {
		t.Fatalf("text = %q, want %q", got, want)
	}

	// owners are not limited
	_ = handle(ctx, h.msg(ownerID))
	_ = handle(ctx, h.msg(ownerID))
	owner := 0
	for _, s := range mediaSends(h.fake.Sent()) {
		if s.To.ChatID == ownerID {
			owner++
		}
	}
	if owner != 2 {
		t.Fatalf("owner media sends = %d, want 2", owner)
	}
}

func TestExplicitIDDeliversSeenItem(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, 0)
	it := h.addItem(t, media.KindVoice, "vo1")
	id := strconv.FormatInt(it.ID, 10)

	handle := h.bot.contentCommand(media.KindVoice)
	_ = handle(ctx, h.msg(5))
	_ = handle(ctx, h.msg(5, id))
	if n := len(mediaSends(h.fake.Sent())); n != 2 {
		t.Fatalf("media sends = %d, want 2", n)
	}

	_ = handle(ctx, h.msg(5, "999"))
	if got := h.lastText(t); got != txtNotFound {
		t.Fatalf("text = %q", got)
	}
}

func TestVoteCallback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, 0)
	it := h.addItem(t, media.KindVideo, "v1")
	payload := "video_" + strconv.FormatInt(it.ID, 10)
	like := h.bot.voteCallback(media.VoteLike)
	dislike := h.bot.voteCallback(media.VoteDislike)

	if err := like(ctx, h.callback(5, "like_"+payload), payload); err != nil {
		t.Fatalf("like: %v", err)
	}
	if got := h.lastAnswer(t); got != txtVoteCounted {
		t.Fatalf("answer = %q", got)
	}
	edits := h.fake.Edits()
	if len(edits) != 1 || edits[0].MessageID != 42 || edits[0].ChatID != 5 {
		t.Fatalf("edits = %+v", edits)
	}

	if err := dislike(ctx, h.callback(5, "dislike_"+payload), payload); err != nil {
		t.Fatalf("dislike: %v", err)
	}
	if got := h.lastAnswer(t); got != txtAlreadyVoted {
		t.Fatalf("answer = %q", got)
	}
	tally, err := h.store.Tally(ctx, media.KindVideo, it.ID)
	if err != nil {
		t.Fatalf("tally: %v", err)
	}
	if tally.Likes != 1 || tally.Dislikes != 0 {
		t.Fatalf("tally = %+v", tally)
	}

	tests := []struct {
		name    string
		payload string
	}{
		{name: "missing id", payload: "video"},
		{name: "bad kind", payload: "gif_1"},
		{name: "bad id", payload: "video_x"},
		{name: "unknown item", payload: "video_999"},
	}
	for _, tt := range tests {
		req := h.callback(5, "like_"+tt.payload)
		if err := like(ctx, req, tt.payload); err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if got := h.lastAnswer(t); got != txtNotFound {
			t.Fatalf("%s: answer = %q", tt.name, got)
		}
	}
}

func TestNextCallback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, 0)
	h.addItem(t, media.KindMeme, "m1")

	if err := h.bot.handleNext(ctx, h.callback(5, "next_meme"), "meme"); err != nil {
		t.Fatalf("next: %v", err)
	}
	if n := len(mediaSends(h.fake.Sent())); n != 1 {
		t.Fatalf("media sends = %d, want 1", n)
	}

	if err := h.bot.handleNext(ctx, h.callback(5, "next_meme"), "meme"); err != nil {
		t.Fatalf("next: %v", err)
	}
	if got := h.lastAnswer(t); got != exhaustedText(media.KindMeme) {
		t.Fatalf("answer = %q", got)
	}

	if err := h.bot.handleNext(ctx, h.callback(5, "next_gif"), "gif"); err != nil {
		t.Fatalf("next: %v", err)
	}
	if got := h.lastAnswer(t); got != txtNotFound {
		t.Fatalf("answer = %q", got)
	}
}

func TestUploadMode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, 0)

	if err := h.bot.startUpload(media.KindMeme)(ctx, h.msg(ownerID)); err != nil {
		t.Fatalf("addmeme: %v", err)
	}
	if got := h.lastText(t); got != uploadPrompt(media.KindMeme) {
		t.Fatalf("prompt = %q", got)
	}

	handled, err := h.bot.intercept(ctx, h.media(ownerID, kit.MediaVideo, "wrong"))
	if !handled || err != nil {
		t.Fatalf("intercept wrong type: handled=%v err=%v", handled, err)
	}
	if got := h.lastText(t); got != txtUploadWrong {
		t.Fatalf("text = %q", got)
	}

	handled, err = h.bot.intercept(ctx, h.media(ownerID, kit.MediaPhoto, "photo-1"))
	if !handled || err != nil {
		t.Fatalf("intercept photo: handled=%v err=%v", handled, err)
	}
	if got := h.lastText(t); got != kindTexts[media.KindMeme].added {
		t.Fatalf("text = %q", got)
	}
	refs, err := h.store.ListMediaRefs(ctx, media.KindMeme)
	if err != nil || len(refs) != 1 || refs[0] != "photo-1" {
		t.Fatalf("refs = %v err=%v", refs, err)
	}

	// the mode ended with the successful upload
	if handled, _ = h.bot.intercept(ctx, h.media(ownerID, kit.MediaPhoto, "photo-2")); handled {
		t.Fatalf("upload mode should be over")
	}

	_ = h.bot.startUpload(media.KindMeme)(ctx, h.msg(ownerID))
	_, _ = h.bot.intercept(ctx, h.media(ownerID, kit.MediaPhoto, "photo-1"))
	if got := h.lastText(t); got != kindTexts[media.KindMeme].exists {
		t.Fatalf("duplicate text = %q", got)
	}
}

func TestInterceptDropsRevokedUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, 0)
	if _, err := h.access.Grant(ctx, ownerID, 20); err != nil {
		t.Fatalf("grant: %v", err)
	}
	_ = h.bot.handleBroadcastStart(ctx, h.msg(20))
	if _, err := h.access.Revoke(ctx, ownerID, 20); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	handled, err := h.bot.intercept(ctx, h.msg(20))
	if handled || err != nil {
		t.Fatalf("handled=%v err=%v", handled, err)
	}
	if _, ok := h.bot.sessions.get(20); ok {
		t.Fatalf("session should be dropped")
	}
}

func TestBroadcastMode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, 0)
	for _, id := range []int64{2, 3, 4} {
		if _, err := h.store.RegisterUser(ctx, media.User{ID: id}); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	h.fake.FailChats = map[int64]bool{3: true}

	_ = h.bot.handleBroadcastStart(ctx, h.msg(ownerID))
	req := h.msg(ownerID)
	req.Message.Text = "всем привет"
	handled, err := h.bot.intercept(ctx, req)
	if !handled || err != nil {
		t.Fatalf("intercept: handled=%v err=%v", handled, err)
	}
	if got, want := h.lastText(t), broadcastDone(2, 1); got != want {
		t.Fatalf("text = %q, want %q", got, want)
	}

	// the mode stays until /stop
	empty := h.msg(ownerID)
	if handled, _ = h.bot.intercept(ctx, empty); !handled {
		t.Fatalf("broadcast mode should still be active")
	}
	if got := h.lastText(t); got != txtBroadcastUnsupported {
		t.Fatalf("text = %q", got)
	}

	_ = h.bot.handleStop(ctx, h.msg(ownerID))
	if got := h.lastText(t); got != txtBroadcastStop {
		t.Fatalf("stop text = %q", got)
	}
	_ = h.bot.handleStop(ctx, h.msg(ownerID))
	if got := h.lastText(t); got != txtNoMode {
		t.Fatalf("second stop text = %q", got)
	}
}

func TestSessionsExpire(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := newSessions(time.Minute)
	s.now = func() time.Time { return now }

	s.set(7, session{mode: modeBroadcast})
	now = now.Add(30 * time.Second)
	s.touch(7)
	now = now.Add(45 * time.Second)
	if _, ok := s.get(7); !ok {
		t.Fatalf("touched session should be alive")
	}
	now = now.Add(2 * time.Minute)
	if _, ok := s.get(7); ok {
		t.Fatalf("session should expire")
	}
	if _, ok := s.end(7); ok {
		t.Fatalf("end of expired session should report false")
	}
}

func TestGate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, 0)
	h.addItem(t, media.KindVideo, "v1")
	h.addItem(t, media.KindVideo, "v2")
	if _, err := h.access.AddChannel(ctx, ownerID, "@News"); err != nil {
		t.Fatalf("add channel: %v", err)
	}
	handle := h.bot.contentCommand(media.KindVideo)

	_ = handle(ctx, h.msg(5))
	if n := len(mediaSends(h.fake.Sent())); n != 0 {
		t.Fatalf("gated user got %d media", n)
	}
	sent := h.fake.Sent()
	last := sent[len(sent)-1]
	if last.Text != txtGatePrompt {
		t.Fatalf("prompt = %q", last.Text)
	}
	rows := inlineTexts(t, last.Opt)
	if len(rows) != 2 || rows[0][0] != "@news" || rows[1][0] != txtGateCheck {
		t.Fatalf("prompt keyboard = %v", rows)
	}

	h.fake.Members = map[string]map[int64]kit.MemberStatus{"@news": {5: kit.MemberMember}}
	_ = handle(ctx, h.msg(5))
	if n := len(mediaSends(h.fake.Sent())); n != 1 {
		t.Fatalf("subscriber media sends = %d, want 1", n)
	}

	h.fake.MemberErr = errors.New("boom")
	if missing := h.bot.Gate().Check(ctx, 5); len(missing) != 1 {
		t.Fatalf("lookup failure should gate, missing = %v", missing)
	}
	if missing := h.bot.Gate().Check(ctx, ownerID); len(missing) != 0 {
		t.Fatalf("owner should bypass, missing = %v", missing)
	}
}

func TestCheckSubscriptionCallback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, 0)
	if _, err := h.access.AddChannel(ctx, ownerID, "@news"); err != nil {
		t.Fatalf("add channel: %v", err)
	}

	_ = h.bot.handleCheckSubscription(ctx, h.callback(5, "check_subscription"), "subscription")
	if got := h.lastAnswer(t); got != txtGateStillNeeds {
		t.Fatalf("answer = %q", got)
	}

	h.fake.Members = map[string]map[int64]kit.MemberStatus{"@news": {5: kit.MemberAdministrator}}
	h.fake.Reset()
	_ = h.bot.handleCheckSubscription(ctx, h.callback(5, "check_subscription"), "subscription")
	if got := h.lastAnswer(t); got != txtGateOK {
		t.Fatalf("answer = %q", got)
	}
	texts := h.fake.Texts()
	if len(texts) != 2 || texts[0] != txtUnlocked || texts[1] != txtChooseCategory {
		t.Fatalf("texts = %q", texts)
	}
}

func TestStartRegistersBeforeGate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, 0)
	if _, err := h.access.AddChannel(ctx, ownerID, "@news"); err != nil {
		t.Fatalf("add channel: %v", err)
	}
	req := h.msg(5)
	req.FromUsername = "vasya"
	_ = h.bot.handleStart(ctx, req)

	users, err := h.store.ListUsers(ctx)
	if err != nil || len(users) != 1 || users[0].ID != 5 {
		t.Fatalf("users = %+v err=%v", users, err)
	}
	if got := h.lastText(t); got != txtGatePrompt {
		t.Fatalf("text = %q", got)
	}
}

func TestGrantRevokeHandlers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, 0)

	tests := []struct {
		name   string
		handle router.HandlerFunc
		args   []string
		want   string
	}{
		{name: "grant no args", handle: h.bot.handleGrant, want: txtGrantUsage},
		{name: "grant bad id", handle: h.bot.handleGrant, args: []string{"abc"}, want: txtGrantUsage},
		{name: "grant", handle: h.bot.handleGrant, args: []string{"20"}, want: txtGranted},
		{name: "grant again", handle: h.bot.handleGrant, args: []string{"20"}, want: txtAlreadyAdmin},
		{name: "revoke owner", handle: h.bot.handleRevoke, args: []string{"1"}, want: txtOwnerRevoke},
		{name: "revoke", handle: h.bot.handleRevoke, args: []string{"20"}, want: txtRevoked},
		{name: "revoke again", handle: h.bot.handleRevoke, args: []string{"20"}, want: txtNotAdmin},
		{name: "revoke no args", handle: h.bot.handleRevoke, want: txtRevokeUsage},
	}
	for _, tt := range tests {
		if err := tt.handle(ctx, h.msg(ownerID, tt.args...)); err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if got := h.lastText(t); got != tt.want {
			t.Fatalf("%s: text = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestChannelHandlers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, 0)

	tests := []struct {
		name   string
		handle router.HandlerFunc
		args   []string
		want   string
	}{
		{name: "list empty", handle: h.bot.handleListChannels, want: txtChannelsEmpty},
		{name: "add no args", handle: h.bot.handleAddChannel, want: txtChannelUsageAdd},
		{name: "add no at", handle: h.bot.handleAddChannel, args: []string{"news"}, want: txtChannelFormatAdd},
		{name: "add", handle: h.bot.handleAddChannel, args: []string{"@News"}, want: "Канал @news добавлен в список проверки."},
		{name: "add again", handle: h.bot.handleAddChannel, args: []string{"@news"}, want: "Канал @news уже есть в списке."},
		{name: "list", handle: h.bot.handleListChannels, want: "Список каналов для проверки:\n@news"},
		{name: "remove no at", handle: h.bot.handleRemoveChannel, args: []string{"news"}, want: txtChannelFormatMinus},
		{name: "remove", handle: h.bot.handleRemoveChannel, args: []string{"@news"}, want: "Канал @news теперь нет в списке."},
		{name: "remove again", handle: h.bot.handleRemoveChannel, args: []string{"@news"}, want: "Канала @news не было в списке."},
	}
	for _, tt := range tests {
		if err := tt.handle(ctx, h.msg(ownerID, tt.args...)); err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if got := h.lastText(t); got != tt.want {
			t.Fatalf("%s: text = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestListRefsSplitsLongLists(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, 0)

	if err := h.bot.listRefs(media.KindVideo)(ctx, h.msg(ownerID)); err != nil {
		t.Fatalf("list empty: %v", err)
	}
	if got := h.lastText(t); got != kindTexts[media.KindVideo].empty {
		t.Fatalf("empty text = %q", got)
	}

	h.fake.Reset()
	for i := 0; i < 120; i++ {
		h.addItem(t, media.KindVideo, fmt.Sprintf("BAACAgIAAxkBAAI%050d", i))
	}
	if err := h.bot.listRefs(media.KindVideo)(ctx, h.msg(ownerID)); err != nil {
		t.Fatalf("list: %v", err)
	}
	texts := h.fake.Texts()
	if len(texts) < 2 {
		t.Fatalf("expected several messages, got %d", len(texts))
	}
	if !strings.HasPrefix(texts[0], kindTexts[media.KindVideo].listHead) {
		t.Fatalf("first chunk = %q", texts[0][:40])
	}
	lines := 0
	for _, s := range texts {
		if n := utf8.RuneCountInString(s); n > tgui.MaxMessageLen {
			t.Fatalf("chunk of %d runes", n)
		}
		lines += strings.Count(s, "\n") + 1
	}
	if lines != 121 {
		t.Fatalf("lines = %d, want 121", lines)
	}
}

func TestContentCountAndPurge(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, 0)
	h.addItem(t, media.KindVoice, "a")
	h.addItem(t, media.KindVoice, "b")

	if err := h.bot.handleContentCount(ctx, h.msg(ownerID)); err != nil {
		t.Fatalf("count: %v", err)
	}
	if got := h.lastText(t); !strings.Contains(got, "<b>"+labelVoice+"</b>: 2") {
		t.Fatalf("stats = %q", got)
	}

	if err := h.bot.purge(media.KindVoice)(ctx, h.msg(ownerID)); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if got, want := h.lastText(t), kindTexts[media.KindVoice].purged+" (2)"; got != want {
		t.Fatalf("purge text = %q, want %q", got, want)
	}
	counts, err := h.store.CountItems(ctx)
	if err != nil || counts[media.KindVoice] != 0 {
		t.Fatalf("counts = %v err=%v", counts, err)
	}
}

func TestLuckIsStableForTheDay(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, 0)

	_ = h.bot.handleLuck(ctx, h.msg(5))
	first := h.lastText(t)
	_ = h.bot.handleLuck(ctx, h.msg(5))
	second := h.lastText(t)
	if !strings.HasPrefix(second, "Твой уровень удачи на сегодня уже определён") {
		t.Fatalf("second reading = %q", second)
	}
	pct := second[strings.Index(second, ": ")+2 : strings.Index(second, "%")]
	if !strings.Contains(first, pct+"%") {
		t.Fatalf("readings differ: %q vs %q", first, second)
	}
}

func TestPushCommandsWithoutTrigger(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, 0)

	_ = h.bot.handlePushNow(ctx, h.msg(ownerID))
	if got := h.lastText(t); got != txtPushDisabled {
		t.Fatalf("push_now = %q", got)
	}
	_ = h.bot.handlePushStatus(ctx, h.msg(ownerID))
	if got := h.lastText(t); got != txtPushDisabled {
		t.Fatalf("push_status = %q", got)
	}
}

func TestRegistryHasNoDuplicates(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 0)

	seen := map[string]bool{}
	for _, c := range h.bot.Commands() {
		for _, name := range append([]string{c.Route}, c.Aliases...) {
			if seen[name] {
				t.Fatalf("duplicate command %q", name)
			}
			seen[name] = true
		}
	}
	actions := map[string]bool{}
	for _, cb := range h.bot.Callbacks() {
		if strings.Contains(cb.Action, "_") || actions[cb.Action] {
			t.Fatalf("bad callback action %q", cb.Action)
		}
		actions[cb.Action] = true
	}
}
