package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"memebot/internal/media"
	logx "memebot/pkg/logx"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(context.Background(), Config{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "bot.db"),
	}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func mustAdd(t *testing.T, st *Store, kind media.Kind, ref string) media.Item {
	t.Helper()
	it, _, err := st.AddItem(context.Background(), kind, ref)
	if err != nil {
		t.Fatalf("add %s %q: %v", kind, ref, err)
	}
	return it
}

func TestAddItemIsIdempotent(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	first, created, err := st.AddItem(ctx, media.KindMeme, "file-A")
	if err != nil || !created {
		t.Fatalf("first add: created=%v err=%v", created, err)
	}
	again, created, err := st.AddItem(ctx, media.KindMeme, "file-A")
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if created {
		t.Fatalf("second add reported created")
	}
	if again.ID != first.ID {
		t.Fatalf("duplicate add returned id %d, want %d", again.ID, first.ID)
	}

	// same ref under another kind is a distinct item
	if _, created, err := st.AddItem(ctx, media.KindVideo, "file-A"); err != nil || !created {
		t.Fatalf("add other kind: created=%v err=%v", created, err)
	}

	counts, err := st.CountItems(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts[media.KindMeme] != 1 || counts[media.KindVideo] != 1 || counts[media.KindSticker] != 0 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func TestGetAndUnknownKind(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	it := mustAdd(t, st, media.KindSticker, "stk-1")

	got, err := st.Get(ctx, media.KindSticker, it.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Ref != "stk-1" || got.Kind != media.KindSticker {
		t.Fatalf("got %+v", got)
	}

	if _, err := st.Get(ctx, media.KindSticker, it.ID+100); !errors.Is(err, media.ErrNotFound) {
		t.Fatalf("missing id: want ErrNotFound, got %v", err)
	}
	if _, err := st.Get(ctx, media.KindVideo, it.ID); !errors.Is(err, media.ErrNotFound) {
		t.Fatalf("id of other kind: want ErrNotFound, got %v", err)
	}
	if _, err := st.Get(ctx, media.Kind("videos; DROP TABLE memes"), 1); !errors.Is(err, media.ErrUnknownKind) {
		t.Fatalf("unknown kind: want ErrUnknownKind, got %v", err)
	}
}

func TestRandomUnseenExhaustsWithoutReset(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	for _, ref := range []string{"a", "b", "c"} {
		mustAdd(t, st, media.KindVideo, ref)
	}

	const user = int64(42)
	seen := map[int64]bool{}
	for i := 0; i < 3; i++ {
		it, err := st.RandomUnseen(ctx, media.KindVideo, user, media.OriginCommand)
		if err != nil {
			t.Fatalf("pick %d: %v", i, err)
		}
		if seen[it.ID] {
			t.Fatalf("pick %d repeated item %d", i, it.ID)
		}
		seen[it.ID] = true
		if err := st.RecordExposure(ctx, media.Exposure{UserID: user, ContentID: it.ID, Kind: media.KindVideo, Origin: media.OriginCommand}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	for i := 0; i < 2; i++ {
		if _, err := st.RandomUnseen(ctx, media.KindVideo, user, media.OriginCommand); !errors.Is(err, media.ErrExhausted) {
			t.Fatalf("after exhaustion: want ErrExhausted, got %v", err)
		}
	}

	// dedup is scoped per origin and per user
	if _, err := st.RandomUnseen(ctx, media.KindVideo, user, media.OriginCallback); err != nil {
		t.Fatalf("other origin: %v", err)
	}
	if _, err := st.RandomUnseen(ctx, media.KindVideo, user+1, media.OriginCommand); err != nil {
		t.Fatalf("other user: %v", err)
	}
}

func TestRandomUnseenEmptyCatalog(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	if _, err := st.RandomUnseen(context.Background(), media.KindVoice, 1, media.OriginCommand); !errors.Is(err, media.ErrExhausted) {
		t.Fatalf("empty catalog: want ErrExhausted, got %v", err)
	}
}

func TestRecordExposureDuplicateIsNoop(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	it := mustAdd(t, st, media.KindMeme, "m1")

	now := time.Now()
	e := media.Exposure{UserID: 7, ContentID: it.ID, Kind: media.KindMeme, Origin: media.OriginCommand, ShownAt: now}
	for i := 0; i < 3; i++ {
		if err := st.RecordExposure(ctx, e); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	n, err := st.CountExposures(ctx, 7, media.KindMeme, media.OriginCommand, now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("exposures=%d, want 1", n)
	}
}

func TestCountExposuresWindow(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		ref string
		at  time.Time
	}{
		{"x1", day.Add(-time.Second)},
		{"x2", day},
		{"x3", day.Add(23 * time.Hour)},
		{"x4", day.Add(24 * time.Hour)},
	}
	for _, c := range cases {
		it := mustAdd(t, st, media.KindVideo, c.ref)
		if err := st.RecordExposure(ctx, media.Exposure{UserID: 1, ContentID: it.ID, Kind: media.KindVideo, Origin: media.OriginCommand, ShownAt: c.at}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	n, err := st.CountExposures(ctx, 1, media.KindVideo, media.OriginCommand, day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("count in day=%d, want 2", n)
	}
	n, _ = st.CountExposures(ctx, 1, media.KindVideo, media.OriginCallback, day, day.Add(24*time.Hour))
	if n != 0 {
		t.Fatalf("other origin count=%d, want 0", n)
	}
}

func TestVoteOnceAndTally(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	it := mustAdd(t, st, media.KindMeme, "m1")

	tl, err := st.Tally(ctx, media.KindMeme, it.ID)
	if err != nil || tl != (media.Tally{}) {
		t.Fatalf("initial tally=%+v err=%v", tl, err)
	}

	tl, err = st.Vote(ctx, media.Vote{UserID: 1, ContentID: it.ID, Kind: media.KindMeme, Vote: media.VoteLike})
	if err != nil {
		t.Fatalf("vote: %v", err)
	}
	if tl != (media.Tally{Likes: 1}) {
		t.Fatalf("after like: %+v", tl)
	}

	// a second vote of either kind is rejected and changes nothing
	for _, v := range []media.VoteKind{media.VoteLike, media.VoteDislike} {
		if _, err := st.Vote(ctx, media.Vote{UserID: 1, ContentID: it.ID, Kind: media.KindMeme, Vote: v}); !errors.Is(err, media.ErrAlreadyVoted) {
			t.Fatalf("repeat %s: want ErrAlreadyVoted, got %v", v, err)
		}
	}

	tl, err = st.Vote(ctx, media.Vote{UserID: 2, ContentID: it.ID, Kind: media.KindMeme, Vote: media.VoteDislike})
	if err != nil {
		t.Fatalf("second user: %v", err)
	}
	if tl != (media.Tally{Likes: 1, Dislikes: 1}) {
		t.Fatalf("after dislike: %+v", tl)
	}

	if _, err := st.Vote(ctx, media.Vote{UserID: 3, ContentID: it.ID + 99, Kind: media.KindMeme, Vote: media.VoteLike}); !errors.Is(err, media.ErrNotFound) {
		t.Fatalf("missing item: want ErrNotFound, got %v", err)
	}
	tl, _ = st.Tally(ctx, media.KindMeme, it.ID)
	if tl != (media.Tally{Likes: 1, Dislikes: 1}) {
		t.Fatalf("final tally: %+v", tl)
	}
}

func TestConcurrentVotesCountOnce(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	it := mustAdd(t, st, media.KindVideo, "v1")

	const n = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		already int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.Vote(ctx, media.Vote{UserID: 5, ContentID: it.ID, Kind: media.KindVideo, Vote: media.VoteLike})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, media.ErrAlreadyVoted):
				already++
			default:
				t.Errorf("vote: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 1 || already != n-1 {
		t.Fatalf("ok=%d already=%d", ok, already)
	}
	tl, _ := st.Tally(ctx, media.KindVideo, it.ID)
	if tl.Likes != 1 {
		t.Fatalf("likes=%d, want 1", tl.Likes)
	}
}

func TestPurgeKindKeepsHistory(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	it := mustAdd(t, st, media.KindVoice, "vo1")
	mustAdd(t, st, media.KindVoice, "vo2")
	mustAdd(t, st, media.KindMeme, "m1")

	if err := st.RecordExposure(ctx, media.Exposure{UserID: 1, ContentID: it.ID, Kind: media.KindVoice, Origin: media.OriginCommand}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := st.Vote(ctx, media.Vote{UserID: 1, ContentID: it.ID, Kind: media.KindVoice, Vote: media.VoteLike}); err != nil {
		t.Fatalf("vote: %v", err)
	}

	n, err := st.PurgeKind(ctx, media.KindVoice)
	if err != nil || n != 2 {
		t.Fatalf("purge n=%d err=%v", n, err)
	}
	counts, _ := st.CountItems(ctx)
	if counts[media.KindVoice] != 0 || counts[media.KindMeme] != 1 {
		t.Fatalf("counts after purge: %v", counts)
	}
	tl, _ := st.Tally(ctx, media.KindVoice, it.ID)
	if tl.Likes != 1 {
		t.Fatalf("tally lost after purge: %+v", tl)
	}
	refs, err := st.ListMediaRefs(ctx, media.KindMeme)
	if err != nil || len(refs) != 1 || refs[0] != "m1" {
		t.Fatalf("refs=%v err=%v", refs, err)
	}
}

func TestUsersPrivilegedAndChannels(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	created, err := st.RegisterUser(ctx, media.User{ID: 10})
	if err != nil || !created {
		t.Fatalf("register: created=%v err=%v", created, err)
	}
	created, _ = st.RegisterUser(ctx, media.User{ID: 10, Username: "again"})
	if created {
		t.Fatalf("re-register reported created")
	}
	users, err := st.ListUsers(ctx)
	if err != nil || len(users) != 1 || users[0].Username != "Unknown" {
		t.Fatalf("users=%+v err=%v", users, err)
	}

	if err := st.SeedOwner(ctx, 1); err != nil {
		t.Fatalf("seed owner: %v", err)
	}
	if ok, _ := st.AddPrivileged(ctx, PrivilegedUser{UserID: 2, AddedBy: 1}); !ok {
		t.Fatalf("add admin failed")
	}
	if ok, _ := st.AddPrivileged(ctx, PrivilegedUser{UserID: 1, AddedBy: 2}); ok {
		t.Fatalf("owner re-added as admin")
	}
	if removed, _ := st.RemovePrivileged(ctx, 1); removed {
		t.Fatalf("owner removed")
	}
	if removed, _ := st.RemovePrivileged(ctx, 2); !removed {
		t.Fatalf("admin not removed")
	}
	list, err := st.ListPrivileged(ctx)
	if err != nil || len(list) != 1 || list[0].Role != RoleOwner {
		t.Fatalf("privileged=%+v err=%v", list, err)
	}

	if ok, _ := st.AddChannel(ctx, GateChannel{Username: "@memes", AddedBy: 1}); !ok {
		t.Fatalf("add channel failed")
	}
	if ok, _ := st.AddChannel(ctx, GateChannel{Username: "@memes", AddedBy: 1}); ok {
		t.Fatalf("duplicate channel added")
	}
	chans, _ := st.ListChannels(ctx)
	if len(chans) != 1 || chans[0].Username != "@memes" {
		t.Fatalf("channels=%+v", chans)
	}
	if ok, _ := st.RemoveChannel(ctx, "@memes"); !ok {
		t.Fatalf("remove channel failed")
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(context.Background(), Config{Driver: "mongo"}, logx.Nop()); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := Open(context.Background(), Config{Driver: "none"}, logx.Nop()); !errors.Is(err, ErrDisabled) {
		t.Fatalf("none driver: %v", err)
	}
}

func TestRecordExposureRejectsUnknownOrigin(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	it := mustAdd(t, st, media.KindMeme, "m1")
	ctx := context.Background()

	for _, origin := range []media.Origin{"", "bogus"} {
		err := st.RecordExposure(ctx, media.Exposure{UserID: 1, ContentID: it.ID, Kind: media.KindMeme, Origin: origin})
		if !errors.Is(err, media.ErrUnknownOrigin) {
			t.Fatalf("origin %q: want ErrUnknownOrigin, got %v", origin, err)
		}
	}
	if _, err := st.Claim(ctx, media.ClaimRequest{UserID: 1, Kind: media.KindMeme, Origin: "bogus"}); !errors.Is(err, media.ErrUnknownOrigin) {
		t.Fatalf("claim: want ErrUnknownOrigin, got %v", err)
	}
}

func TestClaimHoldsItemUntilConfirmedOrReleased(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	mustAdd(t, st, media.KindSticker, "s1")
	ctx := context.Background()
	now := time.Now()
	quota := media.Quota{Cap: 1, From: now.Add(-time.Hour), To: now.Add(time.Hour)}
	req := media.ClaimRequest{UserID: 4, Kind: media.KindSticker, Origin: media.OriginCommand, Quota: quota}

	c, err := st.Claim(ctx, req)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !c.Held {
		t.Fatal("claim not held")
	}
	// a live hold counts toward the cap and leaves the pool
	if _, err := st.Claim(ctx, req); !errors.Is(err, media.ErrQuotaExceeded) {
		t.Fatalf("second claim: want ErrQuotaExceeded, got %v", err)
	}
	if _, err := st.RandomUnseen(ctx, media.KindSticker, 4, media.OriginCommand); !errors.Is(err, media.ErrExhausted) {
		t.Fatalf("random while held: want ErrExhausted, got %v", err)
	}

	if err := st.ReleaseClaim(ctx, c); err != nil {
		t.Fatalf("release: %v", err)
	}
	c, err = st.Claim(ctx, req)
	if err != nil {
		t.Fatalf("claim after release: %v", err)
	}
	if err := st.ConfirmClaim(ctx, c); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	n, err := st.CountExposures(ctx, 4, media.KindSticker, media.OriginCommand, quota.From, quota.To)
	if err != nil || n != 1 {
		t.Fatalf("exposures=%d err=%v, want 1", n, err)
	}
	if _, err := st.Claim(ctx, req); !errors.Is(err, media.ErrQuotaExceeded) {
		t.Fatalf("claim after confirm: want ErrQuotaExceeded, got %v", err)
	}
}

func TestStaleHoldsExpire(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	mustAdd(t, st, media.KindVoice, "v1")
	ctx := context.Background()
	req := media.ClaimRequest{UserID: 5, Kind: media.KindVoice, Origin: media.OriginCallback}

	start := time.Now()
	st.now = func() time.Time { return start }
	if _, err := st.Claim(ctx, req); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := st.Claim(ctx, req); !errors.Is(err, media.ErrExhausted) {
		t.Fatalf("while held: want ErrExhausted, got %v", err)
	}
	st.now = func() time.Time { return start.Add(holdTTL + time.Second) }
	if _, err := st.Claim(ctx, req); err != nil {
		t.Fatalf("after expiry: %v", err)
	}
}
