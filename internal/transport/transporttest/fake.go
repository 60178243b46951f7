// Package transporttest provides an in-memory transport.Adapter for tests.
package transporttest

import (
	"context"
	"errors"
	"sync"

	kit "memebot/internal/transport"
)

// Sent is one outbound message recorded by Fake.
type Sent struct {
	To    kit.ChatTarget
	Text  string
	Media *kit.Media
	Opt   *kit.SendOptions
}

// Answer is one recorded callback answer.
type Answer struct {
	CallbackID string
	Text       string
}

// Fake records every outbound call. Zero value is ready to use.
type Fake struct {
	mu sync.Mutex

	sent    []Sent
	edits   []kit.MessageRef
	answers []Answer
	nextID  int

	// FailChats makes sends to these chat ids fail.
	FailChats map[int64]bool
	// Members maps "@channel" -> user id -> status; missing entries are MemberLeft.
	Members map[string]map[int64]kit.MemberStatus
	// MemberErr makes every ChatMember lookup fail.
	MemberErr error
}

var ErrSendFailed = errors.New("transporttest: send failed")

func (f *Fake) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *Fake) Stop(context.Context) error                     { return nil }

func (f *Fake) record(to kit.ChatTarget, s Sent) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailChats[to.ChatID] {
		return kit.MessageRef{}, ErrSendFailed
	}
	f.nextID++
	f.sent = append(f.sent, s)
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: f.nextID}, nil
}

func (f *Fake) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	return f.record(to, Sent{To: to, Text: text, Opt: opt})
}

func (f *Fake) SendMedia(_ context.Context, to kit.ChatTarget, m kit.Media, opt *kit.SendOptions) (kit.MessageRef, error) {
	return f.record(to, Sent{To: to, Media: &m, Opt: opt})
}

func (f *Fake) EditText(_ context.Context, ref kit.MessageRef, _ string, _ *kit.SendOptions) error {
	f.mu.Lock()
	f.edits = append(f.edits, ref)
	f.mu.Unlock()
	return nil
}

func (f *Fake) EditMarkup(_ context.Context, ref kit.MessageRef, _ *kit.SendOptions) error {
	f.mu.Lock()
	f.edits = append(f.edits, ref)
	f.mu.Unlock()
	return nil
}

func (f *Fake) AnswerCallback(_ context.Context, id string, text string) error {
	f.mu.Lock()
	f.answers = append(f.answers, Answer{CallbackID: id, Text: text})
	f.mu.Unlock()
	return nil
}

func (f *Fake) ChatMember(_ context.Context, channel string, userID int64) (kit.MemberStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.MemberErr != nil {
		return "", f.MemberErr
	}
	if st, ok := f.Members[channel][userID]; ok {
		return st, nil
	}
	return kit.MemberLeft, nil
}

// Sent returns a copy of all recorded sends.
func (f *Fake) Sent() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Sent(nil), f.sent...)
}

// Texts returns the text of every recorded text send.
func (f *Fake) Texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, s := range f.sent {
		if s.Media == nil {
			out = append(out, s.Text)
		}
	}
	return out
}

func (f *Fake) Edits() []kit.MessageRef {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]kit.MessageRef(nil), f.edits...)
}

func (f *Fake) Answers() []Answer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Answer(nil), f.answers...)
}

// Reset drops everything recorded so far.
func (f *Fake) Reset() {
	f.mu.Lock()
	f.sent, f.edits, f.answers = nil, nil, nil
	f.mu.Unlock()
}

var _ kit.Adapter = (*Fake)(nil)
