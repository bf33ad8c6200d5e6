package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/overlaykit/chat-relay/relay"
)

// FakeChatSource is a scriptable relay.ChatSource. Each func field can be set
// per test; unset fields return zero values. Call counters are safe for
// concurrent access.
type FakeChatSource struct {
	mu sync.Mutex

	ResolveChannelFunc         func(ctx context.Context, cred *relay.Credential) (*relay.ChannelIdentity, error)
	ResolveActiveBroadcastFunc func(ctx context.Context, cred *relay.Credential) (*relay.LiveSession, error)
	FetchChatPageFunc          func(ctx context.Context, cred *relay.Credential, liveChatID, pageToken string) (*relay.ChatPage, error)
	RefreshFunc                func(ctx context.Context, cred *relay.Credential) (*relay.Credential, error)

	ResolveChannelCalls   int
	ResolveBroadcastCalls int
	FetchCalls            int
	RefreshCalls          int

	// FetchTokens records the pageToken of every FetchChatPage call in order.
	FetchTokens []string
}

func (f *FakeChatSource) ResolveChannel(ctx context.Context, cred *relay.Credential) (*relay.ChannelIdentity, error) {
	f.mu.Lock()
	f.ResolveChannelCalls++
	fn := f.ResolveChannelFunc
	f.mu.Unlock()
	if fn == nil {
		return &relay.ChannelIdentity{ID: "chan-1", Title: "Test Channel"}, nil
	}
	return fn(ctx, cred)
}

func (f *FakeChatSource) ResolveActiveBroadcast(ctx context.Context, cred *relay.Credential) (*relay.LiveSession, error) {
	f.mu.Lock()
	f.ResolveBroadcastCalls++
	fn := f.ResolveActiveBroadcastFunc
	f.mu.Unlock()
	if fn == nil {
		return &relay.LiveSession{BroadcastID: "bcast-1", Title: "Test Stream", LiveChatID: "chat-1"}, nil
	}
	return fn(ctx, cred)
}

func (f *FakeChatSource) FetchChatPage(ctx context.Context, cred *relay.Credential, liveChatID, pageToken string) (*relay.ChatPage, error) {
	f.mu.Lock()
	f.FetchCalls++
	f.FetchTokens = append(f.FetchTokens, pageToken)
	fn := f.FetchChatPageFunc
	f.mu.Unlock()
	if fn == nil {
		return &relay.ChatPage{}, nil
	}
	return fn(ctx, cred, liveChatID, pageToken)
}

func (f *FakeChatSource) Refresh(ctx context.Context, cred *relay.Credential) (*relay.Credential, error) {
	f.mu.Lock()
	f.RefreshCalls++
	fn := f.RefreshFunc
	f.mu.Unlock()
	if fn == nil {
		return nil, errors.New("refresh not scripted")
	}
	return fn(ctx, cred)
}

var _ relay.ChatSource = (*FakeChatSource)(nil)

// RecordingSink collects every payload it receives.
type RecordingSink struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (s *RecordingSink) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(payload))
	copy(cp, payload)
	s.payloads = append(s.payloads, cp)
	return nil
}

// Payloads returns a snapshot of everything received so far.
func (s *RecordingSink) Payloads() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.payloads))
	copy(out, s.payloads)
	return out
}

// FailingSink rejects every write.
type FailingSink struct{}

func (FailingSink) Send([]byte) error { return errors.New("sink closed") }
