package relay

import (
	"context"
	"time"
)

// Credential is the authorization material for the single polling session.
// Refresh mutates it in place so later cycles reuse the new access token;
// the refresh token survives a refresh that omits a replacement.
type Credential struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// ChannelIdentity is the authorized channel, cached because resolving it
// costs a remote call.
type ChannelIdentity struct {
	ID         string
	Title      string
	ResolvedAt time.Time
}

// LiveSession exists only while a broadcast is detected active. The chat ID,
// once set, is used for every page fetch until the session is reset; it is
// never reused across broadcasts.
type LiveSession struct {
	BroadcastID string
	Title       string
	LiveChatID  string
}

// PollCursor tracks fetch progress. PageToken is the only scheduling input;
// LastItemID is kept for diagnostic display.
type PollCursor struct {
	PageToken  string
	LastItemID string
}

// ChatSource is the remote collaborator the scheduler polls. Implementations
// surface errors whose status/reason/message fields feed ClassifyPollError.
type ChatSource interface {
	// ResolveChannel returns the channel identity the credential authorizes.
	ResolveChannel(ctx context.Context, cred *Credential) (*ChannelIdentity, error)
	// ResolveActiveBroadcast returns the currently live session, or nil when
	// no broadcast is active (which is not an error).
	ResolveActiveBroadcast(ctx context.Context, cred *Credential) (*LiveSession, error)
	// FetchChatPage fetches one page of chat items after pageToken.
	FetchChatPage(ctx context.Context, cred *Credential, liveChatID, pageToken string) (*ChatPage, error)
	// Refresh exchanges the refresh token for a new access token. The
	// returned credential may omit a new refresh token.
	Refresh(ctx context.Context, cred *Credential) (*Credential, error)
}

// Session is the per-authorization polling state. It is owned by the
// Scheduler, which guards all access with its own mutex; Session itself has
// no locking.
type Session struct {
	Cred     *Credential
	Identity *ChannelIdentity
	Live     *LiveSession
	Cursor   PollCursor

	identityStale bool
}

// NewSession wraps a credential into a fresh polling session.
func NewSession(cred *Credential) *Session {
	return &Session{Cred: cred}
}

// identityFresh reports whether the cached channel identity can be reused.
func (s *Session) identityFresh(now time.Time, ttl time.Duration) bool {
	return s.Identity != nil && !s.identityStale && now.Before(s.Identity.ResolvedAt.Add(ttl))
}

// resetLive clears the live session and cursor so the next cycle re-resolves
// the broadcast from scratch.
func (s *Session) resetLive() {
	s.Live = nil
	s.Cursor = PollCursor{}
}

// Snapshot is the read-only diagnostic view of the engine.
type Snapshot struct {
	Enabled      bool       `json:"enabled"`
	State        string     `json:"state"`
	Channel      string     `json:"channel,omitempty"`
	BroadcastID  string     `json:"broadcast_id,omitempty"`
	LiveChatID   string     `json:"live_chat_id,omitempty"`
	PageToken    string     `json:"page_token,omitempty"`
	LastItemID   string     `json:"last_item_id,omitempty"`
	NextWake     *time.Time `json:"next_wake,omitempty"`
	BackoffUntil *time.Time `json:"backoff_until,omitempty"`
	LastStatus   *Event     `json:"last_status,omitempty"`
	Subscribers  int        `json:"subscribers"`
}
