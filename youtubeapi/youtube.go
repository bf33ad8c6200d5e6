// Package youtubeapi wraps Google OAuth2 client config and the YouTube Live
// Streaming API for the relay's polling needs: resolving the authorized
// channel, finding the active broadcast and its live chat, and fetching chat
// pages by continuation token. Tokens are persisted via the provided
// TokenStore so they can be refreshed and reused across restarts.
package youtubeapi

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/overlaykit/chat-relay/config"
	"github.com/overlaykit/chat-relay/relay"
)

// Provider is the token store key for this API.
const Provider = "youtube"

// TokenStore persists OAuth tokens between restarts.
type TokenStore interface {
	UpsertOAuthToken(ctx context.Context, provider string, accessToken string, refreshToken string, expiry time.Time, scope string) error
	GetOAuthToken(ctx context.Context, provider string) (accessToken string, refreshToken string, expiry time.Time, scope string, err error)
}

// Client implements relay.ChatSource against the YouTube Data API.
type Client struct {
	cfg   *config.Config
	store TokenStore
	oauth *oauth2.Config

	// base, when set, overrides the API endpoint (tests).
	base string
}

// New builds a client from the configured OAuth application credentials.
func New(cfg *config.Config, store TokenStore) *Client {
	scopes := []string{"https://www.googleapis.com/auth/youtube.readonly"}
	if cfg.YTScopes != "" {
		// allow comma or space separated
		s := strings.ReplaceAll(cfg.YTScopes, ",", " ")
		if fields := strings.Fields(s); len(fields) > 0 {
			scopes = fields
		}
	}
	oc := &oauth2.Config{
		ClientID:     cfg.YTClientID,
		ClientSecret: cfg.YTClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.YTRedirectURI,
		Scopes:       scopes,
	}
	return &Client{cfg: cfg, store: store, oauth: oc}
}

// AuthCodeURL returns the consent URL for the authorization-code handshake.
// Offline access is forced so a refresh token is issued.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for tokens and persists them.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := c.store.UpsertOAuthToken(ctx, Provider, tok.AccessToken, tok.RefreshToken, tok.Expiry, strings.Join(c.oauth.Scopes, " ")); err != nil {
		return nil, fmt.Errorf("persist token: %w", err)
	}
	return tok, nil
}

// LoadCredential reads the stored token into a relay credential. Returns nil
// when no token has been stored yet.
func (c *Client) LoadCredential(ctx context.Context) (*relay.Credential, error) {
	access, refresh, expiry, _, err := c.store.GetOAuthToken(ctx, Provider)
	if err != nil {
		return nil, err
	}
	if access == "" && refresh == "" {
		return nil, nil
	}
	return &relay.Credential{AccessToken: access, RefreshToken: refresh, Expiry: expiry}, nil
}

// service builds a YouTube API client bound to the credential's current
// access token. The static token source never refreshes; the scheduler owns
// all refresh decisions.
func (c *Client) service(ctx context.Context, cred *relay.Credential) (*yt.Service, error) {
	tok := &oauth2.Token{AccessToken: cred.AccessToken, TokenType: "Bearer"}
	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok))
	opts := []option.ClientOption{option.WithHTTPClient(hc)}
	if c.base != "" {
		opts = append(opts, option.WithEndpoint(c.base))
	}
	return yt.NewService(ctx, opts...)
}

// ResolveChannel returns the channel the stored credential authorizes.
func (c *Client) ResolveChannel(ctx context.Context, cred *relay.Credential) (*relay.ChannelIdentity, error) {
	svc, err := c.service(ctx, cred)
	if err != nil {
		return nil, err
	}
	resp, err := svc.Channels.List([]string{"snippet"}).Mine(true).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("channels.list: %w", err)
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("no channel for authorized credential")
	}
	ch := resp.Items[0]
	ident := &relay.ChannelIdentity{ID: ch.Id}
	if ch.Snippet != nil {
		ident.Title = ch.Snippet.Title
	}
	return ident, nil
}

// ResolveActiveBroadcast returns the live session for the currently active
// broadcast, or nil when nothing is live (not an error). A broadcast without
// a live chat (chat disabled) also counts as not live for the relay.
func (c *Client) ResolveActiveBroadcast(ctx context.Context, cred *relay.Credential) (*relay.LiveSession, error) {
	svc, err := c.service(ctx, cred)
	if err != nil {
		return nil, err
	}
	resp, err := svc.LiveBroadcasts.List([]string{"snippet"}).BroadcastStatus("active").BroadcastType("all").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("liveBroadcasts.list: %w", err)
	}
	for _, b := range resp.Items {
		if b.Snippet == nil || b.Snippet.LiveChatId == "" {
			continue
		}
		return &relay.LiveSession{
			BroadcastID: b.Id,
			Title:       b.Snippet.Title,
			LiveChatID:  b.Snippet.LiveChatId,
		}, nil
	}
	return nil, nil
}

// FetchChatPage fetches one page of chat items after pageToken. The
// continuation token and the server's polling interval hint are passed
// through untouched.
func (c *Client) FetchChatPage(ctx context.Context, cred *relay.Credential, liveChatID, pageToken string) (*relay.ChatPage, error) {
	svc, err := c.service(ctx, cred)
	if err != nil {
		return nil, err
	}
	call := svc.LiveChatMessages.List(liveChatID, []string{"snippet", "authorDetails"}).Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("liveChatMessages.list: %w", err)
	}
	page := &relay.ChatPage{
		NextPageToken:     resp.NextPageToken,
		SuggestedInterval: time.Duration(resp.PollingIntervalMillis) * time.Millisecond,
	}
	for _, m := range resp.Items {
		page.Items = append(page.Items, itemFromMessage(m))
	}
	return page, nil
}

// Refresh exchanges the refresh token for a new access token. Providers
// often omit a replacement refresh token; callers keep the old one then.
func (c *Client) Refresh(ctx context.Context, cred *relay.Credential) (*relay.Credential, error) {
	if cred.RefreshToken == "" {
		return nil, fmt.Errorf("no refresh token available")
	}
	src := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("token refresh: %w", err)
	}
	return &relay.Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}, nil
}

// RefreshFunc adapts the client for the background token refresher.
func (c *Client) RefreshFunc() func(ctx context.Context, refreshToken string) (string, string, time.Time, error) {
	return func(ctx context.Context, refreshToken string) (string, string, time.Time, error) {
		fresh, err := c.Refresh(ctx, &relay.Credential{RefreshToken: refreshToken})
		if err != nil {
			return "", "", time.Time{}, err
		}
		return fresh.AccessToken, fresh.RefreshToken, fresh.Expiry, nil
	}
}

// itemFromMessage flattens one API message into the relay's transport-free
// item shape.
func itemFromMessage(m *yt.LiveChatMessage) relay.ChatItem {
	item := relay.ChatItem{ID: m.Id}
	if m.Snippet != nil {
		item.DisplayText = m.Snippet.DisplayMessage
		if t, err := time.Parse(time.RFC3339Nano, m.Snippet.PublishedAt); err == nil {
			item.PublishedAt = t.UTC()
		}
		if sc := m.Snippet.SuperChatDetails; sc != nil {
			item.Superchat = &relay.SuperchatDetail{
				AmountDisplay: sc.AmountDisplayString,
				Tier:          sc.Tier,
			}
		}
		if ns := m.Snippet.NewSponsorDetails; ns != nil {
			item.Membership = &relay.MembershipDetail{
				Level:     ns.MemberLevelName,
				IsUpgrade: ns.IsUpgrade,
			}
		}
	}
	if a := m.AuthorDetails; a != nil {
		item.Author = a.DisplayName
		item.IsOwner = a.IsChatOwner
		item.IsModerator = a.IsChatModerator
		item.IsSponsor = a.IsChatSponsor
	}
	return item
}

var _ relay.ChatSource = (*Client)(nil)
