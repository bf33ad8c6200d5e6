package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/overlaykit/chat-relay/telemetry"
)

// State is the scheduler's lifecycle position.
type State int

const (
	// StateDisabled: no wake scheduled, cursor cleared.
	StateDisabled State = iota
	// StateArmed: a future wake is scheduled.
	StateArmed
	// StateInFlight: a poll cycle is outstanding.
	StateInFlight
	// StateBackoff: a wake is scheduled but delayed by quota backoff.
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateArmed:
		return "armed"
	case StateInFlight:
		return "in_flight"
	case StateBackoff:
		return "backoff"
	default:
		return "unknown"
	}
}

// Config tunes the scheduler's cadence. Zero fields fall back to defaults.
type Config struct {
	// MinInterval is the hard floor on every normal poll delay.
	MinInterval time.Duration
	// BaseInterval is the configured cadence between successful polls. The
	// remote API's suggested interval raises the effective delay but never
	// lowers it below MinInterval.
	BaseInterval time.Duration
	// BackoffBase seeds the exponential quota backoff; doubles per
	// consecutive quota error up to BackoffMax.
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// ErrorRetryInterval is the slowed fixed cadence after a chat-ended
	// reset or any generic failure.
	ErrorRetryInterval time.Duration
	// IdentityTTL bounds how long the resolved channel identity is reused.
	IdentityTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.MinInterval <= 0 {
		c.MinInterval = 2 * time.Second
	}
	if c.BaseInterval <= 0 {
		c.BaseInterval = 5 * time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 30 * time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 15 * time.Minute
	}
	if c.ErrorRetryInterval <= 0 {
		c.ErrorRetryInterval = 30 * time.Second
	}
	if c.IdentityTTL <= 0 {
		c.IdentityTTL = 6 * time.Hour
	}
	return c
}

// Scheduler owns the poll loop for one session: it decides when to call the
// chat source, interprets results, updates the session, pushes events
// through the fanout, and re-arms its own timer with the computed delay.
// Only one cycle is ever in flight; a wake that fires mid-cycle is a no-op.
type Scheduler struct {
	cfg    Config
	source ChatSource
	fanout *Fanout
	ctx    context.Context

	// OnRefresh, when set, is invoked with a copy of the credential after a
	// successful in-cycle refresh so the caller can persist it.
	OnRefresh func(Credential)

	mu           sync.Mutex
	session      *Session
	state        State
	timer        *time.Timer
	inFlight     bool
	nextWake     time.Time
	backoffUntil time.Time
	quotaStreak  int

	now func() time.Time
}

// NewScheduler builds a disabled scheduler around the given session. The
// context bounds all remote calls; cancelling it ends any in-flight cycle at
// the next remote call.
func NewScheduler(ctx context.Context, cfg Config, source ChatSource, fanout *Fanout, session *Session) *Scheduler {
	return &Scheduler{
		cfg:     cfg.withDefaults(),
		source:  source,
		fanout:  fanout,
		ctx:     ctx,
		session: session,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Enable arms the scheduler for a near-immediate first poll. Idempotent.
func (s *Scheduler) Enable() {
	s.mu.Lock()
	if s.state != StateDisabled {
		s.mu.Unlock()
		return
	}
	s.state = StateArmed
	s.quotaStreak = 0
	s.backoffUntil = time.Time{}
	s.mu.Unlock()

	// The notice goes out before the first wake is armed; the first cycle's
	// statuses always follow it.
	slog.Info("polling enabled", slog.String("component", "relay"))
	s.fanout.Broadcast(StatusEvent(SeverityInfo, "polling enabled"))

	s.mu.Lock()
	if s.state == StateArmed {
		s.armLocked(0)
	}
	s.mu.Unlock()
}

// Disable cancels any pending wake, resets the cursor, and emits a status
// notice. Idempotent. An in-flight remote call is not preempted, but its
// results are discarded and no further wake is armed.
func (s *Scheduler) Disable() {
	s.mu.Lock()
	if s.state == StateDisabled {
		s.mu.Unlock()
		return
	}
	s.state = StateDisabled
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.nextWake = time.Time{}
	s.backoffUntil = time.Time{}
	s.session.resetLive()
	s.mu.Unlock()
	slog.Info("polling disabled", slog.String("component", "relay"))
	s.fanout.Broadcast(StatusEvent(SeverityInfo, "polling disabled"))
}

// SetCredential installs new authorization material into the session and
// invalidates the cached channel identity. An in-flight cycle keeps the copy
// it took at cycle start; the next cycle picks up the new credential.
func (s *Scheduler) SetCredential(cred Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*s.session.Cred = cred
	s.session.identityStale = true
}

// Subscribe registers a sink on the underlying fanout.
func (s *Scheduler) Subscribe(sink Sink) Handle { return s.fanout.Subscribe(sink) }

// Unsubscribe removes a fanout subscription.
func (s *Scheduler) Unsubscribe(h Handle) { s.fanout.Unsubscribe(h) }

// LastStatus returns the retained status notice for late joiners.
func (s *Scheduler) LastStatus() *Event { return s.fanout.LastStatus() }

// Snapshot returns the diagnostic view of the engine.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Enabled:     s.state != StateDisabled,
		State:       s.state.String(),
		PageToken:   s.session.Cursor.PageToken,
		LastItemID:  s.session.Cursor.LastItemID,
		Subscribers: s.fanout.Count(),
		LastStatus:  s.fanout.LastStatus(),
	}
	if s.session.Identity != nil {
		snap.Channel = s.session.Identity.Title
	}
	if s.session.Live != nil {
		snap.BroadcastID = s.session.Live.BroadcastID
		snap.LiveChatID = s.session.Live.LiveChatID
	}
	if !s.nextWake.IsZero() {
		t := s.nextWake
		snap.NextWake = &t
	}
	if !s.backoffUntil.IsZero() {
		t := s.backoffUntil
		snap.BackoffUntil = &t
	}
	return snap
}

// armLocked schedules the next wake. Caller holds s.mu.
func (s *Scheduler) armLocked(d time.Duration) {
	if d < 0 {
		d = 0
	}
	s.nextWake = s.now().Add(d)
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(d, s.wake)
}

// wake is the timer callback. It disarms before starting work and re-arms
// only after the cycle completes, so a stray fire during a cycle cannot
// start a second one.
func (s *Scheduler) wake() {
	s.mu.Lock()
	if s.state == StateDisabled || s.inFlight {
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	s.state = StateInFlight
	s.timer = nil
	s.mu.Unlock()

	res := s.runCycle(s.ctx)

	s.mu.Lock()
	s.inFlight = false
	if s.state == StateDisabled {
		// Disabled mid-cycle: stay down, do not re-arm.
		s.mu.Unlock()
		return
	}
	s.state = res.state
	if res.state == StateBackoff {
		s.backoffUntil = s.now().Add(res.delay)
		telemetry.SetBackoffSeconds(res.delay.Seconds())
	} else {
		s.backoffUntil = time.Time{}
		telemetry.SetBackoffSeconds(0)
	}
	s.armLocked(res.delay)
	s.mu.Unlock()
}

type cycleResult struct {
	delay time.Duration
	state State
}

// runCycle performs one full poll: identity, live session, page fetch,
// cursor advance, classification, broadcast, completion notice. Remote calls
// happen outside the lock against a credential copy taken under it; session
// mutations re-check for a mid-cycle disable before applying.
func (s *Scheduler) runCycle(ctx context.Context) cycleResult {
	now := s.now()

	s.mu.Lock()
	sess := s.session
	cred := *sess.Cred
	needIdentity := !sess.identityFresh(now, s.cfg.IdentityTTL)
	s.mu.Unlock()

	if needIdentity {
		ident, err := s.source.ResolveChannel(ctx, &cred)
		if err != nil && cred.RefreshToken != "" {
			if rerr := s.refreshCredential(ctx, &cred); rerr != nil {
				s.fanout.Broadcast(StatusEvent(SeverityWarn, "credential refresh failed: "+rerr.Error()))
			} else {
				ident, err = s.source.ResolveChannel(ctx, &cred)
			}
		}
		if err != nil {
			s.mu.Lock()
			sess.identityStale = true
			s.mu.Unlock()
			return s.failCycle("channel identity", err)
		}
		ident.ResolvedAt = now
		s.mu.Lock()
		if s.state != StateDisabled {
			sess.Identity = ident
			sess.identityStale = false
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	live := sess.Live
	s.mu.Unlock()
	if live == nil {
		resolved, err := s.source.ResolveActiveBroadcast(ctx, &cred)
		if err != nil {
			return s.failCycle("live broadcast", err)
		}
		if resolved == nil {
			s.fanout.Broadcast(StatusEvent(SeverityWarn, "no active live broadcast"))
			return cycleResult{delay: s.cfg.ErrorRetryInterval, state: StateArmed}
		}
		s.mu.Lock()
		if s.state != StateDisabled {
			sess.Live = resolved
			sess.Cursor = PollCursor{}
		}
		s.mu.Unlock()
		live = resolved
		slog.Info("live broadcast detected",
			slog.String("broadcast_id", live.BroadcastID),
			slog.String("title", live.Title),
			slog.String("component", "relay"))
	}

	s.mu.Lock()
	token := sess.Cursor.PageToken
	s.mu.Unlock()

	fetchStart := time.Now()
	page, err := s.source.FetchChatPage(ctx, &cred, live.LiveChatID, token)
	telemetry.ObserveFetch(time.Since(fetchStart))
	if err != nil {
		return s.failCycle("chat fetch", err)
	}

	items := orderChronological(page.Items)
	s.mu.Lock()
	if s.state != StateDisabled {
		sess.Cursor.PageToken = page.NextPageToken
		if n := len(items); n > 0 {
			sess.Cursor.LastItemID = items[n-1].ID
		}
	}
	s.quotaStreak = 0
	s.mu.Unlock()

	for _, item := range items {
		for _, ev := range Classify(item) {
			s.fanout.Broadcast(ev)
		}
	}
	s.fanout.Broadcast(StatusEvent(SeverityInfo, fmt.Sprintf("poll complete: %d new items", len(items))))
	telemetry.CountPoll()

	delay := s.cfg.BaseInterval
	if page.SuggestedInterval > delay {
		delay = page.SuggestedInterval
	}
	if delay < s.cfg.MinInterval {
		delay = s.cfg.MinInterval
	}
	return cycleResult{delay: delay, state: StateArmed}
}

// failCycle classifies a cycle failure, emits its status notice, and picks
// the recovery cadence. Nothing here is fatal: every class re-arms.
func (s *Scheduler) failCycle(stage string, err error) cycleResult {
	class := ClassifyPollError(err)
	telemetry.CountPollError(class.String())
	slog.Warn("poll cycle failed",
		slog.String("stage", stage),
		slog.String("class", class.String()),
		slog.Any("err", err),
		slog.String("component", "relay"))

	switch class {
	case PollErrorQuota:
		s.mu.Lock()
		s.quotaStreak++
		streak := s.quotaStreak
		s.mu.Unlock()
		delay := backoffDelay(s.cfg.BackoffBase, s.cfg.BackoffMax, streak)
		s.fanout.Broadcast(StatusEvent(SeverityError, fmt.Sprintf("quota exhausted during %s; backing off %s", stage, delay)))
		return cycleResult{delay: delay, state: StateBackoff}
	case PollErrorChatEnded:
		s.mu.Lock()
		if s.state != StateDisabled {
			s.session.resetLive()
		}
		s.mu.Unlock()
		s.fanout.Broadcast(StatusEvent(SeverityWarn, "live chat ended; waiting for a new broadcast"))
		return cycleResult{delay: s.cfg.ErrorRetryInterval, state: StateArmed}
	default:
		s.fanout.Broadcast(StatusEvent(SeverityWarn, stage+" failed: "+err.Error()))
		return cycleResult{delay: s.cfg.ErrorRetryInterval, state: StateArmed}
	}
}

// refreshCredential performs the single opportunistic refresh-and-retry
// allowed per cycle. The cycle's credential copy is updated for the retry and
// the result is written back into the session under the lock. A provider that
// omits a new refresh token keeps the old one.
func (s *Scheduler) refreshCredential(ctx context.Context, cred *Credential) error {
	fresh, err := s.source.Refresh(ctx, cred)
	if err != nil {
		return err
	}
	cred.AccessToken = fresh.AccessToken
	if fresh.RefreshToken != "" {
		cred.RefreshToken = fresh.RefreshToken
	}
	if fresh.Expiry.After(cred.Expiry) {
		cred.Expiry = fresh.Expiry
	}
	s.mu.Lock()
	*s.session.Cred = *cred
	s.mu.Unlock()
	slog.Info("credential refreshed in-cycle", slog.Time("expiry", cred.Expiry), slog.String("component", "relay"))
	if s.OnRefresh != nil {
		s.OnRefresh(*cred)
	}
	return nil
}

// backoffDelay returns min(base * 2^(streak-1), max).
func backoffDelay(base, max time.Duration, streak int) time.Duration {
	if streak < 1 {
		streak = 1
	}
	d := base
	for i := 1; i < streak; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// orderChronological returns the items oldest first. The remote page may
// arrive newest first; subscribers always see the transcript in order.
func orderChronological(items []ChatItem) []ChatItem {
	n := len(items)
	if n > 1 && items[0].PublishedAt.After(items[n-1].PublishedAt) {
		out := make([]ChatItem, n)
		for i, it := range items {
			out[n-1-i] = it
		}
		return out
	}
	return items
}
