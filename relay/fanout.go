package relay

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/overlaykit/chat-relay/telemetry"
)

// Sink is a live, write-capable subscriber endpoint. Send must not block
// indefinitely; a sink that cannot keep up should drop data or return an
// error, at which point the fanout removes it.
type Sink interface {
	Send(payload []byte) error
}

// Handle identifies one subscription for later removal.
type Handle uint64

// Fanout delivers each broadcast event to every current subscriber. Delivery
// is sequential best-effort: a failed write drops that subscriber and never
// surfaces out of Broadcast. The most recent status event is retained so
// late joiners can learn the engine's health.
type Fanout struct {
	mu         sync.Mutex
	nextHandle Handle
	sinks      map[Handle]Sink
	lastStatus *Event
}

// NewFanout returns an empty subscriber set.
func NewFanout() *Fanout {
	return &Fanout{sinks: make(map[Handle]Sink)}
}

// Subscribe registers a sink and returns its handle.
func (f *Fanout) Subscribe(sink Sink) Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextHandle++
	h := f.nextHandle
	f.sinks[h] = sink
	telemetry.SetSubscribers(len(f.sinks))
	return h
}

// Unsubscribe removes a sink; unknown handles are a no-op.
func (f *Fanout) Unsubscribe(h Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sinks, h)
	telemetry.SetSubscribers(len(f.sinks))
}

// Count returns the current number of subscribers.
func (f *Fanout) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sinks)
}

// LastStatus returns the most recent status event, or nil before the first.
func (f *Fanout) LastStatus() *Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastStatus == nil {
		return nil
	}
	ev := *f.lastStatus
	return &ev
}

// Broadcast serializes the event once and writes it to every subscriber.
// The subscriber set is copied under the lock so sinks added or removed
// mid-broadcast are never touched during iteration. Status events update the
// retained last status; this is the sole mutation point for it.
func (f *Fanout) Broadcast(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Error("event marshal failed", slog.Any("err", err), slog.String("component", "fanout"))
		return
	}

	f.mu.Lock()
	if ev.Type == EventStatus {
		cp := ev
		f.lastStatus = &cp
	}
	targets := make(map[Handle]Sink, len(f.sinks))
	for h, s := range f.sinks {
		targets[h] = s
	}
	f.mu.Unlock()

	telemetry.CountEvent(string(ev.Type))

	var dropped []Handle
	for h, sink := range targets {
		if err := sink.Send(payload); err != nil {
			slog.Debug("dropping subscriber after failed write", slog.Uint64("handle", uint64(h)), slog.Any("err", err), slog.String("component", "fanout"))
			dropped = append(dropped, h)
		}
	}
	for _, h := range dropped {
		f.Unsubscribe(h)
	}
}
