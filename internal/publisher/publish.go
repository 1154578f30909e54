// Package publisher signs events and broadcasts them to relays.
package publisher

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/AreaLayer/daisy/internal/metrics"
	"github.com/AreaLayer/daisy/internal/nostr"
	"github.com/AreaLayer/daisy/internal/relay"
	"github.com/AreaLayer/daisy/internal/types"
)

// DefaultDeadline bounds how long Publish waits for a relay to accept.
const DefaultDeadline = 5000 * time.Millisecond

type options struct {
	deadline time.Duration
	clock    clock.Clock
}

// Option configures Publish.
type Option func(*options)

// WithDeadline overrides DefaultDeadline.
func WithDeadline(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.deadline = d
		}
	}
}

// WithClock sets the clock used for created_at and the deadline timer.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// Publish signs a new event and sends it to every relay that accepts
// publications. It returns the event as soon as one relay accepts it, or
// ok=false if none does before the deadline. Seen and rejected signals are
// logged only.
func Publish(ctx context.Context, relays []relay.Relay, signer nostr.Signer, kind int, content string, tags [][]string, opts ...Option) (types.Event, bool) {
	o := options{deadline: DefaultDeadline, clock: clock.New()}
	for _, opt := range opts {
		opt(&o)
	}

	if tags == nil {
		tags = [][]string{}
	}
	evt := types.Event{
		Kind:      kind,
		CreatedAt: o.clock.Now().Unix(),
		Content:   content,
		Tags:      tags,
	}
	if err := nostr.Finalize(&evt, signer); err != nil {
		slog.Error("failed to sign event", "kind", kind, "error", err)
		return types.Event{}, false
	}

	timer := o.clock.Timer(o.deadline)
	defer timer.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	accepted := make(chan string, len(relays))
	for _, r := range relays {
		p, ok := r.(relay.Publisher)
		if !ok {
			continue
		}
		pub, err := p.Publish(ctx, evt)
		if err != nil {
			slog.Warn("failed to publish", "relay", r.URL(), "error", err)
			continue
		}
		go watch(ctx, r.URL(), pub, accepted)
	}

	select {
	case url := <-accepted:
		metrics.IncrementPublishAccepted()
		slog.Info("event accepted", "relay", url, "event_id", nostr.ShortID(evt.ID), "kind", kind)
		return evt, true
	case <-timer.C:
	case <-ctx.Done():
	}

	metrics.IncrementPublishTimedOut()
	slog.Warn("no relay accepted event", "event_id", nostr.ShortID(evt.ID), "deadline", o.deadline)
	return types.Event{}, false
}

// watch reports one relay's acceptance and logs its other signals until ctx ends.
func watch(ctx context.Context, url string, pub *relay.Publication, accepted chan<- string) {
	seen := pub.Seen()
	for {
		select {
		case <-pub.Accepted():
			accepted <- url
			return
		case reason := <-pub.Rejected():
			metrics.IncrementPublishRejected()
			slog.Warn("relay rejected event", "relay", url, "event_id", nostr.ShortID(pub.EventID), "reason", reason)
			return
		case <-seen:
			slog.Debug("event seen on relay", "relay", url, "event_id", nostr.ShortID(pub.EventID))
			seen = nil
		case <-ctx.Done():
			return
		}
	}
}
