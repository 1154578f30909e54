// Package aggregator fans one filter out to many relays and merges the
// resulting event streams by id.
package aggregator

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/AreaLayer/daisy/internal/metrics"
	"github.com/AreaLayer/daisy/internal/nostr"
	"github.com/AreaLayer/daisy/internal/relay"
	"github.com/AreaLayer/daisy/internal/types"
)

const (
	// DefaultDeadline bounds how long Collect waits for relays.
	DefaultDeadline = 3000 * time.Millisecond
	// DefaultLimit is used when the filter has no limit.
	DefaultLimit = 50
)

type options struct {
	deadline time.Duration
}

// Option configures Collect.
type Option func(*options)

// WithDeadline overrides DefaultDeadline.
func WithDeadline(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.deadline = d
		}
	}
}

// merge is the id-keyed result shared by every relay feeding one Collect.
type merge struct {
	mu      sync.Mutex
	byID    map[string]types.Event
	order   []string
	limit   int
	settled bool
	full    chan struct{}
}

func newMerge(limit int) *merge {
	return &merge{
		byID:  make(map[string]types.Event),
		limit: limit,
		full:  make(chan struct{}),
	}
}

// add merges evt (last write wins, relays seen accumulate) and reports false
// once the merge has settled.
func (m *merge) add(evt types.Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.settled {
		return false
	}
	prev, seen := m.byID[evt.ID]
	metrics.IncrementEventReceived(seen)
	if seen {
		evt.RelaysSeen = mergeRelays(prev.RelaysSeen, evt.RelaysSeen)
		m.byID[evt.ID] = evt
		return true
	}
	if len(m.byID) >= m.limit {
		return true
	}
	m.order = append(m.order, evt.ID)
	m.byID[evt.ID] = evt

	if len(m.byID) == m.limit {
		close(m.full)
	}
	return true
}

func mergeRelays(a, b []string) []string {
	out := append([]string(nil), a...)
	for _, url := range b {
		if !slices.Contains(out, url) {
			out = append(out, url)
		}
	}
	return out
}

// settle freezes the merge and returns its events in first-seen order.
func (m *merge) settle() []types.Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.settled = true
	events := make([]types.Event, 0, len(m.order))
	for _, id := range m.order {
		events = append(events, m.byID[id])
	}
	return events
}

// Collect subscribes filter on every relay that supports subscriptions and
// merges the events by id. It resolves when the number of distinct events
// reaches the filter limit, when every relay has finished, or at the
// deadline with whatever has arrived. Relay faults only shrink the result.
func Collect(ctx context.Context, relays []relay.Relay, filter types.Filter, opts ...Option) []types.Event {
	o := options{deadline: DefaultDeadline}
	for _, opt := range opts {
		opt(&o)
	}

	filter = filter.Clone()
	if filter.Limit <= 0 {
		filter.Limit = DefaultLimit
	}

	ctx, cancel := context.WithTimeout(ctx, o.deadline)
	defer cancel()

	m := newMerge(filter.Limit)
	subs := subscribeAll(ctx, relays, filter)

	var wg sync.WaitGroup
	for _, s := range subs {
		wg.Add(1)
		go func(s relaySub) {
			defer wg.Done()
			drain(s, m, nostr.Normalize)
		}(s)
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	reason := metrics.ResolvedDeadline
	select {
	case <-m.full:
		reason = metrics.ResolvedLimit
	case <-finished:
		reason = metrics.ResolvedEOSE
	case <-ctx.Done():
	}

	events := m.settle()
	for _, s := range subs {
		s.sub.Unsubscribe()
	}
	wg.Wait()

	metrics.IncrementCollectResolved(reason)
	slog.Debug("collect resolved",
		"reason", reason,
		"count", len(events),
		"limit", filter.Limit,
		"relays", len(subs))
	return events
}

type relaySub struct {
	url string
	sub *relay.Subscription
}

// subscribeAll opens one subscription per capable relay before anything waits.
func subscribeAll(ctx context.Context, relays []relay.Relay, filter types.Filter) []relaySub {
	subs := make([]relaySub, 0, len(relays))
	for _, r := range relays {
		s, ok := r.(relay.Subscriber)
		if !ok {
			continue
		}
		sub, err := s.Subscribe(ctx, filter)
		if err != nil {
			slog.Debug("subscribe failed", "relay", r.URL(), "error", err)
			continue
		}
		subs = append(subs, relaySub{url: r.URL(), sub: sub})
	}
	return subs
}

// drain feeds one relay's events into the merge until the relay signals end
// of stored events, the subscription ends, or the merge settles.
func drain(s relaySub, m *merge, normalize func(types.Event) types.Event) {
	for {
		select {
		case evt := <-s.sub.Events():
			if !m.add(normalize(evt)) {
				s.sub.Unsubscribe()
				return
			}
		case <-s.sub.EOSE():
			// events queued before EOSE still belong to the stored set
			drainQueued(s, m, normalize)
			slog.Debug("end of stored events", "relay", s.url, "sub_id", s.sub.ID)
			s.sub.Unsubscribe()
			return
		case <-s.sub.Done():
			// the relay may end a subscription with events still buffered
			drainQueued(s, m, normalize)
			return
		}
	}
}

// drainQueued merges whatever is already buffered without waiting for more.
func drainQueued(s relaySub, m *merge, normalize func(types.Event) types.Event) {
	for {
		select {
		case evt := <-s.sub.Events():
			if !m.add(normalize(evt)) {
				return
			}
		default:
			return
		}
	}
}

// CollectOne resolves with the first event any relay sends and closes every
// subscription at that point. ok is false when all relays finish without an
// event or ctx ends; there is no deadline of its own.
func CollectOne(ctx context.Context, relays []relay.Relay, filter types.Filter) (types.Event, bool) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	subs := subscribeAll(ctx, relays, filter)

	var (
		once  sync.Once
		first = make(chan types.Event, 1)
		wg    sync.WaitGroup
	)
	for _, s := range subs {
		wg.Add(1)
		go func(s relaySub) {
			defer wg.Done()
			deliver := func(evt types.Event) {
				once.Do(func() {
					first <- nostr.NormalizeAny(evt)
				})
			}
			select {
			case evt := <-s.sub.Events():
				deliver(evt)
			case <-s.sub.EOSE():
				select {
				case evt := <-s.sub.Events():
					deliver(evt)
				default:
				}
			case <-s.sub.Done():
			case <-ctx.Done():
			}
			s.sub.Unsubscribe()
		}(s)
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	var (
		evt types.Event
		ok  bool
	)
	select {
	case evt = <-first:
		ok = true
	case <-finished:
		// a relay may have delivered just before the last one finished
		select {
		case evt = <-first:
			ok = true
		default:
		}
	case <-ctx.Done():
	}

	cancel()
	for _, s := range subs {
		s.sub.Unsubscribe()
	}
	wg.Wait()
	return evt, ok
}
