// Package relaytest provides an in-memory relay for tests of code built on
// the relay capability interfaces.
package relaytest

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/AreaLayer/daisy/internal/relay"
	"github.com/AreaLayer/daisy/internal/types"
)

// Relay serves stored events matching each subscription filter, then EOSE.
// Published events are answered according to Accept and AcceptAfter.
type Relay struct {
	Endpoint string

	// Accept answers publications with OK true; otherwise they get no answer.
	Accept bool
	// AcceptAfter delays the OK.
	AcceptAfter time.Duration
	// Reject answers publications with OK false and this reason.
	Reject string

	mu        sync.Mutex
	events    []types.Event
	filters   []types.Filter
	published []types.Event
	seq       int
}

// New creates a relay holding events.
func New(endpoint string, events ...types.Event) *Relay {
	return &Relay{Endpoint: endpoint, events: events}
}

func (r *Relay) URL() string { return r.Endpoint }

// Subscribe implements relay.Subscriber.
func (r *Relay) Subscribe(ctx context.Context, filter types.Filter) (*relay.Subscription, error) {
	r.mu.Lock()
	r.seq++
	id := fmt.Sprintf("%s-%d", r.Endpoint, r.seq)
	r.filters = append(r.filters, filter.Clone())
	var matched []types.Event
	for _, evt := range r.events {
		if Matches(filter, evt) {
			evt.RelaysSeen = []string{r.Endpoint}
			matched = append(matched, evt)
		}
	}
	r.mu.Unlock()

	sub := relay.NewSubscription(id, nil)
	go func() {
		for _, evt := range matched {
			if !sub.Dispatch(evt) {
				return
			}
		}
		sub.EndOfStoredEvents()
	}()
	return sub, nil
}

// Publish implements relay.Publisher.
func (r *Relay) Publish(ctx context.Context, evt types.Event) (*relay.Publication, error) {
	r.mu.Lock()
	r.published = append(r.published, evt)
	r.mu.Unlock()

	pub := relay.NewPublication(evt.ID)
	switch {
	case r.Reject != "":
		pub.Reject(r.Reject)
	case r.Accept:
		go func() {
			if r.AcceptAfter > 0 {
				time.Sleep(r.AcceptAfter)
			}
			pub.MarkSeen()
			pub.Accept()
		}()
	}
	return pub, nil
}

// Filters returns every filter subscribed so far.
func (r *Relay) Filters() []types.Filter {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Filter(nil), r.filters...)
}

// Published returns every event received through Publish.
func (r *Relay) Published() []types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Event(nil), r.published...)
}

// Requested reports whether any filter asked for id by id or by e tag.
func (r *Relay) Requested(id string) bool {
	for _, f := range r.Filters() {
		if slices.Contains(f.IDs, id) || slices.Contains(f.Tags["e"], id) {
			return true
		}
	}
	return false
}

// Matches applies NIP-01 filter semantics, ignoring limit.
func Matches(f types.Filter, evt types.Event) bool {
	if len(f.IDs) > 0 && !slices.Contains(f.IDs, evt.ID) {
		return false
	}
	if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, evt.Kind) {
		return false
	}
	if len(f.Authors) > 0 && !slices.Contains(f.Authors, evt.PubKey) {
		return false
	}
	if f.Since != nil && evt.CreatedAt < *f.Since {
		return false
	}
	if f.Until != nil && evt.CreatedAt > *f.Until {
		return false
	}
	for name, values := range f.Tags {
		if len(values) == 0 {
			continue
		}
		if !slices.ContainsFunc(types.TagValues(evt.Tags, name), func(v string) bool {
			return slices.Contains(values, v)
		}) {
			return false
		}
	}
	return true
}
