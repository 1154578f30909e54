// Package resolver expands a set of events with the events and profiles
// they reference.
package resolver

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/AreaLayer/daisy/internal/aggregator"
	"github.com/AreaLayer/daisy/internal/nostr"
	"github.com/AreaLayer/daisy/internal/relay"
	"github.com/AreaLayer/daisy/internal/types"
)

// Related holds the referenced events and the author profiles of a base set.
type Related struct {
	Related  []types.Event
	Profiles map[string]types.Event
}

// ResolveRelated fetches what base refers to: repost targets, reply parents,
// events referencing the base set, and the profiles of every author seen.
// Reposts that embed their target are used as-is without a fetch.
func ResolveRelated(ctx context.Context, relays []relay.Relay, base []types.Event, opts ...aggregator.Option) Related {
	var embedded []types.Event
	repostIDs := newOrderedSet()
	replyIDs := newOrderedSet()

	for _, evt := range base {
		if evt.Kind == types.KindRepost {
			if target, ok := nostr.EmbeddedEvent(evt.Content); ok {
				embedded = append(embedded, target)
				continue
			}
			if id := types.FirstTagValue(evt.Tags, "e"); id != "" {
				repostIDs.add(id)
			}
			continue
		}
		if id := types.FirstTagValue(evt.Tags, "e"); id != "" {
			replyIDs.add(id)
		}
	}

	refs := newOrderedSet()
	refs.addAll(replyIDs.list()...)
	refs.addAll(repostIDs.list()...)
	for _, evt := range base {
		refs.add(evt.ID)
	}

	targets := newOrderedSet()
	targets.addAll(replyIDs.list()...)
	targets.addAll(repostIDs.list()...)

	var relatedNotes, replyNotes []types.Event
	var g errgroup.Group
	if refs.len() > 0 {
		g.Go(func() error {
			filter := types.Filter{
				Kinds: []int{types.KindNote, types.KindRepost},
				Limit: replyIDs.len(),
			}.ETags(refs.list()...)
			relatedNotes = aggregator.Collect(ctx, relays, filter, opts...)
			return nil
		})
	}
	if targets.len() > 0 {
		// a repost may point at another repost
		kinds := []int{types.KindNote}
		if repostIDs.len() > 0 {
			kinds = append(kinds, types.KindRepost)
		}
		g.Go(func() error {
			filter := types.Filter{
				IDs:   targets.list(),
				Kinds: kinds,
				Limit: targets.len(),
			}
			replyNotes = aggregator.Collect(ctx, relays, filter, opts...)
			return nil
		})
	}
	g.Wait()

	authors := newOrderedSet()
	for _, evt := range base {
		if evt.Kind == types.KindNote {
			authors.add(evt.PubKey)
		}
	}
	for _, set := range [][]types.Event{embedded, relatedNotes, replyNotes} {
		for _, evt := range set {
			authors.add(evt.PubKey)
		}
	}

	profiles := make(map[string]types.Event, authors.len())
	if authors.len() > 0 {
		filter := types.Filter{
			Kinds:   []int{types.KindProfileMetadata},
			Authors: authors.list(),
			Limit:   authors.len(),
		}
		// keyed by pubkey, last processed wins; no recency comparison
		for _, evt := range aggregator.Collect(ctx, relays, filter, opts...) {
			profiles[evt.PubKey] = evt
		}
	}

	related := dedupe(embedded, relatedNotes, replyNotes)
	slog.Debug("related events resolved",
		"base", len(base),
		"embedded", len(embedded),
		"related", len(relatedNotes),
		"replies", len(replyNotes),
		"profiles", len(profiles))

	return Related{Related: related, Profiles: profiles}
}

// dedupe concatenates the sets keeping the first occurrence of each id.
func dedupe(sets ...[]types.Event) []types.Event {
	seen := make(map[string]bool)
	out := []types.Event{}
	for _, set := range sets {
		for _, evt := range set {
			if seen[evt.ID] {
				continue
			}
			seen[evt.ID] = true
			out = append(out, evt)
		}
	}
	return out
}

type orderedSet struct {
	index map[string]bool
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{index: make(map[string]bool)}
}

func (s *orderedSet) add(v string) {
	if v == "" || s.index[v] {
		return
	}
	s.index[v] = true
	s.items = append(s.items, v)
}

func (s *orderedSet) addAll(vs ...string) {
	for _, v := range vs {
		s.add(v)
	}
}

func (s *orderedSet) len() int       { return len(s.items) }
func (s *orderedSet) list() []string { return append([]string(nil), s.items...) }
