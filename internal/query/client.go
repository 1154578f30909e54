// Package query composes relay fetches into the operations a client needs:
// feeds, profiles, threads and publishing.
package query

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AreaLayer/daisy/internal/aggregator"
	"github.com/AreaLayer/daisy/internal/config"
	"github.com/AreaLayer/daisy/internal/nostr"
	"github.com/AreaLayer/daisy/internal/relay"
	"github.com/AreaLayer/daisy/internal/resolver"
	"github.com/AreaLayer/daisy/internal/types"
)

// Dialer opens the relay sessions for one operation.
type Dialer func(ctx context.Context, endpoints []string, timeout time.Duration) []relay.Relay

// DialWebsocket connects to every endpoint, skipping relays that fail or time out.
func DialWebsocket(ctx context.Context, endpoints []string, timeout time.Duration) []relay.Relay {
	conns := relay.OpenAll(ctx, endpoints, timeout)
	relays := make([]relay.Relay, len(conns))
	for i, c := range conns {
		relays[i] = c
	}
	return relays
}

// Client runs queries against the configured relays. Relay sessions are
// opened per operation and closed before it returns.
type Client struct {
	cfg          config.Config
	dial         Dialer
	profiles     singleflight.Group
	profileBatch *Batcher[types.Event]
}

// Profile metadata batching
const (
	profileBatchWindow = 50 * time.Millisecond
	profileBatchMax    = 100
)

// Option configures a Client.
type Option func(*Client)

// WithDialer replaces the websocket dialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) {
		c.dial = d
	}
}

// New creates a client. Zero config fields take their defaults.
func New(cfg config.Config, opts ...Option) *Client {
	c := &Client{
		cfg:  cfg.WithDefaults(),
		dial: DialWebsocket,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.profileBatch = NewBatcher("profiles", c.fetchProfileMetadata, profileBatchWindow, profileBatchMax)
	return c
}

// Config returns the effective configuration.
func (c *Client) Config() config.Config {
	return c.cfg
}

// connect dials the relays; the returned func closes every session.
func (c *Client) connect(ctx context.Context) ([]relay.Relay, func()) {
	relays := c.dial(ctx, c.cfg.Relays, c.cfg.ConnectTimeout)
	if len(relays) == 0 {
		slog.Warn("no relay connected", "configured", len(c.cfg.Relays))
	}
	return relays, func() {
		for _, r := range relays {
			if closer, ok := r.(interface{ Close() error }); ok {
				closer.Close()
			}
		}
	}
}

func (c *Client) collectOpts() []aggregator.Option {
	return []aggregator.Option{aggregator.WithDeadline(c.cfg.FetchTimeout)}
}

func (c *Client) limit(limit int) int {
	if limit > 0 {
		return limit
	}
	return c.cfg.FetchLimit
}

// FetchEventsForAuthors returns notes and reposts by pubkeys with their related events and profiles.
func (c *Client) FetchEventsForAuthors(ctx context.Context, pubkeys []string, limit int) types.ResultSet {
	filter := types.Filter{
		Authors: pubkeys,
		Kinds:   []int{types.KindNote, types.KindRepost},
		Limit:   c.limit(limit),
	}
	return c.fetchAndResolve(ctx, filter)
}

// FetchEventsMentioning returns notes and reposts tagging pubkey. Related
// events and profiles are not resolved for mention feeds.
func (c *Client) FetchEventsMentioning(ctx context.Context, pubkey string, limit int) types.ResultSet {
	filter := types.Filter{
		Kinds: []int{types.KindNote, types.KindRepost},
		Limit: c.limit(limit),
	}.PTags(pubkey)

	relays, closeAll := c.connect(ctx)
	defer closeAll()

	result := types.EmptyResultSet()
	result.Notes = aggregator.Collect(ctx, relays, filter, c.collectOpts()...)
	return result
}

// FetchThread returns the notes replying to eventIDs with their related events and profiles.
func (c *Client) FetchThread(ctx context.Context, eventIDs []string) types.ResultSet {
	filter := types.Filter{
		Kinds: []int{types.KindNote},
		Limit: c.cfg.FetchLimit,
	}.ETags(eventIDs...)
	return c.fetchAndResolve(ctx, filter)
}

func (c *Client) fetchAndResolve(ctx context.Context, filter types.Filter) types.ResultSet {
	relays, closeAll := c.connect(ctx)
	defer closeAll()

	notes := aggregator.Collect(ctx, relays, filter, c.collectOpts()...)
	related := resolver.ResolveRelated(ctx, relays, notes, c.collectOpts()...)

	return types.ResultSet{
		Notes:    notes,
		Related:  related.Related,
		Profiles: related.Profiles,
	}
}

// FetchProfile fetches the profile metadata and contact list of pubkey
// concurrently. Concurrent calls for the same pubkey share one fetch; a caller
// whose ctx ends stops waiting without cancelling it for the others.
func (c *Client) FetchProfile(ctx context.Context, pubkey string) types.ProfileResult {
	ch := c.profiles.DoChan(pubkey, func() (interface{}, error) {
		return c.fetchProfile(pubkey), nil
	})
	select {
	case res := <-ch:
		if res.Shared {
			slog.Debug("singleflight: shared profile fetch", "pubkey", nostr.ShortID(pubkey))
		}
		return res.Val.(types.ProfileResult)
	case <-ctx.Done():
		return types.ProfileResult{}
	}
}

// fetchProfile is shared between callers, so it carries its own timeout.
func (c *Client) fetchProfile(pubkey string) types.ProfileResult {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout+c.cfg.FetchTimeout)
	defer cancel()

	relays, closeAll := c.connect(ctx)
	defer closeAll()

	var (
		result types.ProfileResult
		wg     sync.WaitGroup
	)
	fetch := func(kind int, dst **types.Event) {
		defer wg.Done()
		filter := types.Filter{Kinds: []int{kind}, Authors: []string{pubkey}}
		if evt, ok := aggregator.CollectOne(ctx, relays, filter); ok {
			*dst = &evt
		}
	}
	wg.Add(2)
	go fetch(types.KindProfileMetadata, &result.Profile)
	go fetch(types.KindContactList, &result.ContactList)
	wg.Wait()

	return result
}

// FetchContactList returns the newest contact list of pubkey across all
// relays. Unlike FetchProfile it waits for every relay rather than the first.
func (c *Client) FetchContactList(ctx context.Context, pubkey string) (types.Event, bool) {
	relays, closeAll := c.connect(ctx)
	defer closeAll()

	filter := types.Filter{
		Kinds:   []int{types.KindContactList},
		Authors: []string{pubkey},
		Limit:   max(1, len(relays)),
	}
	var (
		newest types.Event
		found  bool
	)
	for _, evt := range aggregator.Collect(ctx, relays, filter, c.collectOpts()...) {
		if evt.PubKey != pubkey {
			continue
		}
		if !found || evt.CreatedAt > newest.CreatedAt {
			newest, found = evt, true
		}
	}
	return newest, found
}

// FetchProfiles returns the profile metadata events of pubkeys keyed by
// pubkey. Lookups from concurrent callers are merged into one relay query.
func (c *Client) FetchProfiles(ctx context.Context, pubkeys []string) map[string]types.Event {
	if keys, waiters := c.profileBatch.Stats(); keys > 0 {
		slog.Debug("joining pending profile batch", "pending_keys", keys, "waiters", waiters)
	}
	return c.profileBatch.GetMultiple(ctx, pubkeys)
}

// fetchProfileMetadata runs one batch. It is detached from any single
// caller, so it carries its own timeout.
func (c *Client) fetchProfileMetadata(pubkeys []string) map[string]types.Event {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout+c.cfg.FetchTimeout)
	defer cancel()

	relays, closeAll := c.connect(ctx)
	defer closeAll()

	// each relay keeps one version per author, so relays may disagree on which
	filter := types.Filter{
		Kinds:   []int{types.KindProfileMetadata},
		Authors: pubkeys,
		Limit:   len(pubkeys) * max(1, len(relays)),
	}
	profiles := make(map[string]types.Event, len(pubkeys))
	for _, evt := range aggregator.Collect(ctx, relays, filter, c.collectOpts()...) {
		if prev, ok := profiles[evt.PubKey]; !ok || evt.CreatedAt >= prev.CreatedAt {
			profiles[evt.PubKey] = evt
		}
	}
	return profiles
}

// Collect runs a raw aggregated fetch.
func (c *Client) Collect(ctx context.Context, filter types.Filter) []types.Event {
	relays, closeAll := c.connect(ctx)
	defer closeAll()
	return aggregator.Collect(ctx, relays, filter, c.collectOpts()...)
}

// CollectOne returns the first event any relay sends for filter, bounded by the fetch timeout.
func (c *Client) CollectOne(ctx context.Context, filter types.Filter) (types.Event, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout+c.cfg.FetchTimeout)
	defer cancel()

	relays, closeAll := c.connect(ctx)
	defer closeAll()
	return aggregator.CollectOne(ctx, relays, filter)
}
