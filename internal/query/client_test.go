package query

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AreaLayer/daisy/internal/config"
	"github.com/AreaLayer/daisy/internal/nostr"
	"github.com/AreaLayer/daisy/internal/relay"
	"github.com/AreaLayer/daisy/internal/relay/relaytest"
	"github.com/AreaLayer/daisy/internal/types"
)

const (
	alice = "aa00000000000000000000000000000000000000000000000000000000000000"
	bob   = "bb00000000000000000000000000000000000000000000000000000000000000"
	carol = "cc00000000000000000000000000000000000000000000000000000000000000"
)

func testConfig() config.Config {
	return config.Config{
		Relays:         []string{"wss://test.relay"},
		FetchTimeout:   500 * time.Millisecond,
		PublishTimeout: 500 * time.Millisecond,
	}
}

func newTestClient(relays ...relay.Relay) (*Client, *atomic.Int32) {
	var dials atomic.Int32
	c := New(testConfig(), WithDialer(func(ctx context.Context, endpoints []string, timeout time.Duration) []relay.Relay {
		dials.Add(1)
		return relays
	}))
	return c, &dials
}

func ev(id, pubkey string, kind int, content string, tags ...[]string) types.Event {
	if tags == nil {
		tags = [][]string{}
	}
	return types.Event{ID: id, PubKey: pubkey, Kind: kind, Content: content, Tags: tags}
}

func TestNewAppliesDefaults(t *testing.T) {
	c := New(config.Config{})
	assert.Equal(t, config.Default(), c.Config())
}

func TestFetchEventsForAuthors(t *testing.T) {
	r := relaytest.New("wss://r",
		ev("n1", alice, types.KindNote, "hello"),
		ev("n2", bob, types.KindNote, "not in feed"),
		ev("reply", carol, types.KindNote, "hi alice", []string{"e", "n1"}),
		ev("pa", alice, types.KindProfileMetadata, `{"name":"alice"}`),
		ev("pc", carol, types.KindProfileMetadata, `{"name":"carol"}`),
	)
	c, _ := newTestClient(r)

	result := c.FetchEventsForAuthors(context.Background(), []string{alice}, 0)
	require.Len(t, result.Notes, 1)
	assert.Equal(t, "n1", result.Notes[0].ID)
	require.Len(t, result.Related, 1)
	assert.Equal(t, "reply", result.Related[0].ID)
	assert.Equal(t, "alice", result.Profiles[alice].Decoded.Field("name"))
	assert.Equal(t, "carol", result.Profiles[carol].Decoded.Field("name"))

	feed := r.Filters()[0]
	assert.Equal(t, []int{types.KindNote, types.KindRepost}, feed.Kinds)
	assert.Equal(t, 50, feed.Limit)
}

func TestFetchEventsMentioningSkipsResolution(t *testing.T) {
	r := relaytest.New("wss://r",
		ev("m1", bob, types.KindNote, "hey alice", []string{"p", alice}, []string{"e", "parent"}),
		ev("parent", carol, types.KindNote, "root"),
		ev("pb", bob, types.KindProfileMetadata, `{"name":"bob"}`),
	)
	c, _ := newTestClient(r)

	result := c.FetchEventsMentioning(context.Background(), alice, 5)
	require.Len(t, result.Notes, 1)
	assert.Equal(t, "m1", result.Notes[0].ID)
	assert.NotNil(t, result.Related)
	assert.Empty(t, result.Related)
	assert.NotNil(t, result.Profiles)
	assert.Empty(t, result.Profiles)

	require.Len(t, r.Filters(), 1, "only the mention query is issued")
	assert.Equal(t, []string{alice}, r.Filters()[0].Tags["p"])
	assert.Equal(t, 5, r.Filters()[0].Limit)
}

func TestFetchThread(t *testing.T) {
	r := relaytest.New("wss://r",
		ev("root", alice, types.KindNote, "root"),
		ev("r1", bob, types.KindNote, "first", []string{"e", "root"}),
		ev("r2", carol, types.KindNote, "second", []string{"e", "root"}),
		ev("rp", carol, types.KindRepost, "", []string{"e", "root"}),
	)
	c, _ := newTestClient(r)

	result := c.FetchThread(context.Background(), []string{"root"})
	assert.ElementsMatch(t, []string{"r1", "r2"}, eventIDs(result.Notes), "reposts are not thread replies")
	assert.Contains(t, eventIDs(result.Related), "root")
}

func TestFetchProfile(t *testing.T) {
	r := relaytest.New("wss://r",
		ev("meta", alice, types.KindProfileMetadata, `{"name":"alice","about":"x"}`),
		ev("contacts", alice, types.KindContactList, "", []string{"p", bob}),
	)
	c, _ := newTestClient(r)

	result := c.FetchProfile(context.Background(), alice)
	require.NotNil(t, result.Profile)
	require.NotNil(t, result.ContactList)
	assert.Equal(t, "alice", result.Profile.Decoded.Field("name"))
	assert.True(t, IsFollowing(result.ContactList, bob))
}

func TestFetchProfileAbsent(t *testing.T) {
	c, _ := newTestClient(relaytest.New("wss://r"))

	result := c.FetchProfile(context.Background(), carol)
	assert.Nil(t, result.Profile)
	assert.Nil(t, result.ContactList)
}

func TestFetchProfileSharedFetchSurvivesCancelledCaller(t *testing.T) {
	r := relaytest.New("wss://r", ev("meta", alice, types.KindProfileMetadata, `{"name":"alice"}`))
	release := make(chan struct{})
	var dials atomic.Int32
	c := New(testConfig(), WithDialer(func(ctx context.Context, endpoints []string, timeout time.Duration) []relay.Relay {
		dials.Add(1)
		<-release
		return []relay.Relay{r}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan types.ProfileResult, 1)
	go func() { first <- c.FetchProfile(ctx, alice) }()
	require.Eventually(t, func() bool { return dials.Load() == 1 }, time.Second, time.Millisecond)

	second := make(chan types.ProfileResult, 1)
	go func() { second <- c.FetchProfile(context.Background(), alice) }()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.Nil(t, (<-first).Profile, "cancelled caller stops waiting")

	close(release)
	result := <-second
	require.NotNil(t, result.Profile)
	assert.Equal(t, "alice", result.Profile.Decoded.Field("name"))
	assert.Equal(t, int32(1), dials.Load())
}

func TestFetchContactListPrefersNewest(t *testing.T) {
	older := ev("old", alice, types.KindContactList, "", []string{"p", bob})
	older.CreatedAt = 100
	newer := ev("new", alice, types.KindContactList, "", []string{"p", carol})
	newer.CreatedAt = 200
	c, _ := newTestClient(relaytest.New("wss://a", newer), relaytest.New("wss://b", older))

	list, ok := c.FetchContactList(context.Background(), alice)
	require.True(t, ok)
	assert.Equal(t, "new", list.ID)

	_, ok = c.FetchContactList(context.Background(), bob)
	assert.False(t, ok)
}

func TestCollectOneReturnsFirst(t *testing.T) {
	c, _ := newTestClient(relaytest.New("wss://r", ev("x", alice, types.KindNote, "x")))

	evt, ok := c.CollectOne(context.Background(), types.Filter{IDs: []string{"x"}})
	require.True(t, ok)
	assert.Equal(t, "x", evt.ID)

	_, ok = c.CollectOne(context.Background(), types.Filter{IDs: []string{"missing"}})
	assert.False(t, ok)
}

func TestNoRelaysDegradesToEmpty(t *testing.T) {
	c, _ := newTestClient()

	result := c.FetchEventsForAuthors(context.Background(), []string{alice}, 10)
	assert.Empty(t, result.Notes)
	assert.Empty(t, result.Related)
	assert.Empty(t, result.Profiles)
}

func eventIDs(events []types.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func testSigner(t *testing.T) *nostr.KeySigner {
	t.Helper()
	signer, err := nostr.GenerateKeySigner()
	require.NoError(t, err)
	return signer
}
