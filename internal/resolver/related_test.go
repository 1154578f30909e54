package resolver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AreaLayer/daisy/internal/aggregator"
	"github.com/AreaLayer/daisy/internal/relay"
	"github.com/AreaLayer/daisy/internal/relay/relaytest"
	"github.com/AreaLayer/daisy/internal/types"
)

func profileOf(pubkey, name string) types.Event {
	return types.Event{
		ID:      "profile-" + pubkey,
		PubKey:  pubkey,
		Kind:    types.KindProfileMetadata,
		Content: `{"name":"` + name + `"}`,
		Tags:    [][]string{},
	}
}

func ids(events []types.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func TestEmbeddedRepostNeedsNoFetch(t *testing.T) {
	inner := types.Event{ID: "abc", PubKey: "author", Kind: types.KindNote, Content: "original", Tags: [][]string{}}
	content, err := json.Marshal(inner)
	require.NoError(t, err)
	repost := types.Event{
		ID:      "rp",
		PubKey:  "reposter",
		Kind:    types.KindRepost,
		Content: string(content),
		Tags:    [][]string{{"e", "abc"}, {"p", "author"}},
	}

	r := relaytest.New("wss://r", profileOf("author", "alice"))
	got := ResolveRelated(context.Background(), []relay.Relay{r}, []types.Event{repost},
		aggregator.WithDeadline(time.Second))

	assert.Equal(t, []string{"abc"}, ids(got.Related))
	assert.False(t, r.Requested("abc"), "embedded target must not be fetched")
	require.Contains(t, got.Profiles, "author")
	assert.Equal(t, "alice", got.Profiles["author"].Decoded.Field("name"))
	assert.NotContains(t, got.Profiles, "reposter", "repost authors are not resolved")
}

func TestRepostWithoutEmbeddedEventFetchesTarget(t *testing.T) {
	target := types.Event{ID: "target", PubKey: "author", Kind: types.KindNote, Content: "hi", Tags: [][]string{}}
	repost := types.Event{ID: "rp", PubKey: "reposter", Kind: types.KindRepost, Tags: [][]string{{"e", "target"}}}

	r := relaytest.New("wss://r", target, profileOf("author", "alice"))
	got := ResolveRelated(context.Background(), []relay.Relay{r}, []types.Event{repost},
		aggregator.WithDeadline(time.Second))

	assert.Equal(t, []string{"target"}, ids(got.Related))
	assert.Contains(t, got.Profiles, "author")
}

func TestRepostOfRepostFetchesTarget(t *testing.T) {
	inner := types.Event{ID: "inner", PubKey: "middle", Kind: types.KindRepost, Tags: [][]string{{"e", "deep"}}}
	repost := types.Event{ID: "rp", PubKey: "reposter", Kind: types.KindRepost, Tags: [][]string{{"e", "inner"}}}

	r := relaytest.New("wss://r", inner)
	got := ResolveRelated(context.Background(), []relay.Relay{r}, []types.Event{repost},
		aggregator.WithDeadline(time.Second))

	assert.Equal(t, []string{"inner"}, ids(got.Related))
}

func TestRepliesParentsAndProfiles(t *testing.T) {
	parent := types.Event{ID: "parent", PubKey: "B", Kind: types.KindNote, Content: "root", Tags: [][]string{}}
	base := types.Event{ID: "n1", PubKey: "A", Kind: types.KindNote, Content: "reply", Tags: [][]string{{"e", "parent"}}}
	reply := types.Event{ID: "r1", PubKey: "C", Kind: types.KindNote, Content: "reply to n1", Tags: [][]string{{"e", "n1"}}}

	r := relaytest.New("wss://r",
		parent, reply,
		profileOf("A", "a"), profileOf("B", "b"), profileOf("C", "c"))
	got := ResolveRelated(context.Background(), []relay.Relay{r}, []types.Event{base},
		aggregator.WithDeadline(time.Second))

	assert.Equal(t, []string{"r1", "parent"}, ids(got.Related))
	assert.Len(t, got.Profiles, 3)
	for _, pk := range []string{"A", "B", "C"} {
		assert.Equal(t, "profile-"+pk, got.Profiles[pk].ID)
	}
}

func TestRelatedIsDeduplicated(t *testing.T) {
	parent := types.Event{ID: "parent", PubKey: "B", Kind: types.KindNote, Tags: [][]string{{"e", "n1"}}}
	base := types.Event{ID: "n1", PubKey: "A", Kind: types.KindNote, Tags: [][]string{{"e", "parent"}}}

	r := relaytest.New("wss://r", parent)
	got := ResolveRelated(context.Background(), []relay.Relay{r}, []types.Event{base},
		aggregator.WithDeadline(time.Second))

	assert.Equal(t, []string{"parent"}, ids(got.Related))
}

func TestEmptyBaseIssuesNoFetch(t *testing.T) {
	r := relaytest.New("wss://r")
	got := ResolveRelated(context.Background(), []relay.Relay{r}, nil)

	assert.Empty(t, got.Related)
	assert.NotNil(t, got.Related)
	assert.Empty(t, got.Profiles)
	assert.Empty(t, r.Filters())
}

func TestNoRelaysYieldsEmptyResult(t *testing.T) {
	base := types.Event{ID: "n1", PubKey: "A", Kind: types.KindNote, Tags: [][]string{{"e", "parent"}}}
	got := ResolveRelated(context.Background(), nil, []types.Event{base})

	assert.Empty(t, got.Related)
	assert.Empty(t, got.Profiles)
}
