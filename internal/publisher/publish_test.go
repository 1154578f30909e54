package publisher

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AreaLayer/daisy/internal/nostr"
	"github.com/AreaLayer/daisy/internal/relay"
	"github.com/AreaLayer/daisy/internal/relay/relaytest"
	"github.com/AreaLayer/daisy/internal/types"
)

const testSecret = "edc90d06fee17615229c8526dc005d959e4af3bdc0b48c5776c951bcafedec85"

func testSigner(t *testing.T) nostr.Signer {
	t.Helper()
	signer, err := nostr.NewKeySigner(testSecret)
	require.NoError(t, err)
	return signer
}

// readOnly has no Publish method.
type readOnly struct{}

func (readOnly) URL() string { return "wss://read-only" }

func TestPublishResolvesOnFirstAccept(t *testing.T) {
	silent1 := relaytest.New("wss://one")
	accepting := relaytest.New("wss://two")
	accepting.Accept = true
	accepting.AcceptAfter = 100 * time.Millisecond
	silent3 := relaytest.New("wss://three")

	start := time.Now()
	evt, ok := Publish(context.Background(),
		[]relay.Relay{silent1, accepting, silent3},
		testSigner(t), types.KindNote, "hello", nil,
		WithDeadline(2*time.Second))
	elapsed := time.Since(start)

	require.True(t, ok)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, time.Second)

	assert.True(t, nostr.Verify(&evt))
	assert.Equal(t, "hello", evt.Content)
	assert.Equal(t, [][]string{}, evt.Tags)

	for _, r := range []*relaytest.Relay{silent1, accepting, silent3} {
		published := r.Published()
		require.Len(t, published, 1, r.URL())
		assert.Equal(t, evt.ID, published[0].ID)
	}
}

func TestPublishAbsentAtDeadline(t *testing.T) {
	silent := relaytest.New("wss://silent")
	rejecting := relaytest.New("wss://rejecting")
	rejecting.Reject = "blocked"

	start := time.Now()
	evt, ok := Publish(context.Background(),
		[]relay.Relay{silent, rejecting, readOnly{}},
		testSigner(t), types.KindNote, "hello", nil,
		WithDeadline(100*time.Millisecond))

	assert.False(t, ok)
	assert.Empty(t, evt.ID)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestPublishUsesClockForCreatedAt(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Unix(1700000000, 0))

	r := relaytest.New("wss://r")
	r.Accept = true

	evt, ok := Publish(context.Background(), []relay.Relay{r},
		testSigner(t), types.KindReaction, "+", [][]string{{"e", "abc"}},
		WithClock(mock))

	require.True(t, ok)
	assert.Equal(t, int64(1700000000), evt.CreatedAt)
	assert.Equal(t, types.KindReaction, evt.Kind)
	assert.Equal(t, [][]string{{"e", "abc"}}, evt.Tags)
	assert.True(t, nostr.Verify(&evt))
}

func TestPublishDeadlineFollowsClock(t *testing.T) {
	mock := clock.NewMock()
	r := relaytest.New("wss://silent")

	done := make(chan bool, 1)
	go func() {
		_, ok := Publish(context.Background(), []relay.Relay{r},
			testSigner(t), types.KindNote, "x", nil,
			WithClock(mock), WithDeadline(5*time.Second))
		done <- ok
	}()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case ok := <-done:
			assert.False(t, ok)
			return
		case <-timeout:
			t.Fatal("publish did not resolve when the mock clock passed the deadline")
		default:
			mock.Add(time.Second)
			time.Sleep(time.Millisecond)
		}
	}
}

func TestPublishRespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := Publish(ctx, []relay.Relay{relaytest.New("wss://silent")},
		testSigner(t), types.KindNote, "x", nil)
	assert.False(t, ok)
}
