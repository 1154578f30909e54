package nostr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AreaLayer/daisy/internal/types"
)

const (
	testSecret = "edc90d06fee17615229c8526dc005d959e4af3bdc0b48c5776c951bcafedec85"
	testPubkey = "bbde6a0e8847e1cdb2ba5ec021cc949eb3cef125b8304a748fe11c0407990eec"
)

func TestComputeIDMatchesKnownSerialization(t *testing.T) {
	// [0,"bbde...",1700000000,1,[],"hello"]
	evt := &types.Event{
		PubKey:    testPubkey,
		CreatedAt: 1700000000,
		Kind:      types.KindNote,
		Content:   "hello",
	}
	assert.Equal(t, "7b3e3c855486c0483791b55157b096ebcd3271b1dbc66514725256abea63bdbb", ComputeID(evt))

	// nil tags hash the same as empty tags
	evt.Tags = [][]string{}
	assert.Equal(t, "7b3e3c855486c0483791b55157b096ebcd3271b1dbc66514725256abea63bdbb", ComputeID(evt))
}

func TestComputeIDDoesNotEscapeHTML(t *testing.T) {
	evt := &types.Event{
		PubKey:    testPubkey,
		CreatedAt: 1700000000,
		Kind:      types.KindNote,
		Tags:      [][]string{{"e", "abc"}},
		Content:   "<a>&\"b\"\n",
	}
	assert.Equal(t, "bf378b86f549f60055c4cda6f625356df0b8bd62bf523966361de5c1970c21e4", ComputeID(evt))
}

func TestFinalizeAndVerify(t *testing.T) {
	signer, err := NewKeySigner(testSecret)
	require.NoError(t, err)

	evt := &types.Event{
		CreatedAt: 1700000000,
		Kind:      types.KindNote,
		Tags:      [][]string{{"e", "abc123", "", "reply"}, {"p", "def456"}},
		Content:   `{"test":"json content"}`,
	}
	require.NoError(t, Finalize(evt, signer))

	assert.Equal(t, signer.PublicKey(), evt.PubKey)
	assert.Len(t, evt.Sig, 128)
	assert.True(t, Verify(evt))
	assert.True(t, Validate(evt))

	tampered := *evt
	tampered.Content = "changed"
	assert.False(t, Verify(&tampered), "content change must break the id")

	resigned := tampered
	resigned.ID = ComputeID(&resigned)
	assert.False(t, Verify(&resigned), "old signature must not cover the new id")
	assert.True(t, Validate(&resigned), "validate does not check signatures")
}

func TestFinalizeEmptyTags(t *testing.T) {
	signer, err := GenerateKeySigner()
	require.NoError(t, err)

	evt := &types.Event{CreatedAt: 1, Kind: types.KindNote, Content: "x"}
	require.NoError(t, Finalize(evt, signer))
	assert.NotNil(t, evt.Tags)
	assert.True(t, Verify(evt))
}

func TestNewKeySignerRejectsBadKeys(t *testing.T) {
	for _, key := range []string{"", "zz", testSecret[:62], testSecret + "00"} {
		_, err := NewKeySigner(key)
		assert.ErrorIs(t, err, ErrInvalidKey, "key %q", key)
	}
}

func TestKeySignerRoundTripsSecret(t *testing.T) {
	signer, err := NewKeySigner(testSecret)
	require.NoError(t, err)
	assert.Equal(t, testSecret, signer.SecretKey())
	assert.Len(t, signer.PublicKey(), 64)
}

func TestValidateRejectsMalformed(t *testing.T) {
	signer, err := NewKeySigner(testSecret)
	require.NoError(t, err)
	good := types.Event{CreatedAt: 1700000000, Kind: types.KindNote, Content: "hi"}
	require.NoError(t, Finalize(&good, signer))

	tests := []struct {
		name   string
		mutate func(*types.Event)
	}{
		{"short id", func(e *types.Event) { e.ID = e.ID[:10] }},
		{"non hex pubkey", func(e *types.Event) { e.PubKey = "g" + e.PubKey[1:] }},
		{"short sig", func(e *types.Event) { e.Sig = e.Sig[:64] }},
		{"negative kind", func(e *types.Event) { e.Kind = -1 }},
		{"negative created_at", func(e *types.Event) { e.CreatedAt = -5 }},
		{"nil tag", func(e *types.Event) { e.Tags = [][]string{nil} }},
		{"id mismatch", func(e *types.Event) { e.Content = "other" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt := good
			tt.mutate(&evt)
			assert.False(t, Validate(&evt))
		})
	}
}

func TestParseEventFromInterface(t *testing.T) {
	signer, err := NewKeySigner(testSecret)
	require.NoError(t, err)
	evt := types.Event{CreatedAt: 1700000000, Kind: types.KindNote, Tags: [][]string{{"p", testPubkey}}, Content: "hi"}
	require.NoError(t, Finalize(&evt, signer))

	raw := map[string]interface{}{
		"id":         evt.ID,
		"pubkey":     evt.PubKey,
		"created_at": float64(evt.CreatedAt),
		"kind":       float64(evt.Kind),
		"tags":       []interface{}{[]interface{}{"p", testPubkey}},
		"content":    evt.Content,
		"sig":        evt.Sig,
	}
	parsed, ok := ParseEventFromInterface(raw)
	require.True(t, ok)
	assert.Equal(t, evt.ID, parsed.ID)
	assert.Equal(t, evt.Tags, parsed.Tags)

	raw["id"] = "7b3e3c855486c0483791b55157b096ebcd3271b1dbc66514725256abea63bdbb"
	_, ok = ParseEventFromInterface(raw)
	assert.False(t, ok, "signature over a different id must be rejected")
	raw["id"] = evt.ID

	raw["content"] = "tampered"
	_, ok = ParseEventFromInterface(raw)
	assert.False(t, ok, "content not matching the id must be rejected")
	raw["content"] = evt.Content

	delete(raw, "sig")
	_, ok = ParseEventFromInterface(raw)
	assert.False(t, ok, "unsigned events must be rejected")

	_, ok = ParseEventFromInterface("not an object")
	assert.False(t, ok)
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "bbde6a0e8847", ShortID(testPubkey))
	assert.Equal(t, "abc", ShortID("abc"))
}
