package query

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/AreaLayer/daisy/internal/nostr"
	"github.com/AreaLayer/daisy/internal/publisher"
	"github.com/AreaLayer/daisy/internal/types"
)

// Publish signs and broadcasts an event; ok is false when no relay accepted it in time.
func (c *Client) Publish(ctx context.Context, signer nostr.Signer, kind int, content string, tags [][]string) (types.Event, bool) {
	relays, closeAll := c.connect(ctx)
	defer closeAll()
	return publisher.Publish(ctx, relays, signer, kind, content, tags,
		publisher.WithDeadline(c.cfg.PublishTimeout))
}

// PublishNote publishes a plain text note.
func (c *Client) PublishNote(ctx context.Context, signer nostr.Signer, content string) (types.Event, bool) {
	return c.Publish(ctx, signer, types.KindNote, content, nil)
}

// Reply publishes a note replying to parent. The parent is the first e tag.
func (c *Client) Reply(ctx context.Context, signer nostr.Signer, parent types.Event, content string) (types.Event, bool) {
	tags := [][]string{
		{"e", parent.ID},
		{"p", parent.PubKey},
	}
	return c.Publish(ctx, signer, types.KindNote, content, tags)
}

// React publishes a reaction to target; an empty reaction means "+".
func (c *Client) React(ctx context.Context, signer nostr.Signer, target types.Event, reaction string) (types.Event, bool) {
	if reaction == "" {
		reaction = "+"
	}
	tags := [][]string{
		{"e", target.ID},
		{"p", target.PubKey},
	}
	return c.Publish(ctx, signer, types.KindReaction, reaction, tags)
}

// Repost publishes a repost embedding target as JSON content.
func (c *Client) Repost(ctx context.Context, signer nostr.Signer, target types.Event) (types.Event, bool) {
	content, err := json.Marshal(target)
	if err != nil {
		return types.Event{}, false
	}
	tags := [][]string{
		{"e", target.ID},
		{"p", target.PubKey},
	}
	return c.Publish(ctx, signer, types.KindRepost, string(content), tags)
}

var (
	// ErrNoContactList means no relay returned a contact list for the signer.
	ErrNoContactList = errors.New("no contact list found")
	// ErrNotAccepted means no relay accepted the event before the deadline.
	ErrNotAccepted = errors.New("no relay accepted the event")
)

// Follow toggles pubkey on the signer's newest contact list. A list published
// without the old one replaces it on every relay, so a missing list is an
// error unless create is set.
func (c *Client) Follow(ctx context.Context, signer nostr.Signer, pubkey string, create bool) (types.Event, error) {
	var current *types.Event
	if list, ok := c.FetchContactList(ctx, signer.PublicKey()); ok {
		current = &list
	} else if !create {
		return types.Event{}, ErrNoContactList
	}
	evt, ok := c.ToggleFollow(ctx, signer, current, pubkey)
	if !ok {
		return types.Event{}, ErrNotAccepted
	}
	return evt, nil
}

// ToggleFollow publishes a new contact list with pubkey added, or removed if
// already followed. contactList may be nil for a user with no list yet.
func (c *Client) ToggleFollow(ctx context.Context, signer nostr.Signer, contactList *types.Event, pubkey string) (types.Event, bool) {
	var (
		tags    [][]string
		content string
	)
	following := IsFollowing(contactList, pubkey)
	if contactList != nil {
		content = contactList.Content
		for _, tag := range contactList.Tags {
			if following && len(tag) >= 2 && tag[0] == "p" && tag[1] == pubkey {
				continue
			}
			tags = append(tags, append([]string(nil), tag...))
		}
	}
	if !following {
		tags = append(tags, []string{"p", pubkey})
	}
	return c.Publish(ctx, signer, types.KindContactList, content, tags)
}

// IsFollowing reports whether contactList has a p tag for pubkey.
func IsFollowing(contactList *types.Event, pubkey string) bool {
	if contactList == nil {
		return false
	}
	for _, p := range types.TagValues(contactList.Tags, "p") {
		if p == pubkey {
			return true
		}
	}
	return false
}
