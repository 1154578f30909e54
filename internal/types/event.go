// Package types provides shared type definitions used across internal packages.
package types

import "encoding/json"

// Kind tags event semantics (NIP-01 kind numbers).
type Kind = int

const (
	KindProfileMetadata Kind = 0
	KindNote            Kind = 1
	KindContactList     Kind = 3
	KindRepost          Kind = 6
	KindReaction        Kind = 7
)

// Event represents a Nostr event (NIP-01).
// Content always holds the wire string so the ID stays verifiable; Decoded
// carries the normalized form and is filled in by the codec.
type Event struct {
	ID         string     `json:"id"`
	PubKey     string     `json:"pubkey"`
	CreatedAt  int64      `json:"created_at"`
	Kind       int        `json:"kind"`
	Tags       [][]string `json:"tags"`
	Content    string     `json:"content"`
	Sig        string     `json:"sig"`
	Decoded    Content    `json:"-"`
	RelaysSeen []string   `json:"-"`
}

// Content is the decoded form of an event's content field: either the raw
// string or a parsed JSON object.
type Content struct {
	raw    string
	fields map[string]any
}

// Raw wraps content that is kept as text.
func Raw(s string) Content {
	return Content{raw: s}
}

// Structured wraps content that parsed as a JSON object. raw is the original text.
func Structured(raw string, fields map[string]any) Content {
	return Content{raw: raw, fields: fields}
}

// IsStructured reports whether the content was parsed as JSON.
func (c Content) IsStructured() bool {
	return c.fields != nil
}

// String returns the original content text.
func (c Content) String() string {
	return c.raw
}

// Fields returns the parsed object, or nil for raw content.
func (c Content) Fields() map[string]any {
	return c.fields
}

// Field returns a string-valued field of structured content.
func (c Content) Field(name string) string {
	if c.fields == nil {
		return ""
	}
	s, _ := c.fields[name].(string)
	return s
}

// MarshalJSON emits the parsed object for structured content and the raw string otherwise.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.fields != nil {
		return json.Marshal(c.fields)
	}
	return json.Marshal(c.raw)
}

// Filter represents a Nostr subscription filter (NIP-01).
// Tags is keyed by the single-letter tag name without the "#" prefix.
type Filter struct {
	IDs     []string
	Kinds   []int
	Authors []string
	Tags    map[string][]string
	Since   *int64
	Until   *int64
	Limit   int
}

// ETags returns a copy of f matching events that reference the given event ids.
func (f Filter) ETags(ids ...string) Filter {
	return f.WithTag("e", ids...)
}

// PTags returns a copy of f matching events that reference the given pubkeys.
func (f Filter) PTags(pubkeys ...string) Filter {
	return f.WithTag("p", pubkeys...)
}

// WithTag returns a copy of f with a tag constraint added.
func (f Filter) WithTag(name string, values ...string) Filter {
	c := f.Clone()
	if c.Tags == nil {
		c.Tags = make(map[string][]string)
	}
	c.Tags[name] = append(c.Tags[name], values...)
	return c
}

// Clone returns a deep copy of the filter.
func (f Filter) Clone() Filter {
	c := f
	c.IDs = append([]string(nil), f.IDs...)
	c.Kinds = append([]int(nil), f.Kinds...)
	c.Authors = append([]string(nil), f.Authors...)
	if f.Tags != nil {
		c.Tags = make(map[string][]string, len(f.Tags))
		for k, v := range f.Tags {
			c.Tags[k] = append([]string(nil), v...)
		}
	}
	if f.Since != nil {
		s := *f.Since
		c.Since = &s
	}
	if f.Until != nil {
		u := *f.Until
		c.Until = &u
	}
	return c
}

// MarshalJSON produces the NIP-01 wire shape, omitting empty fields.
func (f Filter) MarshalJSON() ([]byte, error) {
	m := make(map[string]any)
	if len(f.IDs) > 0 {
		m["ids"] = f.IDs
	}
	if len(f.Kinds) > 0 {
		m["kinds"] = f.Kinds
	}
	if len(f.Authors) > 0 {
		m["authors"] = f.Authors
	}
	for name, values := range f.Tags {
		if len(values) > 0 {
			m["#"+name] = values
		}
	}
	if f.Since != nil {
		m["since"] = *f.Since
	}
	if f.Until != nil {
		m["until"] = *f.Until
	}
	if f.Limit > 0 {
		m["limit"] = f.Limit
	}
	return json.Marshal(m)
}
