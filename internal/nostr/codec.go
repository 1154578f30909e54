package nostr

import (
	"encoding/json"
	"log/slog"

	"github.com/AreaLayer/daisy/internal/types"
)

// Normalize decodes the content of profile metadata events into structured
// form. Unparsable content stays raw; other kinds pass through as raw text.
// Normalizing an already normalized event returns it unchanged.
func Normalize(evt types.Event) types.Event {
	if evt.Kind != types.KindProfileMetadata {
		evt.Decoded = types.Raw(evt.Content)
		return evt
	}
	return decode(evt)
}

// NormalizeAny tries structured decoding for every kind with non-empty content.
func NormalizeAny(evt types.Event) types.Event {
	if evt.Content == "" {
		evt.Decoded = types.Raw(evt.Content)
		return evt
	}
	return decode(evt)
}

func decode(evt types.Event) types.Event {
	if evt.Decoded.IsStructured() && evt.Decoded.String() == evt.Content {
		return evt
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(evt.Content), &fields); err != nil || fields == nil {
		if evt.Kind == types.KindProfileMetadata {
			slog.Debug("profile content not JSON, keeping raw", "event_id", ShortID(evt.ID), "error", err)
		}
		evt.Decoded = types.Raw(evt.Content)
		return evt
	}
	evt.Decoded = types.Structured(evt.Content, fields)
	return evt
}

// EmbeddedEvent parses an event carried as JSON in another event's content
// (repost kind). ok is false when the content is not an event object.
func EmbeddedEvent(content string) (types.Event, bool) {
	var evt types.Event
	if err := json.Unmarshal([]byte(content), &evt); err != nil {
		return types.Event{}, false
	}
	if evt.ID == "" {
		return types.Event{}, false
	}
	return Normalize(evt), true
}
