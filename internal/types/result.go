package types

// ResultSet is the output of the composed fetch operations.
// Profiles is keyed by pubkey.
type ResultSet struct {
	Notes    []Event          `json:"notes"`
	Related  []Event          `json:"related"`
	Profiles map[string]Event `json:"profiles"`
}

// EmptyResultSet returns a result with non-nil, empty collections.
func EmptyResultSet() ResultSet {
	return ResultSet{
		Notes:    []Event{},
		Related:  []Event{},
		Profiles: map[string]Event{},
	}
}

// ProfileResult holds a user's profile metadata and contact list events.
// A nil field means no relay returned that event.
type ProfileResult struct {
	Profile     *Event `json:"profile,omitempty"`
	ContactList *Event `json:"contact_list,omitempty"`
}

// FirstTagValue returns the first value for the given tag name, or empty string if not found.
func FirstTagValue(tags [][]string, name string) string {
	for _, tag := range tags {
		if len(tag) >= 2 && tag[0] == name {
			return tag[1]
		}
	}
	return ""
}

// TagValues returns every value for the given tag name, in order.
func TagValues(tags [][]string, name string) []string {
	var values []string
	for _, tag := range tags {
		if len(tag) >= 2 && tag[0] == name {
			values = append(values, tag[1])
		}
	}
	return values
}
