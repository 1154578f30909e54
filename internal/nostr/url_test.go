package nostr

import "testing"

func TestNormalizeRelayURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"wss://relay.damus.io", "wss://relay.damus.io"},
		{"wss://relay.damus.io/", "wss://relay.damus.io"},
		{"  WSS://Relay.Damus.IO  ", "wss://relay.damus.io"},
		{"wss://nos.lol:443/path/", "wss://nos.lol:443/path"},
		{"ws://localhost:7777", "ws://localhost:7777"},
		{"ws://127.0.0.1:7777", "ws://127.0.0.1:7777"},
		{"ws://[::1]:7777", "ws://[::1]:7777"},
		{"https://relay.damus.io", ""},
		{"wss://https://relay.damus.io", ""},
		{"relay.damus.io", ""},
		{"wss://nodot", ""},
		{"wss://relay.local", ""},
		{"wss://abcdef.onion", ""},
		{"wss://relay%20x.io", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeRelayURL(tt.in); got != tt.want {
			t.Errorf("NormalizeRelayURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
