package nostr

import (
	"net/url"
	"strings"
)

// NormalizeRelayURL validates and normalizes a relay endpoint.
// Returns empty string if URL is invalid/malformed
func NormalizeRelayURL(relayURL string) string {
	relayURL = strings.TrimSpace(relayURL)
	if relayURL == "" || !strings.Contains(relayURL, "://") {
		return ""
	}

	// Reject double protocols (wss://https://...)
	if strings.Count(relayURL, "://") > 1 || strings.Contains(relayURL, "%20") {
		return ""
	}

	parsed, err := url.Parse(relayURL)
	if err != nil {
		return ""
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "ws" && scheme != "wss" {
		return ""
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" || strings.Contains(host, " ") {
		return ""
	}
	if !isLoopbackHost(host) {
		if !strings.Contains(host, ".") || isInternalHost(host) {
			return ""
		}
	}

	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	result := scheme + "://" + host
	if parsed.Port() != "" {
		result += ":" + parsed.Port()
	}
	if parsed.Path != "" && parsed.Path != "/" {
		result += strings.TrimSuffix(parsed.Path, "/")
	}
	return result
}

// isInternalHost blocks hosts that are unreachable from the public relay network.
func isInternalHost(host string) bool {
	return strings.HasSuffix(host, ".local") ||
		strings.HasSuffix(host, ".internal") ||
		strings.HasSuffix(host, ".onion")
}

func isLoopbackHost(host string) bool {
	return host == "localhost" ||
		host == "::1" ||
		strings.HasPrefix(host, "127.")
}
