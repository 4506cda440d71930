// Package sites validates target page URLs and decides which sites the agent
// may operate on.
package sites

import (
	"net/url"
	"strings"
)

// authHosts are sign-in pages on which demonstrations cannot be recorded.
var authHosts = map[string]bool{
	"accounts.google.com": true,
}

// IsValidURL reports whether raw is an absolute http(s) URL with a host.
func IsValidURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Hostname() != ""
}

// IsAuthURL reports whether raw points at a known sign-in page.
func IsAuthURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return authHosts[strings.ToLower(u.Hostname())]
}

// Domain returns the lower-cased hostname of raw, or "" when it has none.
func Domain(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
