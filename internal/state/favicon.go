package state

import (
	"net/url"
	"strings"
)

// DeriveFavicon returns "<scheme>://<host>/favicon.ico" for http(s) URLs and
// "" for anything else. Favicons are a local cache; they are stripped before
// upload and rebuilt from the URL with this function.
func DeriveFavicon(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ""
	}
	return scheme + "://" + u.Host + "/favicon.ico"
}
