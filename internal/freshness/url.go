package freshness

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL standardizes a URL into the cache/dedup key form.
// It lowercases the scheme and host, removes default ports, and drops the
// fragment and query string, keeping scheme+host+path only. Tracking
// parameters vary per visit while pointing at the same document, so the
// query is not part of a document's identity here.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q is not absolute", rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawQuery = ""
	u.User = nil

	return u.String(), nil
}
