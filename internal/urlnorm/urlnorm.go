// Package urlnorm normalizes domains and destination URLs so that citation
// matching and share-of-voice counting compare like with like.
package urlnorm

import (
	"net/url"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// trackerParams are query parameters stripped during canonicalization.
// Sourced from the common tracking-stripper lists.
var trackerParams = map[string]struct{}{
	"utm_source": {}, "utm_medium": {}, "utm_term": {}, "utm_campaign": {},
	"utm_content": {}, "utm_name": {}, "utm_cid": {}, "utm_reader": {},
	"utm_viz_id": {}, "utm_pubreferrer": {}, "utm_swu": {},
	"gclid": {}, "fbclid": {}, "igshid": {}, "_hsenc": {}, "_hsmi": {},
	"mc_cid": {}, "mc_eid": {}, "ref": {}, "trackingId": {}, "share_id": {},
	"msclkid": {},
}

// Domain normalizes a domain or URL down to a bare lowercase host with any
// leading "www." removed. Accepts either a full URL or a plain hostname.
func Domain(s string) string {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "://") {
		if u, err := url.Parse(s); err == nil && u.Hostname() != "" {
			s = u.Hostname()
		}
	}
	s = strings.ToLower(s)
	s = strings.TrimPrefix(s, "www.")
	return s
}

// IsSuffixMatch reports whether domain matches target, treating subdomains of
// target as matches: "blog.example.com" matches "example.com" but
// "notexample.com" does not.
func IsSuffixMatch(domain, target string) bool {
	if target == "" {
		return false
	}
	if domain == target {
		return true
	}
	return strings.HasSuffix(domain, "."+target)
}

// Canonicalize normalizes a destination URL: NFKC unicode normalization,
// lowercased host without "www." or default ports, fragment removed, tracking
// parameters dropped. Returns "" when the URL has no usable host.
func Canonicalize(raw string) string {
	raw = norm.NFKC.String(strings.TrimSpace(raw))
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return ""
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	port := u.Port()
	if (u.Scheme == "https" && port == "443") || (u.Scheme == "http" && port == "80") {
		port = ""
	}
	if port != "" {
		host += ":" + port
	}
	if ui := u.User; ui != nil {
		host = ui.String() + "@" + host
	}
	u.Host = host
	u.Fragment = ""
	u.RawQuery = dropTrackingParams(u.Query())
	return u.String()
}

func dropTrackingParams(q url.Values) string {
	for k := range q {
		if _, tracked := trackerParams[k]; tracked {
			q.Del(k)
		}
	}
	return q.Encode()
}
