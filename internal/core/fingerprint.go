package core

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"
)

// trackingParamPrefixes and trackingParamNames are stripped during URL
// canonicalization; they vary per click and would otherwise fracture the
// fingerprint of an otherwise-identical article.
var trackingParamPrefixes = []string{"utm_"}
var trackingParamNames = map[string]bool{
	"gclid": true,
	"fbclid": true,
}

// CanonicalizeURL normalizes a URL for fingerprinting and deduplication:
// lowercase scheme/host, strip default ports, strip a trailing slash from
// the path (except root), strip the fragment, and drop tracking query
// parameters. Canonicalization is idempotent.
func CanonicalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	if host, port, ok := splitDefaultPort(u.Host, u.Scheme); ok {
		u.Host = host
		_ = port
	}

	if len(u.Path) > 1 && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			lower := strings.ToLower(key)
			if trackingParamNames[lower] || hasTrackingPrefix(lower) {
				q.Del(key)
			}
		}
		u.RawQuery = q.Encode()
	}

	return u.String()
}

func hasTrackingPrefix(key string) bool {
	for _, p := range trackingParamPrefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

func splitDefaultPort(host, scheme string) (string, string, bool) {
	i := strings.LastIndex(host, ":")
	if i < 0 {
		return host, "", false
	}
	port := host[i+1:]
	name := host[:i]
	if n, err := strconv.Atoi(port); err == nil {
		if (scheme == "http" && n == 80) || (scheme == "https" && n == 443) {
			return name, port, true
		}
	}
	return host, port, false
}

// fingerprintSeparator matches the ASCII unit separator the spec mandates
// between source_name and the canonical URL, chosen because it never
// appears in either field.
const fingerprintSeparator = "\x1f"

// Fingerprint derives the stable, content-addressed identifier for a post.
// Two adapter runs that discover the same article yield the same
// fingerprint even if title, tags, or field ordering differ, because the
// hash input is only source name and canonical URL.
func Fingerprint(sourceName, rawURL string) string {
	input := sourceName + fingerprintSeparator + CanonicalizeURL(rawURL)
	sum := sha1.Sum([]byte(input))
	return hex.EncodeToString(sum[:])
}
