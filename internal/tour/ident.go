package tour

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

const idLength = 16

// RecordID derives the stable identifier of a record from its scope, the
// canonical source URL and the page-level title hint. Re-running against an
// unchanged source reproduces the same identifier.
func RecordID(scope, sourceURL, titleHint string) string {
	canonical, err := CanonicalURL(sourceURL)
	if err != nil {
		canonical = strings.TrimSpace(sourceURL)
	}
	key := strings.Join([]string{
		strings.ToLower(strings.TrimSpace(scope)),
		canonical,
		strings.ToLower(strings.TrimSpace(titleHint)),
	}, "\x1f")
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:idLength]
}

// CanonicalURL normalizes a booking or source link for matching. It
// lowercases the scheme and host, removes default ports, fragments, utm_*
// tracking parameters and trailing slashes, and sorts the query.
func CanonicalURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""

	q := u.Query()
	for k := range q {
		if strings.HasPrefix(strings.ToLower(k), "utm_") {
			q.Del(k)
		}
	}
	// Encode sorts by key.
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// MustCanonicalURL returns the canonical form of raw, or raw trimmed when it
// cannot be parsed.
func MustCanonicalURL(raw string) string {
	canonical, err := CanonicalURL(raw)
	if err != nil {
		return strings.TrimSpace(raw)
	}
	return canonical
}

// CompanyFromHost guesses a company label from a site host, e.g.
// "www.cruisewhitsundays.com.au" → "cruisewhitsundays".
func CompanyFromHost(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Hostname() == "" {
		return ""
	}
	parts := strings.Split(strings.ToLower(u.Hostname()), ".")
	switch {
	case len(parts) >= 3 && isSecondLevel(parts[len(parts)-2]):
		return parts[len(parts)-3]
	case len(parts) >= 2:
		return parts[len(parts)-2]
	default:
		return parts[0]
	}
}

func isSecondLevel(label string) bool {
	switch label {
	case "com", "co", "net", "org", "gov", "edu":
		return true
	}
	return false
}
