package resolver

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

var (
	// ErrEmptyURL is returned when the URL string is blank.
	ErrEmptyURL = errors.New("empty URL")

	// ErrUnsupportedScheme is returned for targets that cannot be checked over HTTP,
	// such as mailto:, ftp: or javascript: links.
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")

	// ErrMissingHost is returned for http(s) URLs without a host.
	ErrMissingHost = errors.New("URL has no host")
)

// defaultPorts maps schemes to the port that is implied when none is written.
var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// Scheme classifies a raw link target.
type Scheme int

const (
	// SchemeHTTP covers http and https targets, the only ones that get checked.
	SchemeHTTP Scheme = iota

	// SchemeMailto covers mailto: targets, which are counted but never fetched.
	SchemeMailto

	// SchemeOther covers every other target.
	SchemeOther
)

// String returns the scheme class name.
func (s Scheme) String() string {
	switch s {
	case SchemeHTTP:
		return "http"
	case SchemeMailto:
		return "mailto"
	case SchemeOther:
		return "other"
	default:
		return "unknown"
	}
}

// Classify reports which scheme class a raw link target belongs to.
func Classify(raw string) Scheme {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.HasPrefix(s, "http://"), strings.HasPrefix(s, "https://"):
		return SchemeHTTP
	case strings.HasPrefix(s, "mailto:"):
		return SchemeMailto
	default:
		return SchemeOther
	}
}

// Normalize returns the canonical key for an http(s) URL.
//
// The scheme and host are lower-cased, internationalized hosts are converted
// to their ASCII form, default ports are dropped and the fragment is removed.
// Path and query are kept exactly as written, so a trailing slash or a
// different query yields a different key.
func Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrEmptyURL
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("failed to parse URL %q: %w", raw, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if _, ok := defaultPorts[scheme]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("%w: %q", ErrMissingHost, raw)
	}
	host = normalizeHost(host)

	port := u.Port()
	if port == defaultPorts[scheme] {
		port = ""
	}

	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		host += ":" + port
	}

	u.Scheme = scheme
	u.Host = host
	u.Fragment = ""
	u.RawFragment = ""

	return u.String(), nil
}

// Host returns the normalized host of a URL key without port, or "" if it cannot be parsed.
func Host(key string) string {
	u, err := url.Parse(key)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// normalizeHost lower-cases the host, strips a trailing root dot and
// converts internationalized names to punycode.
func normalizeHost(host string) string {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if isASCII(host) {
		return host
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return host
	}
	return ascii
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
