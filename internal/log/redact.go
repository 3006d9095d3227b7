package log

import (
	"net/url"
	"strings"
)

// sensitiveParams are query parameters whose values are masked in URLs.
var sensitiveParams = map[string]bool{
	"token":                true,
	"access_token":         true,
	"api_key":              true,
	"apikey":               true,
	"key":                  true,
	"sig":                  true,
	"signature":            true,
	"password":             true,
	"secret":               true,
	"x-amz-signature":      true,
	"x-amz-credential":     true,
	"x-amz-security-token": true,
}

// RedactURL masks the userinfo password (as "xxxxx", the net/url
// convention) and sensitive query parameter values of an http(s) URL.
// Parameter order and the rest of the URL are preserved. changed is false
// when s is not such a URL or holds nothing to mask.
func RedactURL(s string) (redacted string, changed bool) {
	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return s, false
	}

	u, err := url.Parse(s)
	if err != nil {
		return s, false
	}

	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			changed = true
		}
	}

	if u.RawQuery != "" {
		parts := strings.Split(u.RawQuery, "&")
		for i, part := range parts {
			name, _, found := strings.Cut(part, "=")
			if !found {
				continue
			}
			decoded, err := url.QueryUnescape(name)
			if err != nil {
				decoded = name
			}
			if sensitiveParams[strings.ToLower(decoded)] {
				parts[i] = name + "=" + MaskValue
				changed = true
			}
		}
		u.RawQuery = strings.Join(parts, "&")
	}

	if !changed {
		return s, false
	}
	return u.Redacted(), true
}
