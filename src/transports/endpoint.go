package transports

import (
	"fmt"
	"net/url"
	"strings"
)

// -----------------------------------------------------------------------------

// NormalizeEndpoint converts a configured base URL into a WebSocket URL.
// ws:// and wss:// pass through, http:// becomes ws://, https:// becomes wss://,
// and protocol-relative //host takes the scheme matching pageScheme.
func NormalizeEndpoint(base string, pageScheme string) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return "", fmt.Errorf("endpoint is empty")
	}

	lower := strings.ToLower(base)
	switch {
	case strings.HasPrefix(lower, "ws://"), strings.HasPrefix(lower, "wss://"):
		return base, nil
	case strings.HasPrefix(lower, "http://"):
		return "ws://" + base[len("http://"):], nil
	case strings.HasPrefix(lower, "https://"):
		return "wss://" + base[len("https://"):], nil
	case strings.HasPrefix(base, "//"):
		if strings.EqualFold(pageScheme, "https") {
			return "wss:" + base, nil
		}
		return "ws:" + base, nil
	default:
		return "", fmt.Errorf("unsupported endpoint scheme in '%s'", base)
	}
}

// -----------------------------------------------------------------------------

// BuildStreamURL returns the normalized endpoint with the token query parameter
func BuildStreamURL(base string, pageScheme string, token string) (string, error) {
	normalized, err := NormalizeEndpoint(base, pageScheme)
	if err != nil {
		return "", err
	}

	u, err := url.Parse(normalized)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint '%s': %w", normalized, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("endpoint '%s' has no host", normalized)
	}

	query := u.Query()
	query.Set("token", token)
	u.RawQuery = query.Encode()
	return u.String(), nil
}
