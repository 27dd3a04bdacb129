package utils

import (
	"net/url"
	"strings"
)

// -----------------------------------------------------------------------------

// MaskToken hides the token query parameter of an endpoint for logging
func MaskToken(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}

	token := u.Query().Get("token")
	if token == "" {
		return endpoint
	}

	masked := "****"
	if len(token) > 8 {
		masked = token[:4] + "****"
	}
	return strings.Replace(endpoint, "token="+url.QueryEscape(token), "token="+masked, 1)
}

// -----------------------------------------------------------------------------

// UniqueSymbols trims, drops empties and duplicates, and keeps first-seen order
func UniqueSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	result := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		symbol = strings.TrimSpace(symbol)
		if symbol == "" {
			continue
		}
		if _, ok := seen[symbol]; ok {
			continue
		}
		seen[symbol] = struct{}{}
		result = append(result, symbol)
	}
	return result
}
