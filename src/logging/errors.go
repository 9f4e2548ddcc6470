package logging

import "strings"

// IsRateLimit reports whether err looks like an upstream 429.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "rate_limit") || strings.Contains(msg, "429")
}
