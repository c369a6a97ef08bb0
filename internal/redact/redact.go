// Package redact masks personal data and credentials before they reach logs,
// audit sinks or invalidation events.
package redact

import (
	"strings"
	"unicode/utf8"
)

// Email keeps the first two runes of the local part and the domain.
func Email(s string) string {
	parts := strings.Split(s, "@")
	if len(parts) != 2 {
		return "***"
	}

	local, domain := parts[0], parts[1]
	if utf8.RuneCountInString(local) > 2 {
		r := []rune(local)
		local = string(r[:2]) + "***"
	} else {
		local = "***"
	}

	return local + "@" + domain
}

func Token() string    { return "[REDACTED_TOKEN]" }
func Password() string { return "[REDACTED_PASSWORD]" }

// Snippet returns at most max bytes of body as text, cut on a rune boundary, with any
// occurrence of the given secrets replaced by [Token].
func Snippet(body []byte, max int, secrets ...string) string {
	if max <= 0 || len(body) == 0 {
		return ""
	}
	s := string(body)
	for _, secret := range secrets {
		if secret != "" {
			s = strings.ReplaceAll(s, secret, Token())
		}
	}
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
