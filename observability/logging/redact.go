package logging

import (
	"log/slog"
	"sort"
	"strings"
)

// RedactedValue is the placeholder written in place of sensitive fields.
const RedactedValue = "[REDACTED]"

// Keys that are safe to log verbatim. Anything else passed through MaskField
// is replaced, so secrets such as signing keys or database passwords never
// reach the log sink.
var redactionAllowlist = map[string]struct{}{
	"service":    {},
	"env":        {},
	"message":    {},
	"severity":   {},
	"timestamp":  {},
	"error":      {},
	"reason":     {},
	"component":  {},
	"pool":       {},
	"op":         {},
	"route":      {},
	"driver":     {},
	"listen":     {},
	"request_id": {},
}

func IsAllowlisted(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	_, ok := redactionAllowlist[normalized]
	return ok
}

// RedactionAllowlist returns the allowlisted keys, sorted.
func RedactionAllowlist() []string {
	keys := make([]string, 0, len(redactionAllowlist))
	for key := range redactionAllowlist {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MaskField returns a slog.Attr that redacts value unless key is allowlisted.
// Empty values pass through unchanged.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// MaskDSN keeps the scheme and host of a database DSN and redacts the rest.
func MaskDSN(dsn string) string {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return dsn
	}
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return RedactedValue
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = rest[at+1:]
	}
	host, _, _ := strings.Cut(rest, "/")
	return scheme + "://" + host + "/" + RedactedValue
}
