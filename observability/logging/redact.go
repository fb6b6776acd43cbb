package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces sensitive values in log output.
const RedactedValue = "[REDACTED]"

// Keys MaskField lets through verbatim.
var allowlist = map[string]struct{}{
	"service":     {},
	"env":         {},
	"error":       {},
	"component":   {},
	"quest":       {},
	"participant": {},
	"asset":       {},
	"engine":      {},
	"route":       {},
	"visitor":     {},
}

// Keys the handler always redacts, whatever the call site passed.
var sensitive = map[string]struct{}{
	"authorization": {},
	"dsn":           {},
	"passphrase":    {},
	"password":      {},
	"secret":        {},
	"token":         {},
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// IsAllowlisted reports whether key is exempt from MaskField.
func IsAllowlisted(key string) bool {
	_, ok := allowlist[normalizeKey(key)]
	return ok
}

func isSensitive(key string) bool {
	_, ok := sensitive[normalizeKey(key)]
	return ok
}

// MaskField builds an attribute that carries value only for allowlisted keys.
// Empty values pass through unchanged.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

func redactAttr(attr slog.Attr) slog.Attr {
	if !isSensitive(attr.Key) {
		return attr
	}
	if attr.Value.Kind() == slog.KindString && attr.Value.String() == "" {
		return attr
	}
	return slog.String(attr.Key, RedactedValue)
}
