package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces the value of a sensitive attribute.
const RedactedValue = "[REDACTED]"

// sensitiveKeys name attributes that must not reach a log sink in clear.
// Bitcoin addresses tie bridge accounts to on-chain funds.
var sensitiveKeys = map[string]struct{}{
	"btc_address":     {},
	"deposit_address": {},
	"bitcoin_key":     {},
	"public_key":      {},
	"private_key":     {},
	"dsn":             {},
}

// IsSensitive reports whether values logged under key are masked.
func IsSensitive(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	if _, ok := sensitiveKeys[normalized]; ok {
		return true
	}
	return strings.HasSuffix(normalized, "_secret")
}

// MaskValue returns the placeholder for non-empty values.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// Redact masks attr when its key is sensitive. Groups are walked so nested
// attributes are covered too.
func Redact(attr slog.Attr) slog.Attr {
	if attr.Value.Kind() == slog.KindGroup {
		group := attr.Value.Group()
		out := make([]any, 0, len(group))
		for _, a := range group {
			out = append(out, Redact(a))
		}
		return slog.Group(attr.Key, out...)
	}
	if !IsSensitive(attr.Key) {
		return attr
	}
	return slog.String(attr.Key, MaskValue(attr.Value.String()))
}
