package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces secret material in log output.
const RedactedValue = "[REDACTED]"

// Keys the ledger logs verbatim. Anything else passed through MaskField is
// treated as secret.
var plainKeys = map[string]struct{}{
	"service":  {},
	"env":      {},
	"module":   {},
	"backend":  {},
	"datadir":  {},
	"address":  {},
	"error":    {},
	"reason":   {},
	"authmode": {},
}

// IsAllowlisted reports whether key may be logged without masking.
func IsAllowlisted(key string) bool {
	_, ok := plainKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskValue hides non-empty values. Empty values pass through so a missing
// secret stays visible in logs.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField returns an attribute for key, masking the value unless the key
// is allowlisted.
func MaskField(key, value string) slog.Attr {
	if IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, MaskValue(value))
}

// MaskFields builds masked attributes from alternating key/value pairs, in
// the shape slog.Logger.Info accepts. A trailing key without a value is
// dropped.
func MaskFields(pairs ...string) []any {
	out := make([]any, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, MaskField(pairs[i], pairs[i+1]))
	}
	return out
}
