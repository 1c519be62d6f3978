package audit

import "strings"

// sensitiveKeys mark metadata fields whose values never reach a sink in
// the clear.
var sensitiveKeys = []string{
	"token",
	"secret",
	"password",
	"api_key",
	"apikey",
	"authorization",
	"credential",
	"signature",
}

const redactedValue = "[REDACTED]"

// Redact returns a copy of metadata with sensitive values masked. The input
// map is never modified.
func Redact(metadata map[string]string) map[string]string {
	if metadata == nil {
		return nil
	}

	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		if isSensitive(k) {
			out[k] = redactedValue
		} else {
			out[k] = v
		}
	}
	return out
}

func isSensitive(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
