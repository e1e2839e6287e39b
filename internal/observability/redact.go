package observability

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
)

// redactedValue replaces sensitive values in log output.
const redactedValue = "[REDACTED]"

// sensitiveKeys are attribute keys whose values are always redacted,
// matched case-insensitively. "key" alone is deliberately absent: it is
// too generic and would swallow ordinary attributes.
var sensitiveKeys = map[string]struct{}{
	"password":   {},
	"secret":     {},
	"token":      {},
	"apikey":     {},
	"api_key":    {},
	"credential": {},
	"clearkey":   {},
}

// sensitiveParamPattern matches credential-bearing query parameters inside
// string values such as URLs. Replacement happens in place so the rest of
// the string survives byte for byte.
var sensitiveParamPattern = regexp.MustCompile(`(?i)\b(password|secret|token|apikey|api_key|credential)=[^&\s"']*`)

// redactAttr redacts sensitive attributes by key and scrubs credential
// query parameters from string values.
func redactAttr(a slog.Attr) slog.Attr {
	if _, ok := sensitiveKeys[strings.ToLower(a.Key)]; ok {
		a.Value = slog.StringValue(redactedValue)
		return a
	}
	if a.Value.Kind() == slog.KindString {
		s := a.Value.String()
		if strings.ContainsRune(s, '=') && sensitiveParamPattern.MatchString(s) {
			a.Value = slog.StringValue(sensitiveParamPattern.ReplaceAllString(s, "$1="+redactedValue))
		}
	}
	return a
}

// ScrubURL removes credential query parameters from a URL string for safe
// logging. Non-sensitive parameters are preserved unchanged.
func ScrubURL(rawURL string) string {
	if !strings.ContainsRune(rawURL, '=') {
		return rawURL
	}
	return sensitiveParamPattern.ReplaceAllString(rawURL, "$1="+redactedValue)
}

// formatSource renders a slog.Source as a short module-relative position,
// e.g. "internal/stream/pipeline.go:142". Absolute build paths leak the
// build host layout and bloat every record.
func formatSource(src *slog.Source) string {
	return fmt.Sprintf("%s:%d", shortPath(src.File), src.Line)
}

// shortPath keeps the last three path components of a source file path.
func shortPath(file string) string {
	file = filepath.ToSlash(file)
	parts := strings.Split(file, "/")
	if len(parts) > 3 {
		parts = parts[len(parts)-3:]
	}
	return strings.Join(parts, "/")
}
