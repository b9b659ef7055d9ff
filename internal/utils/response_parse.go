// Package utils holds small helpers for cleaning up model output.
package utils

import (
	"encoding/json"
	"regexp"
	"strings"
)

var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

// ExtractJSON pulls a JSON object out of chatty model output. It tries the
// whole string, then the largest {...} slice, then the slice with trailing
// commas removed, then a brace-balance repair that appends at most a few
// closing braces. Returns ok=false when nothing parseable is found.
func ExtractJSON(text string) (json.RawMessage, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}

	if raw, ok := tryJSON(text); ok {
		return raw, true
	}

	start := strings.Index(text, "{")
	if start < 0 {
		return nil, false
	}
	end := strings.LastIndex(text, "}")
	var fragment string
	if end > start {
		fragment = text[start : end+1]
	} else {
		// No closing brace yet, only a leading fragment.
		fragment = text[start:]
	}

	if raw, ok := tryJSON(fragment); ok {
		return raw, true
	}

	// Trailing commas before } or ] are a common model hiccup.
	repaired := trailingCommaRe.ReplaceAllString(fragment, "$1")
	if raw, ok := tryJSON(repaired); ok {
		return raw, true
	}

	opens := strings.Count(fragment, "{")
	closes := strings.Count(fragment, "}")
	if opens > closes {
		missing := opens - closes
		if missing > 3 {
			missing = 3
		}
		if raw, ok := tryJSON(fragment + strings.Repeat("}", missing)); ok {
			return raw, true
		}
	}
	return nil, false
}

func tryJSON(candidate string) (json.RawMessage, bool) {
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &decoded); err != nil {
		return nil, false
	}
	return json.RawMessage(candidate), true
}

// CleanFieldText normalizes one generated card field: fences stripped,
// surrounding whitespace trimmed.
func CleanFieldText(raw string) string {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if i := strings.Index(text, "\n"); i >= 0 && !strings.ContainsAny(text[:i], " \t") {
			// Drop a language tag on the opening fence.
			text = text[i+1:]
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}
	return text
}
