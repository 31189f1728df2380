// Package review validates agent output: it recovers a JSON object from
// raw model text and checks it against each role's required fields.
package review

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var errNoObject = errors.New("no JSON object found in output")

// fieldPattern matches a quoted key followed by a scalar or flat-array value.
var fieldPattern = regexp.MustCompile(`"([A-Za-z_][A-Za-z0-9_]*)"\s*:\s*("(?:[^"\\]|\\.)*"|\[[^\[\]]*\]|true|false|null|-?\d+(?:\.\d+)?)`)

// Extract recovers a field mapping from model output. It tries, in order:
// the whole text as JSON, the text without markdown fences, the first
// balanced object in the text, and finally per-field regex extraction for
// output too malformed to parse as a whole.
func Extract(raw string) (map[string]any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errNoObject
	}
	if obj, ok := decodeObject(trimmed); ok {
		return obj, nil
	}

	unfenced := stripFences(trimmed)
	if obj, ok := decodeObject(unfenced); ok {
		return obj, nil
	}
	if text, ok := balancedObject(unfenced); ok {
		if obj, ok := decodeObject(text); ok {
			return obj, nil
		}
	}

	if obj := scanFields(unfenced); len(obj) > 0 {
		return obj, nil
	}
	return nil, errNoObject
}

func decodeObject(text string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

func stripFences(text string) string {
	if i := strings.Index(text, "```"); i >= 0 {
		rest := text[i+3:]
		rest = strings.TrimLeft(rest, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
		if j := strings.Index(rest, "```"); j >= 0 {
			rest = rest[:j]
		}
		return strings.TrimSpace(rest)
	}
	return text
}

// balancedObject returns the first top-level {...} span, skipping braces
// inside strings.
func balancedObject(text string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escape := false
	for i, r := range text {
		if start == -1 {
			if r == '{' {
				start = i
				depth = 1
			}
			continue
		}
		if inString {
			if escape {
				escape = false
				continue
			}
			if r == '\\' {
				escape = true
				continue
			}
			if r == '"' {
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return strings.TrimSpace(text[start : i+1]), true
			}
		}
	}
	return "", false
}

func scanFields(text string) map[string]any {
	out := map[string]any{}
	for _, m := range fieldPattern.FindAllStringSubmatch(text, -1) {
		if _, seen := out[m[1]]; seen {
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(m[2]), &v); err != nil {
			continue
		}
		out[m[1]] = v
	}
	return out
}
