package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSONObject is returned when no decodable JSON object could be found
var ErrNoJSONObject = errors.New("no JSON object found")

var (
	fencedBlockRe   = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.+?)\\s*```")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	bareKeyRe       = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*:)`)
	controlCharRe   = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F]`)
	objectStartRe   = regexp.MustCompile(`^\{\s*(["']|[A-Za-z_][A-Za-z0-9_]*\s*:)`)
)

// ExtractJSONObject returns the first JSON object found in model output that may contain:
// - Pure JSON
// - JSON wrapped in markdown code blocks (```json ... ```)
// - JSON with surrounding prose
// - JSON with trailing commas, bare keys or single quotes
// The returned text is always valid JSON.
func ExtractJSONObject(input string) (string, error) {
	s := strings.TrimSpace(strings.TrimPrefix(input, "\ufeff"))
	if s == "" {
		return "", fmt.Errorf("empty input: %w", ErrNoJSONObject)
	}

	// A fenced block is the most explicit signal, look there first
	if m := fencedBlockRe.FindStringSubmatch(s); len(m) > 1 {
		if obj, ok := firstObject(m[1]); ok {
			return obj, nil
		}
	}

	if obj, ok := firstObject(s); ok {
		return obj, nil
	}

	return "", fmt.Errorf("%w in: %s", ErrNoJSONObject, truncateString(s, 100))
}

// ParseLenient extracts the first JSON object from input and decodes it into target
func ParseLenient(input string, target interface{}) error {
	obj, err := ExtractJSONObject(input)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(obj), target); err != nil {
		return fmt.Errorf("failed to decode JSON object: %w", err)
	}
	return nil
}

// firstObject scans every '{' in order and returns the first balanced
// candidate that is valid JSON as-is or after repair.
func firstObject(s string) (string, bool) {
	for offset := 0; offset < len(s); {
		idx := strings.IndexByte(s[offset:], '{')
		if idx < 0 {
			return "", false
		}
		start := offset + idx

		candidate := balancedObject(s[start:])
		if candidate == "" {
			// A truncated object would only yield its nested fragments from here on
			if objectStartRe.MatchString(s[start:]) {
				return "", false
			}
			offset = start + 1
			continue
		}
		if json.Valid([]byte(candidate)) {
			return candidate, true
		}
		if repaired := repairJSON(candidate); json.Valid([]byte(repaired)) {
			return repaired, true
		}
		offset = start + 1
	}
	return "", false
}

// balancedObject returns the prefix of s (which starts with '{') up to the matching
// closing brace, ignoring braces inside quoted strings.
func balancedObject(s string) string {
	depth := 0
	var quote byte
	escape := false

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			switch {
			case escape:
				escape = false
			case ch == '\\':
				escape = true
			case ch == quote:
				quote = 0
			}
			continue
		}

		switch ch {
		case '"', '\'':
			quote = ch
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}

// repairJSON fixes the formatting mistakes language models commonly make
func repairJSON(s string) string {
	s = controlCharRe.ReplaceAllString(s, "")
	s = convertSingleQuotes(s)
	s = bareKeyRe.ReplaceAllString(s, `$1"$2"$3`)
	s = trailingCommaRe.ReplaceAllString(s, "$1")
	return s
}

// convertSingleQuotes rewrites single-quoted strings as double-quoted ones,
// leaving apostrophes inside double-quoted strings alone.
func convertSingleQuotes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var quote byte

	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0 && ch == '\\' && i+1 < len(s):
			i++
			if quote == '\'' && s[i] == '\'' {
				// \' is not a JSON escape
				b.WriteByte('\'')
				continue
			}
			b.WriteByte(ch)
			b.WriteByte(s[i])
		case quote == 0 && (ch == '"' || ch == '\''):
			quote = ch
			b.WriteByte('"')
		case quote != 0 && ch == quote:
			quote = 0
			b.WriteByte('"')
		case quote == '\'' && ch == '"':
			b.WriteString(`\"`)
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// truncateString truncates a string to maxLen characters
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
