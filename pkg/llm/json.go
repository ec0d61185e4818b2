package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ErrNoJSON is returned when a reply contains no parseable JSON object or array.
var ErrNoJSON = errors.New("no valid JSON found in response")

// leadingThinkBlock matches the <think>...</think> preamble some models emit before answering.
var leadingThinkBlock = regexp.MustCompile(`(?s)^\s*<think>.*?</think>\s*`)

// codeFencePattern matches the first fenced block, with or without a language tag.
var codeFencePattern = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*[ \t]*\r?\n?(.*?)```")

// ExtractJSON returns the first complete JSON object or array in a model reply.
// A leading think block, code fences and surrounding prose are ignored.
func ExtractJSON(response string) (string, error) {
	body := leadingThinkBlock.ReplaceAllString(response, "")

	for _, start := range firstOpeners(body) {
		if candidate, ok := balancedFrom(body, start); ok && json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}

	if trimmed := strings.TrimSpace(body); trimmed != "" && json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}
	return "", ErrNoJSON
}

// firstOpeners returns the offsets of the first '{' and the first '[' in s, earliest first.
func firstOpeners(s string) []int {
	var offsets []int
	for _, opener := range []byte{'{', '['} {
		if i := strings.IndexByte(s, opener); i >= 0 {
			offsets = append(offsets, i)
		}
	}
	sort.Ints(offsets)
	return offsets
}

// balancedFrom scans from the bracket at s[start] to its matching closer.
// Brackets inside string literals do not count.
func balancedFrom(s string, start int) (string, bool) {
	opener := s[start]
	closer := byte('}')
	if opener == '[' {
		closer = ']'
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString:
			if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
		case c == '"':
			inString = true
		case c == opener:
			depth++
		case c == closer:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// ParseJSONResponse extracts JSON from a reply and unmarshals it into T.
func ParseJSONResponse[T any](response string) (T, error) {
	var result T

	raw, err := ExtractJSON(response)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return result, fmt.Errorf("unmarshal JSON: %w", err)
	}
	return result, nil
}

// StripCodeFences returns the contents of the first markdown code block in s,
// or s trimmed when it contains no complete fenced block.
func StripCodeFences(s string) string {
	if m := codeFencePattern.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "```"))
}
