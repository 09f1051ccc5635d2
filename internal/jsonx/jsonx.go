// Package jsonx extracts JSON values out of free-form model output. The
// extraction oracle wraps its JSON in prose or code fences often enough that
// every caller parses through here rather than json.Unmarshal directly.
package jsonx

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON indicates no parseable JSON value was found in the text.
var ErrNoJSON = errors.New("no JSON value found in text")

// Extract locates the first top-level JSON object or array in text and
// returns its raw bytes. A fenced code block is stripped first; failing that,
// the value is found by balanced brace/bracket matching that honors string
// literals and escapes.
func Extract(text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrNoJSON
	}

	if fenced, ok := stripFence(text); ok {
		if raw, err := firstValue(fenced); err == nil {
			return raw, nil
		}
	}

	return firstValue(text)
}

// Unmarshal extracts the first JSON value in text and decodes it into v.
func Unmarshal(text string, v any) error {
	raw, err := Extract(text)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// stripFence returns the contents of the first ``` fenced block, tolerating a
// language tag on the opening fence.
func stripFence(text string) (string, bool) {
	start := strings.Index(text, "```")
	if start == -1 {
		return "", false
	}
	rest := text[start+3:]

	// Drop the language tag line, e.g. "json"
	if nl := strings.IndexByte(rest, '\n'); nl != -1 {
		firstLine := strings.TrimSpace(rest[:nl])
		if firstLine == "" || !strings.ContainsAny(firstLine, "{[") {
			rest = rest[nl+1:]
		}
	}

	end := strings.Index(rest, "```")
	if end == -1 {
		return strings.TrimSpace(rest), true
	}
	return strings.TrimSpace(rest[:end]), true
}

// firstValue scans for the first '{' or '[' and returns the balanced value
// starting there.
func firstValue(text string) ([]byte, error) {
	start := strings.IndexAny(text, "{[")
	if start == -1 {
		return nil, ErrNoJSON
	}

	open := text[start]
	var closer byte = '}'
	if open == '[' {
		closer = ']'
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closer:
			depth--
			if depth == 0 {
				raw := []byte(text[start : i+1])
				if !json.Valid(raw) {
					return nil, ErrNoJSON
				}
				return raw, nil
			}
		}
	}

	return nil, ErrNoJSON
}
