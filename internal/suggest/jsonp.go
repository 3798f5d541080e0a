package suggest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
)

// searchEnginePrefix is the callback the search engine wraps its payload in
const searchEnginePrefix = "window.google.ac.h("

// callbackPattern matches any other `name(` ... `)` padding
var callbackPattern = regexp.MustCompile(`(?s)^[A-Za-z_$][\w.$]*\((.*)\)\s*;?$`)

// StripJSONP removes a JSON-with-padding envelope. Bare JSON passes through
// unchanged. Only the outer callback is removed, so parentheses inside
// suggestion strings survive.
func StripJSONP(body []byte) ([]byte, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("empty body")
	}
	if body[0] == '[' || body[0] == '{' {
		return body, nil
	}

	if bytes.HasPrefix(body, []byte(searchEnginePrefix)) {
		inner := bytes.TrimPrefix(body, []byte(searchEnginePrefix))
		inner = bytes.TrimSuffix(bytes.TrimRight(inner, "; \t\r\n"), []byte(")"))
		return inner, nil
	}

	if m := callbackPattern.FindSubmatch(body); m != nil {
		return m[1], nil
	}
	return nil, fmt.Errorf("unrecognized envelope: %.40q", body)
}

// ParseSearchEngineResponse extracts suggestions from a (possibly padded)
// `[query, [[suggestion, ...], ...], ...]` payload
func ParseSearchEngineResponse(body []byte) ([]string, error) {
	payload, err := StripJSONP(body)
	if err != nil {
		return nil, err
	}

	var top []json.RawMessage
	if err := json.Unmarshal(payload, &top); err != nil {
		return nil, fmt.Errorf("parse payload: %w", err)
	}
	if len(top) < 2 {
		return nil, fmt.Errorf("payload has %d elements, want at least 2", len(top))
	}

	var entries [][]json.RawMessage
	if err := json.Unmarshal(top[1], &entries); err != nil {
		return nil, fmt.Errorf("parse suggestions: %w", err)
	}

	keywords := make([]string, 0, len(entries))
	for _, entry := range entries {
		if len(entry) == 0 {
			continue
		}
		var kw string
		if err := json.Unmarshal(entry[0], &kw); err != nil {
			continue
		}
		keywords = append(keywords, kw)
	}
	return keywords, nil
}
