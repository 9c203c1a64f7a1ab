package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// stripFences removes a surrounding markdown code fence, if any.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func between(s string, lo, hi byte) (string, bool) {
	start := strings.IndexByte(s, lo)
	end := strings.LastIndexByte(s, hi)
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// ExtractObject decodes the text from the first '{' to the last '}' of a
// reply into v. The rest of the reply is ignored.
func ExtractObject(reply string, v any) error {
	raw, ok := between(stripFences(reply), '{', '}')
	if !ok {
		return fmt.Errorf("no JSON object in reply: %w", ErrNoResult)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decode object: %w", err)
	}
	return nil
}

// ExtractArray decodes the text from the first '[' to the last ']' of a
// reply into v.
func ExtractArray(reply string, v any) error {
	raw, ok := between(stripFences(reply), '[', ']')
	if !ok {
		return fmt.Errorf("no JSON array in reply: %w", ErrNoResult)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decode array: %w", err)
	}
	return nil
}
