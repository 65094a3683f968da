package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeJSON parses a model reply into v, tolerating markdown code fences
// and leading prose around the JSON object.
func DecodeJSON(raw string, v any) error {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	if !strings.HasPrefix(s, "{") {
		start := strings.Index(s, "{")
		end := strings.LastIndex(s, "}")
		if start < 0 || end <= start {
			return fmt.Errorf("no JSON object in reply")
		}
		s = s[start : end+1]
	}
	return json.Unmarshal([]byte(s), v)
}
