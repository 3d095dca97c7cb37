package oracle

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ParseError reports that no structured payload could be extracted from a
// model response. Callers distinguish it from transport errors with errors.As.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	preview := e.Raw
	if len(preview) > 120 {
		preview = preview[:120] + "..."
	}
	return fmt.Sprintf("oracle: cannot extract structured payload from %q: %v", preview, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// extractJSON pulls a JSON document out of free-form model output and decodes
// it into v. Models wrap payloads in prose or code fences, so the parse runs a
// fallback chain: strict parse, fenced block, outermost-brace scan.
func extractJSON(raw string, v interface{}) error {
	trimmed := strings.TrimSpace(raw)

	strictErr := json.Unmarshal([]byte(trimmed), v)
	if strictErr == nil {
		return nil
	}

	if m := fencedJSON.FindStringSubmatch(trimmed); m != nil {
		if err := json.Unmarshal([]byte(m[1]), v); err == nil {
			return nil
		}
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(trimmed[start:end+1]), v); err == nil {
			return nil
		}
	}

	return &ParseError{Raw: raw, Err: strictErr}
}
