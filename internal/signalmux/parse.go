package signalmux

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseLine splits a console line of the form "<topic> [json]". Blank lines
// and lines starting with '#' yield an empty topic and no error.
func ParseLine(line string) (string, json.RawMessage, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", nil, nil
	}

	topic, rest, _ := strings.Cut(line, " ")
	if !strings.HasPrefix(topic, "/") {
		return "", nil, fmt.Errorf("topic %q must start with '/'", topic)
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return topic, nil, nil
	}
	if !json.Valid([]byte(rest)) {
		return "", nil, fmt.Errorf("%s: payload is not valid JSON", topic)
	}
	return topic, json.RawMessage(rest), nil
}

// FormatLine is the inverse of ParseLine.
func FormatLine(topic string, payload json.RawMessage) string {
	if len(payload) == 0 {
		return topic
	}
	return topic + " " + string(payload)
}
