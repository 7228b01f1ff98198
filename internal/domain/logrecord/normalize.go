package logrecord

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// DropReason says why a line did not become a Record.
type DropReason string

// Drop reasons, used as metric labels.
const (
	DropNone      DropReason = ""
	DropBlank     DropReason = "blank"
	DropMalformed DropReason = "malformed"
	DropStreaming DropReason = "streaming"
	DropShortText DropReason = "short_text"
)

// Normalize parses one JSONL line into a Record. day is the calendar day of
// the source file. The second return value is false when the line is
// dropped; Explain reports why.
func Normalize(line []byte, day string) (Record, bool) {
	r, reason := Explain(line, day)
	return r, reason == DropNone
}

// Explain is Normalize with the drop reason exposed.
func Explain(line []byte, day string) (Record, DropReason) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Record{}, DropBlank
	}

	var entry map[string]any
	if err := json.Unmarshal(line, &entry); err != nil || entry == nil {
		return Record{}, DropMalformed
	}

	// Older writers appended partial snapshots while a reply streamed in.
	if truthy(entry["streaming"]) {
		return Record{}, DropStreaming
	}

	text, _ := entry["text"].(string)
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < MinTextLength {
		return Record{}, DropShortText
	}

	ts, _ := entry["timestamp"].(string)
	role, ok := entry["role"].(string)
	if !ok {
		role = DefaultRole
	}

	return New(ts, role, text, day), DropNone
}

// truthy mirrors loose JSON truthiness: false, null, 0, "" and empty
// containers are false.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}
