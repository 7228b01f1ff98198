package logrecord

import (
	"crypto/md5" //nolint:gosec // content address, not a security boundary
	"encoding/hex"
	"strings"
	"unicode/utf8"
)

const (
	// MinTextLength is the shortest trimmed text worth indexing.
	MinTextLength = 10
	// IdentityPrefixLength is how much of the text participates in the identity.
	IdentityPrefixLength = 200
	// MaxBodyLength caps the stored body.
	MaxBodyLength = 4000
	// DefaultRole is used when a line has no role key, or a non-string one.
	DefaultRole = "unknown"
)

// Record is one normalized conversation turn (immutable value object).
type Record struct {
	id        string
	timestamp string
	role      string
	text      string
	day       string
	time      string
}

// New builds a Record, deriving identity and time of day.
// The text is expected to be trimmed already; role is kept as given.
func New(timestamp, role, text, day string) Record {
	return Record{
		id:        Identity(timestamp, text),
		timestamp: timestamp,
		role:      role,
		text:      text,
		day:       day,
		time:      TimeOfDay(timestamp),
	}
}

// ID returns the content identity.
func (r *Record) ID() string { return r.id }

// Timestamp returns the raw ISO-8601 timestamp, possibly empty.
func (r *Record) Timestamp() string { return r.timestamp }

// Role returns the speaker role.
func (r *Record) Role() string { return r.role }

// Text returns the full trimmed text.
func (r *Record) Text() string { return r.text }

// Day returns the calendar day of the source file (YYYY-MM-DD).
func (r *Record) Day() string { return r.day }

// Time returns the HH:MM:SS slice of the timestamp, or "".
func (r *Record) Time() string { return r.time }

// Body returns the text truncated to MaxBodyLength characters.
func (r *Record) Body() string { return truncate(r.text, MaxBodyLength) }

// CharCount returns the length of the full text in characters.
func (r *Record) CharCount() int { return utf8.RuneCountInString(r.text) }

// Identity returns the hex MD5 of "{timestamp}:{first 200 chars of text}".
// Two records with the same timestamp and leading text collapse to one document.
func Identity(timestamp, text string) string {
	sum := md5.Sum([]byte(timestamp + ":" + truncate(text, IdentityPrefixLength))) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// TimeOfDay returns the first 8 characters of the segment between the first
// and second "T" of ts, or "" when ts has no "T". The slice is positional:
// offsets or fractional seconds are not interpreted.
func TimeOfDay(ts string) string {
	_, rest, found := strings.Cut(ts, "T")
	if !found {
		return ""
	}
	if seg, _, ok := strings.Cut(rest, "T"); ok {
		rest = seg
	}
	return truncate(rest, 8)
}

// truncate cuts s to at most n characters (runes, not bytes).
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
