package document

import (
	"fmt"
	"strconv"

	"github.com/kailas-cloud/recall/internal/domain/logrecord"
)

// DefaultSource tags documents ingested from the conversation logger.
const DefaultSource = "redwood"

// Metadata field names as stored alongside each document.
const (
	FieldRole      = "role"
	FieldDate      = "date"
	FieldTime      = "time"
	FieldTimestamp = "timestamp"
	FieldSource    = "source"
	FieldCharCount = "char_count"
)

// Metadata is the flat key/value set stored with a document.
type Metadata struct {
	Role      string
	Date      string
	Time      string
	Timestamp string
	Source    string
	CharCount int
}

// Fields flattens m into string pairs for hash storage.
func (m Metadata) Fields() map[string]string {
	return map[string]string{
		FieldRole:      m.Role,
		FieldDate:      m.Date,
		FieldTime:      m.Time,
		FieldTimestamp: m.Timestamp,
		FieldSource:    m.Source,
		FieldCharCount: strconv.Itoa(m.CharCount),
	}
}

// MetadataFromFields is the inverse of Fields. Missing keys become ""
// and a missing or unparsable char_count becomes 0.
func MetadataFromFields(fields map[string]string) Metadata {
	n, err := strconv.Atoi(fields[FieldCharCount])
	if err != nil {
		n = 0
	}
	return Metadata{
		Role:      fields[FieldRole],
		Date:      fields[FieldDate],
		Time:      fields[FieldTime],
		Timestamp: fields[FieldTimestamp],
		Source:    fields[FieldSource],
		CharCount: n,
	}
}

// Document is the unit stored in the index (immutable value object).
type Document struct {
	id       string
	body     string
	metadata Metadata
}

// FromRecord projects a normalized record onto a document.
func FromRecord(r *logrecord.Record, source string) Document {
	if source == "" {
		source = DefaultSource
	}
	return Document{
		id:   r.ID(),
		body: r.Body(),
		metadata: Metadata{
			Role:      r.Role(),
			Date:      r.Day(),
			Time:      r.Time(),
			Timestamp: r.Timestamp(),
			Source:    source,
			CharCount: r.CharCount(),
		},
	}
}

// ID returns the content identity.
func (d *Document) ID() string { return d.id }

// Body returns the stored (possibly truncated) text.
func (d *Document) Body() string { return d.body }

// Metadata returns the document metadata.
func (d *Document) Metadata() Metadata { return d.metadata }

func (d Document) String() string {
	return fmt.Sprintf("document(%s, %s %s, %d chars)", d.id, d.metadata.Date, d.metadata.Role, d.metadata.CharCount)
}

// Columns splits docs into the parallel id/body/metadata slices the engine takes.
func Columns(docs []Document) (ids, bodies []string, metas []Metadata) {
	ids = make([]string, len(docs))
	bodies = make([]string, len(docs))
	metas = make([]Metadata, len(docs))
	for i := range docs {
		ids[i] = docs[i].id
		bodies[i] = docs[i].body
		metas[i] = docs[i].metadata
	}
	return ids, bodies, metas
}
