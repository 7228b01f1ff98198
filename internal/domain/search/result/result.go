package result

import (
	"math"

	"github.com/kailas-cloud/recall/internal/domain/document"
)

// Hit is a raw engine match: the stored body, its metadata and the cosine
// distance to the query. distance is nil when the engine did not report one.
type Hit struct {
	id       string
	content  string
	distance *float64
	metadata map[string]string
}

// NewHit creates an engine hit.
func NewHit(id, content string, distance *float64, metadata map[string]string) Hit {
	return Hit{id: id, content: content, distance: distance, metadata: metadata}
}

// ID returns the document identity.
func (h *Hit) ID() string { return h.id }

// Content returns the stored body.
func (h *Hit) Content() string { return h.content }

// Distance returns the reported distance, if any.
func (h *Hit) Distance() *float64 { return h.distance }

// Metadata returns the raw stored metadata.
func (h *Hit) Metadata() map[string]string { return h.metadata }

// Scored is a hit as presented to callers.
type Scored struct {
	Content   string
	Score     *float64
	Date      string
	Time      string
	Role      string
	Source    string
	CharCount int
}

// Similarity converts a cosine distance into a similarity rounded to 4 decimals.
func Similarity(distance float64) float64 {
	return math.Round((1-distance)*1e4) / 1e4
}

// Format maps engine hits to scored results, preserving engine order.
func Format(hits []Hit) []Scored {
	out := make([]Scored, len(hits))
	for i := range hits {
		h := &hits[i]
		meta := document.MetadataFromFields(h.metadata)

		var score *float64
		if h.distance != nil {
			s := Similarity(*h.distance)
			score = &s
		}

		out[i] = Scored{
			Content:   h.content,
			Score:     score,
			Date:      meta.Date,
			Time:      meta.Time,
			Role:      meta.Role,
			Source:    meta.Source,
			CharCount: meta.CharCount,
		}
	}
	return out
}
