package collection

import (
	"github.com/kailas-cloud/recall/internal/db"
	"github.com/kailas-cloud/recall/internal/domain/document"
)

// Reserved hash fields. Metadata fields are stored under their own names.
const (
	fieldContent = "__content"
	fieldVector  = "__vector"
	vectorAlias  = "vector"

	// tagSeparator is a control character no role, date or source contains,
	// so a value such as "a,b" is indexed as one tag.
	tagSeparator = "\x1f"
)

// returnFields are fetched with every hit.
var returnFields = []string{
	fieldContent,
	document.FieldRole,
	document.FieldDate,
	document.FieldTime,
	document.FieldTimestamp,
	document.FieldSource,
	document.FieldCharCount,
}

// buildIndex defines the FT index: role, date and source are TAG fields so the
// query pre-filter can match them exactly; the vector uses cosine distance.
func buildIndex(name, keyPrefix string, dim int, hnsw HNSWConfig) (*db.IndexDefinition, error) {
	b := db.NewIndex(indexName(keyPrefix, name)).
		Prefix(docPrefix(keyPrefix, name)).
		TagWithOpts(document.FieldRole, tagSeparator, true).
		TagWithOpts(document.FieldDate, tagSeparator, true).
		TagWithOpts(document.FieldSource, tagSeparator, true).
		Numeric(document.FieldCharCount)

	if hnsw.Flat {
		b = b.VectorFlat(fieldVector, dim, db.DistanceCosine, 0)
	} else {
		b = b.VectorHNSW(fieldVector, dim, db.DistanceCosine, hnsw.M, hnsw.EFConstruct)
	}

	return b.As(vectorAlias).Build()
}

// toHash flattens one document into hash fields.
func toHash(body string, vector []float32, meta document.Metadata) map[string]string {
	m := meta.Fields()
	m[fieldContent] = body
	m[fieldVector] = db.EncodeVector(vector)
	return m
}

// Key patterns: {prefix}{name}:idx for the index, {prefix}{name}:{id} for documents.

func indexName(keyPrefix, name string) string {
	return keyPrefix + name + ":idx"
}

func docPrefix(keyPrefix, name string) string {
	return keyPrefix + name + ":"
}

func docKey(keyPrefix, name, id string) string {
	return docPrefix(keyPrefix, name) + id
}
