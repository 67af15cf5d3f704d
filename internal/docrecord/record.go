// Package docrecord defines the single-record-per-file document schema
// (spec §3) that the rest of the system depends on: one searchable record
// per indexed source file, carrying a comprehensive summary, structured
// entities, and a unit-norm embedding computed from that summary.
package docrecord

import "time"

// ContentType classifies how a document's content should be rendered/read.
type ContentType string

const (
	ContentText        ContentType = "text"
	ContentImage       ContentType = "image"
	ContentSpreadsheet ContentType = "spreadsheet"
)

// DocumentType is a coarse classification used for filtering.
type DocumentType string

const (
	DocInvoice     DocumentType = "invoice"
	DocReport      DocumentType = "report"
	DocContract    DocumentType = "contract"
	DocResume      DocumentType = "resume"
	DocScreenshot  DocumentType = "screenshot"
	DocImage       DocumentType = "image"
	DocPDF         DocumentType = "pdf_document"
	DocWord        DocumentType = "word_document"
	DocText        DocumentType = "text_document"
	DocSpreadsheet DocumentType = "spreadsheet"
	DocDefault     DocumentType = "document"
)

// EntityCategory enumerates the structured-entity buckets extracted during
// ingestion (spec §4.13's comprehensive-summary template has an
// ENTITIES_STRUCTURED section with these labels).
type EntityCategory string

const (
	EntityPersons      EntityCategory = "persons"
	EntitySkills       EntityCategory = "skills"
	EntityCompanies    EntityCategory = "companies"
	EntityEducation    EntityCategory = "education"
	EntityLocations    EntityCategory = "locations"
	EntityDates        EntityCategory = "dates"
	EntityProjects     EntityCategory = "projects"
	EntityTechnologies EntityCategory = "technologies"
	EntityOther        EntityCategory = "other"
)

// Record is the indexed document: the single searchable unit per source
// file. See spec §3 "Document record" for the field-by-field contract.
type Record struct {
	ID       string // 128-bit hex; stable hash of the absolute file path
	Filename string
	FilePath string

	FileType    string // extension, e.g. ".pdf"
	ContentType ContentType
	DocType     DocumentType
	IsImage     bool

	// DetailedSummary is the canonical searchable text; the embedding is
	// computed from this field, never from FullContent.
	DetailedSummary string
	FullContent     string // truncated to a configured limit

	Keywords           string // comma-joined
	EntitiesFlat       []string
	EntitiesStructured map[EntityCategory][]string
	Topics             []string

	VectorEmbedding []float32
	// EmbeddingOK resolves spec §9 Open Question #1: an explicit flag
	// rather than a silently-inserted zero vector, so retrieval can treat
	// a failed embedding differently from a legitimately-sparse one.
	EmbeddingOK bool

	WordCount     int
	PageCount     int
	FileSizeBytes int64

	CreatedAt    time.Time
	LastModified time.Time
}

// EntitiesUnion returns the flattened set of EntitiesStructured values,
// used to validate the invariant entities_flat superset EntitiesStructured.
func EntitiesUnion(structured map[EntityCategory][]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, vals := range structured {
		for _, v := range vals {
			if _, ok := seen[v]; !ok {
				seen[v] = struct{}{}
				out = append(out, v)
			}
		}
	}
	return out
}

// Valid checks the record invariants from spec §3: non-empty summary, a
// non-empty ID, and (when the embedding is OK) a vector of the expected
// dimension.
func (r Record) Valid(expectedDim int) error {
	if r.ID == "" {
		return errEmptyID
	}
	if r.DetailedSummary == "" {
		return errEmptySummary
	}
	if r.EmbeddingOK && len(r.VectorEmbedding) != expectedDim {
		return errDimMismatch
	}
	return nil
}
