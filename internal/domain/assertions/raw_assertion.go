package assertions

import (
	"time"

	"github.com/google/uuid"
)

// RawAssertion is one immutable evidence record: a fact candidate tying two
// resolved concepts via a raw predicate, with the text span that supports it.
// Rows are append-only; consolidation only ever writes the canonical link
// fields. The (tenant_id, fingerprint) unique index is what makes ingestion
// idempotent, and the subject/object/predicate_norm columns are denormalized
// on purpose so the grouping query is a pure index scan.
type RawAssertion struct {
	// ID is a UUIDv7 so the evidence log sorts by insertion time.
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	TenantID string `gorm:"type:text;not null;index:idx_raw_assertion_fp,unique,priority:1;index:idx_raw_assertion_group,priority:1" json:"tenant_id"`

	// Fingerprint is sha256(tenant|doc|chunk|subject|object|predicate_norm|evidence).
	Fingerprint string `gorm:"type:text;not null;index:idx_raw_assertion_fp,unique,priority:2" json:"fingerprint"`

	SubjectConceptID uuid.UUID `gorm:"type:uuid;not null;index:idx_raw_assertion_group,priority:2" json:"subject_concept_id"`
	ObjectConceptID  uuid.UUID `gorm:"type:uuid;not null;index:idx_raw_assertion_group,priority:3" json:"object_concept_id"`

	PredicateRaw  string `gorm:"type:text;not null" json:"predicate_raw"`
	PredicateNorm string `gorm:"type:text;not null;index:idx_raw_assertion_group,priority:4" json:"predicate_norm"`

	EvidenceText      string `gorm:"type:text;not null" json:"evidence_text"`
	EvidenceSpanStart int    `gorm:"not null;default:0" json:"evidence_span_start"`
	EvidenceSpanEnd   int    `gorm:"not null;default:0" json:"evidence_span_end"`

	Confidence float64 `gorm:"not null;default:0.5" json:"confidence"`

	Negated       bool `gorm:"not null;default:false" json:"negated"`
	Hedged        bool `gorm:"not null;default:false" json:"hedged"`
	Conditional   bool `gorm:"not null;default:false" json:"conditional"`
	CrossSentence bool `gorm:"not null;default:false" json:"cross_sentence"`

	SourceDocumentID string `gorm:"type:text;not null;index" json:"source_document_id"`
	SourceChunkID    string `gorm:"type:text;not null" json:"source_chunk_id"`
	SourceSegment    string `gorm:"type:text" json:"source_segment,omitempty"`

	ExtractorName    string `gorm:"type:text;not null" json:"extractor_name"`
	ExtractorVersion string `gorm:"type:text;not null" json:"extractor_version"`
	ModelName        string `gorm:"type:text" json:"model_name,omitempty"`
	SchemaVersion    string `gorm:"type:text;not null;default:'1'" json:"schema_version"`

	// Written only by the consolidation pass.
	CanonicalRelationID *uuid.UUID `gorm:"type:uuid;index" json:"canonical_relation_id,omitempty"`
	MappingVersion      string     `gorm:"type:text;index" json:"mapping_version,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (RawAssertion) TableName() string { return "raw_assertion" }
