package relations

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	MaturityCandidate  = "candidate"
	MaturityValidated  = "validated"
	MaturityRejected   = "rejected"
	MaturityConflicted = "conflicted"
)

// CanonicalRelation is the deduplicated, typed, confidence-scored aggregate
// of all evidence for one (tenant, subject, object, relation type) triple.
// Its ID is a deterministic hash of that identity, so reprocessing the same
// inputs reproduces the same row. Only the consolidation pass writes here.
type CanonicalRelation struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	TenantID string `gorm:"type:text;not null;index;index:idx_canonical_tenant_subject,priority:1;index:idx_canonical_tenant_object,priority:1" json:"tenant_id"`

	SubjectConceptID uuid.UUID `gorm:"type:uuid;not null;index:idx_canonical_tenant_subject,priority:2" json:"subject_concept_id"`
	ObjectConceptID  uuid.UUID `gorm:"type:uuid;not null;index:idx_canonical_tenant_object,priority:2" json:"object_concept_id"`

	RelationType string `gorm:"type:text;not null;index" json:"relation_type"`

	AssertionCount int `gorm:"not null;default:0" json:"assertion_count"`
	DocumentCount  int `gorm:"not null;default:0" json:"document_count"`
	ChunkCount     int `gorm:"not null;default:0" json:"chunk_count"`

	ConfidenceMean float64 `gorm:"not null;default:0" json:"confidence_mean"`
	ConfidenceP50  float64 `gorm:"not null;default:0" json:"confidence_p50"`

	// QualityScore is clipped to [0,1] after penalty averaging. Hard invariant.
	QualityScore float64 `gorm:"not null;default:0" json:"quality_score"`
	NegatedRatio float64 `gorm:"not null;default:0" json:"negated_ratio"`

	Maturity string `gorm:"type:text;not null;default:'candidate';index" json:"maturity"`

	FirstSeenAt time.Time `gorm:"not null" json:"first_seen_at"`
	LastSeenAt  time.Time `gorm:"not null" json:"last_seen_at"`

	// Predicate profile: top raw predicates observed plus every contributing
	// cluster id, kept for debugging and downstream explanation.
	TopPredicates     datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"top_predicates"`
	ClusterIDs        datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"cluster_ids"`
	ClusterConfidence float64        `gorm:"not null;default:0" json:"cluster_confidence"`

	// EvidenceSample is the highest-confidence evidence text; chain detection
	// uses it to reject duplicate-text joins.
	EvidenceSample string `gorm:"type:text" json:"evidence_sample,omitempty"`

	// Bounded sample of contributing document ids for chain scope tagging.
	SourceDocumentIDs datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"source_document_ids"`

	MappingVersion string `gorm:"type:text;not null;index" json:"mapping_version"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now();index" json:"updated_at"`
}

func (CanonicalRelation) TableName() string { return "canonical_relation" }
