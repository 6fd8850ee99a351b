package relations

import (
	"time"

	"github.com/google/uuid"
)

// PredicateClusterLabel caches the LLM classification of one predicate
// cluster under one mapping version. The cache key is (tenant, mapping
// version, cluster id): bumping PREDICATE_MAPPING_VERSION invalidates every
// cached label without deleting rows, and identical clusters never pay for
// a second model call.
type PredicateClusterLabel struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	TenantID       string `gorm:"type:text;not null;uniqueIndex:idx_cluster_label_key,priority:1" json:"tenant_id"`
	MappingVersion string `gorm:"type:text;not null;uniqueIndex:idx_cluster_label_key,priority:2" json:"mapping_version"`
	ClusterID      string `gorm:"type:text;not null;uniqueIndex:idx_cluster_label_key,priority:3" json:"cluster_id"`

	RelationType string  `gorm:"type:text;not null" json:"relation_type"`
	Confidence   float64 `gorm:"not null;default:0" json:"confidence"`

	// Members is a pipe-joined sample of the normalized predicates that were
	// sent to the classifier, kept for audit.
	Members string `gorm:"type:text" json:"members,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (PredicateClusterLabel) TableName() string { return "predicate_cluster_label" }
