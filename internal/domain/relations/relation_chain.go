package relations

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	ChainTypeDependency  = "dependency_chain"
	ChainTypeCapability  = "capability_chain"
	ChainTypeIntegration = "integration_chain"
	ChainTypeComposition = "composition_chain"
	ChainTypeCausal      = "causal_chain"
	ChainTypeEvolution   = "evolution_chain"
	ChainTypeGeneric     = "generic_chain"

	// TransitivePrefix tags chains whose hops all share one relation type.
	TransitivePrefix = "transitive_"
)

const (
	ChainScopeIntraDocument = "intra_document"
	ChainScopeCrossDocument = "cross_document"
	// ChainScopeMultiDocument marks 3+ hops spanning 3+ documents, tracked
	// separately because they surface knowledge no single document states.
	ChainScopeMultiDocument = "multi_document"
)

// RelationChain is a derived multi-hop path over validated canonical
// relations. Chains are recomputed from scratch on every detection pass,
// never updated incrementally, so the ID is a deterministic hash of the
// ordered concept path plus chain type.
type RelationChain struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	TenantID string `gorm:"type:text;not null;index:idx_chain_tenant_type,priority:1" json:"tenant_id"`

	ChainType string `gorm:"type:text;not null;index:idx_chain_tenant_type,priority:2" json:"chain_type"`

	// ConceptPath is the ordered list of concept ids along the chain.
	ConceptPath datatypes.JSON `gorm:"type:jsonb;not null" json:"concept_path"`
	// RelationIDs are the canonical relation ids joining consecutive hops.
	RelationIDs datatypes.JSON `gorm:"type:jsonb;not null" json:"relation_ids"`

	HopCount int `gorm:"not null" json:"hop_count"`

	// Confidence is IDF-calibrated: hops through low-degree (rare) concepts
	// score higher than hops through hubs. Clamped to [0.35, 0.95].
	Confidence float64 `gorm:"not null" json:"confidence"`

	// Scope is intra_document, cross_document, or multi_document.
	Scope string `gorm:"type:text;not null;index" json:"scope"`

	MappingVersion string `gorm:"type:text;not null;index" json:"mapping_version"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (RelationChain) TableName() string { return "relation_chain" }
