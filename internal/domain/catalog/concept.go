package catalog

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Concept is a resolved catalog entry. Concepts arrive pre-resolved from the
// upstream catalog service; this engine never creates or merges them beyond
// upserting the rows it is handed alongside an extraction batch.
type Concept struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	TenantID string `gorm:"type:text;not null;index;index:idx_concept_tenant_key,unique,priority:1" json:"tenant_id"`

	// Key is the stable external identifier assigned by the resolution service.
	Key string `gorm:"type:text;not null;index:idx_concept_tenant_key,unique,priority:2" json:"key"`

	Name    string         `gorm:"type:text;not null" json:"name"`
	Type    string         `gorm:"type:text;not null;default:'unknown'" json:"type"`
	Aliases datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"aliases"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now();index" json:"updated_at"`
}

func (Concept) TableName() string { return "concept" }
