package catalog

import (
	"time"

	"github.com/google/uuid"
)

const (
	MentionStatusPending  = "pending"
	MentionStatusPromoted = "promoted"
	MentionStatusRejected = "rejected"
)

// UnresolvedMention is a textual mention the extractor could not resolve to
// any catalog concept. It is a feedback channel for improving the catalog,
// not part of the knowledge graph proper. Repeat sightings bump Occurrences.
type UnresolvedMention struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	TenantID string `gorm:"type:text;not null;index;index:idx_unresolved_tenant_mention,unique,priority:1" json:"tenant_id"`

	// MentionNorm is the lowercased, whitespace-collapsed mention used for dedup.
	MentionNorm string `gorm:"type:text;not null;index:idx_unresolved_tenant_mention,unique,priority:2" json:"mention_norm"`

	Mention       string `gorm:"type:text;not null" json:"mention"`
	Context       string `gorm:"type:text" json:"context,omitempty"`
	SuggestedType string `gorm:"type:text" json:"suggested_type,omitempty"`

	Occurrences int    `gorm:"not null;default:1" json:"occurrences"`
	Status      string `gorm:"type:text;not null;default:'pending';index" json:"status"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now();index" json:"updated_at"`
}

func (UnresolvedMention) TableName() string { return "unresolved_mention" }
