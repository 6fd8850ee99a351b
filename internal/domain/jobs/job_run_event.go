package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// JobRunEvent is an append-only progress record emitted by pipelines.
// Clients polling GET /jobs/:id read the run row; the events exist for
// operator forensics after a failure.
type JobRunEvent struct {
	ID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RunID uuid.UUID `gorm:"type:uuid;not null;index" json:"run_id"`

	Stage    string         `gorm:"type:text;not null" json:"stage"`
	Progress int            `gorm:"not null;default:0" json:"progress"`
	Message  string         `gorm:"type:text" json:"message,omitempty"`
	Detail   datatypes.JSON `gorm:"type:jsonb" json:"detail,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (JobRunEvent) TableName() string { return "job_run_event" }
