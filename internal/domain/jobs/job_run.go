package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
)

const (
	KindAssertionIngest     = "assertion_ingest"
	KindRelationConsolidate = "relation_consolidate"
	KindChainDetect         = "chain_detect"
)

// JobRun is one execution of a background pipeline for one tenant. Workers
// claim runnable rows with FOR UPDATE SKIP LOCKED and heartbeat while they
// hold them, so a crashed worker's run becomes claimable again once the
// heartbeat goes stale.
type JobRun struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID string    `gorm:"type:text;not null;index" json:"tenant_id"`

	Kind   string `gorm:"type:text;not null;index" json:"kind"`
	Status string `gorm:"type:text;not null;index" json:"status"` // queued|running|succeeded|failed|canceled
	Stage  string `gorm:"type:text;not null;default:''" json:"stage"`

	Progress int `gorm:"not null;default:0" json:"progress"`
	Attempts int `gorm:"not null;default:0" json:"attempts"`

	Error       string     `gorm:"type:text" json:"error,omitempty"`
	LastErrorAt *time.Time `json:"last_error_at,omitempty"`

	LockedAt    *time.Time `gorm:"index" json:"locked_at,omitempty"`
	HeartbeatAt *time.Time `gorm:"index" json:"heartbeat_at,omitempty"`

	// Params carries pipeline input (e.g. mapping version override) and
	// Result the pipeline's final counters.
	Params datatypes.JSON `gorm:"type:jsonb" json:"params,omitempty"`
	Result datatypes.JSON `gorm:"type:jsonb" json:"result,omitempty"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now();index" json:"updated_at"`
}

func (JobRun) TableName() string { return "job_run" }
