package jobs

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fredpottier/kbgraph/internal/domain"
	"github.com/fredpottier/kbgraph/internal/pkg/dbctx"
	"github.com/fredpottier/kbgraph/internal/platform/logger"
)

type JobRunEventRepo interface {
	Create(dbc dbctx.Context, rows []*domain.JobRunEvent) error
	ListByRunID(dbc dbctx.Context, runID uuid.UUID, limit int) ([]*domain.JobRunEvent, error)
}

type jobRunEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRunEventRepo(db *gorm.DB, baseLog *logger.Logger) JobRunEventRepo {
	return &jobRunEventRepo{db: db, log: baseLog.With("repo", "JobRunEventRepo")}
}

func (r *jobRunEventRepo) Create(dbc dbctx.Context, rows []*domain.JobRunEvent) error {
	if len(rows) == 0 {
		return nil
	}
	return dbc.Session(r.db).Create(&rows).Error
}

func (r *jobRunEventRepo) ListByRunID(dbc dbctx.Context, runID uuid.UUID, limit int) ([]*domain.JobRunEvent, error) {
	var out []*domain.JobRunEvent
	if runID == uuid.Nil {
		return out, nil
	}
	if limit <= 0 {
		limit = 200
	}
	if err := dbc.Session(r.db).
		Where("run_id = ?", runID).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
