package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fredpottier/kbgraph/internal/domain"
	"github.com/fredpottier/kbgraph/internal/platform/logger"
)

type UnresolvedMentionRepo interface {
	// Record upserts by (tenant, normalized mention), bumping the occurrence
	// counter when the mention was already seen.
	Record(ctx context.Context, tx *gorm.DB, row *domain.UnresolvedMention) error

	ListByTenant(ctx context.Context, tx *gorm.DB, tenantID, status string, limit int) ([]*domain.UnresolvedMention, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status string) error
}

type unresolvedMentionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUnresolvedMentionRepo(db *gorm.DB, baseLog *logger.Logger) UnresolvedMentionRepo {
	return &unresolvedMentionRepo{db: db, log: baseLog.With("repo", "UnresolvedMentionRepo")}
}

func (r *unresolvedMentionRepo) Record(ctx context.Context, tx *gorm.DB, row *domain.UnresolvedMention) error {
	t := tx
	if t == nil {
		t = r.db
	}
	if row == nil || row.TenantID == "" || row.MentionNorm == "" {
		return nil
	}
	row.UpdatedAt = time.Now().UTC()
	return t.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}, {Name: "mention_norm"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"occurrences": gorm.Expr("unresolved_mention.occurrences + 1"),
				"context":     row.Context,
				"updated_at":  row.UpdatedAt,
			}),
		}).
		Create(row).Error
}

func (r *unresolvedMentionRepo) ListByTenant(ctx context.Context, tx *gorm.DB, tenantID, status string, limit int) ([]*domain.UnresolvedMention, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*domain.UnresolvedMention
	if tenantID == "" {
		return out, nil
	}
	if limit <= 0 {
		limit = 100
	}
	q := t.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Order("occurrences DESC, mention_norm ASC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *unresolvedMentionRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status string) error {
	t := tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil || status == "" {
		return nil
	}
	return t.WithContext(ctx).
		Model(&domain.UnresolvedMention{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now().UTC()}).Error
}
