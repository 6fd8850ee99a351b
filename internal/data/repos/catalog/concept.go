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

type ConceptRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*domain.Concept) ([]*domain.Concept, error)

	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Concept, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.Concept, error)
	GetByTenantAndKeys(ctx context.Context, tx *gorm.DB, tenantID string, keys []string) ([]*domain.Concept, error)

	// ExistingIDs filters ids down to those present for the tenant. Catalog
	// validation is a set membership check, not a row fetch.
	ExistingIDs(ctx context.Context, tx *gorm.DB, tenantID string, ids []uuid.UUID) (map[uuid.UUID]bool, error)

	UpsertByTenantAndKey(ctx context.Context, tx *gorm.DB, row *domain.Concept) error
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
}

type conceptRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConceptRepo(db *gorm.DB, baseLog *logger.Logger) ConceptRepo {
	return &conceptRepo{db: db, log: baseLog.With("repo", "ConceptRepo")}
}

func (r *conceptRepo) Create(ctx context.Context, tx *gorm.DB, rows []*domain.Concept) ([]*domain.Concept, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*domain.Concept{}, nil
	}
	if err := t.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *conceptRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.Concept, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*domain.Concept
	if len(ids) == 0 {
		return out, nil
	}
	if err := t.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *conceptRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Concept, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	rows, err := r.GetByIDs(ctx, tx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *conceptRepo) GetByTenantAndKeys(ctx context.Context, tx *gorm.DB, tenantID string, keys []string) ([]*domain.Concept, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*domain.Concept
	if tenantID == "" || len(keys) == 0 {
		return out, nil
	}
	if err := t.WithContext(ctx).
		Where("tenant_id = ? AND key IN ?", tenantID, keys).
		Order("key ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *conceptRepo) ExistingIDs(ctx context.Context, tx *gorm.DB, tenantID string, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	out := map[uuid.UUID]bool{}
	if tenantID == "" || len(ids) == 0 {
		return out, nil
	}
	var found []uuid.UUID
	if err := t.WithContext(ctx).
		Model(&domain.Concept{}).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Pluck("id", &found).Error; err != nil {
		return nil, err
	}
	for _, id := range found {
		out[id] = true
	}
	return out, nil
}

func (r *conceptRepo) UpsertByTenantAndKey(ctx context.Context, tx *gorm.DB, row *domain.Concept) error {
	t := tx
	if t == nil {
		t = r.db
	}
	if row == nil || row.TenantID == "" || row.Key == "" {
		return nil
	}
	row.UpdatedAt = time.Now().UTC()
	return t.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "type", "aliases", "updated_at"}),
		}).
		Create(row).Error
}

func (r *conceptRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	t := tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return t.WithContext(ctx).
		Model(&domain.Concept{}).
		Where("id = ?", id).
		Updates(updates).Error
}
