package relations

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fredpottier/kbgraph/internal/domain"
	"github.com/fredpottier/kbgraph/internal/platform/logger"
)

// ChainFilter narrows the chain listing API. Zero values mean no filter.
type ChainFilter struct {
	ChainType     string
	Scope         string
	MinConfidence float64
	MinHops       int
}

type RelationChainRepo interface {
	// CreateBatch inserts detected chains, ignoring ids already present.
	// Chains are content-addressed, so a rerun over unchanged relations
	// produces only conflicts.
	CreateBatch(ctx context.Context, tx *gorm.DB, rows []*domain.RelationChain) (int64, error)

	// DeleteByTenant drops every chain for the tenant. Detection always
	// rebuilds from scratch.
	DeleteByTenant(ctx context.Context, tx *gorm.DB, tenantID string) (int64, error)

	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.RelationChain, error)
	ListByTenant(ctx context.Context, tx *gorm.DB, tenantID string, f ChainFilter, afterID uuid.UUID, limit int) ([]*domain.RelationChain, error)
	CountByTenant(ctx context.Context, tx *gorm.DB, tenantID string) (int64, error)
}

type relationChainRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRelationChainRepo(db *gorm.DB, baseLog *logger.Logger) RelationChainRepo {
	return &relationChainRepo{db: db, log: baseLog.With("repo", "RelationChainRepo")}
}

func (r *relationChainRepo) CreateBatch(ctx context.Context, tx *gorm.DB, rows []*domain.RelationChain) (int64, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return 0, nil
	}
	res := t.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).
		CreateInBatches(&rows, 200)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *relationChainRepo) DeleteByTenant(ctx context.Context, tx *gorm.DB, tenantID string) (int64, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if tenantID == "" {
		return 0, nil
	}
	res := t.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Delete(&domain.RelationChain{})
	return res.RowsAffected, res.Error
}

func (r *relationChainRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.RelationChain, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var row domain.RelationChain
	err := t.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *relationChainRepo) ListByTenant(ctx context.Context, tx *gorm.DB, tenantID string, f ChainFilter, afterID uuid.UUID, limit int) ([]*domain.RelationChain, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*domain.RelationChain
	if tenantID == "" {
		return out, nil
	}
	if limit <= 0 {
		limit = 100
	}
	q := t.WithContext(ctx).Where("tenant_id = ? AND id > ?", tenantID, afterID)
	if f.ChainType != "" {
		q = q.Where("chain_type = ?", f.ChainType)
	}
	if f.Scope != "" {
		q = q.Where("scope = ?", f.Scope)
	}
	if f.MinConfidence > 0 {
		q = q.Where("confidence >= ?", f.MinConfidence)
	}
	if f.MinHops > 0 {
		q = q.Where("hop_count >= ?", f.MinHops)
	}
	if err := q.Order("id ASC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *relationChainRepo) CountByTenant(ctx context.Context, tx *gorm.DB, tenantID string) (int64, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var n int64
	if err := t.WithContext(ctx).
		Model(&domain.RelationChain{}).
		Where("tenant_id = ?", tenantID).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
