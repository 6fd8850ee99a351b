package relations

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fredpottier/kbgraph/internal/domain"
	"github.com/fredpottier/kbgraph/internal/platform/logger"
)

type ClusterLabelRepo interface {
	// GetByClusterIDs loads cached labels for (tenant, mappingVersion). Only
	// cache misses go back to the classifier.
	GetByClusterIDs(ctx context.Context, tx *gorm.DB, tenantID, mappingVersion string, clusterIDs []string) ([]*domain.PredicateClusterLabel, error)

	UpsertBatch(ctx context.Context, tx *gorm.DB, rows []*domain.PredicateClusterLabel) error
}

type clusterLabelRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewClusterLabelRepo(db *gorm.DB, baseLog *logger.Logger) ClusterLabelRepo {
	return &clusterLabelRepo{db: db, log: baseLog.With("repo", "ClusterLabelRepo")}
}

func (r *clusterLabelRepo) GetByClusterIDs(ctx context.Context, tx *gorm.DB, tenantID, mappingVersion string, clusterIDs []string) ([]*domain.PredicateClusterLabel, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*domain.PredicateClusterLabel
	if tenantID == "" || mappingVersion == "" || len(clusterIDs) == 0 {
		return out, nil
	}
	if err := t.WithContext(ctx).
		Where("tenant_id = ? AND mapping_version = ? AND cluster_id IN ?", tenantID, mappingVersion, clusterIDs).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *clusterLabelRepo) UpsertBatch(ctx context.Context, tx *gorm.DB, rows []*domain.PredicateClusterLabel) error {
	t := tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return nil
	}
	return t.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "mapping_version"}, {Name: "cluster_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"relation_type", "confidence", "members"}),
		}).
		Create(&rows).Error
}
