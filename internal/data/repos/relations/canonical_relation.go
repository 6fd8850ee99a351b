package relations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fredpottier/kbgraph/internal/domain"
	"github.com/fredpottier/kbgraph/internal/platform/logger"
)

// DegreeCount is how many validated relations touch one concept, in either
// direction. Chain detection uses it for hub exclusion and confidence.
type DegreeCount struct {
	ConceptID uuid.UUID
	Degree    int
}

// ListFilter narrows the relation listing API. Zero values mean no filter.
type ListFilter struct {
	RelationType     string
	Maturity         string
	SubjectConceptID uuid.UUID
	ObjectConceptID  uuid.UUID
	MinQuality       float64
}

type CanonicalRelationRepo interface {
	// Upsert writes the full aggregate row. The deterministic id makes this
	// an insert on first consolidation and an overwrite on every later one.
	Upsert(ctx context.Context, tx *gorm.DB, row *domain.CanonicalRelation) error

	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.CanonicalRelation, error)
	ListByTenant(ctx context.Context, tx *gorm.DB, tenantID string, f ListFilter, afterID uuid.UUID, limit int) ([]*domain.CanonicalRelation, error)

	// ListValidatedBySubjects fetches validated relations whose subject is in
	// the given frontier, for one chain expansion step.
	ListValidatedBySubjects(ctx context.Context, tx *gorm.DB, tenantID string, subjectIDs []uuid.UUID) ([]*domain.CanonicalRelation, error)

	// DegreeCounts returns the validated-relation degree of every concept in
	// the tenant.
	DegreeCounts(ctx context.Context, tx *gorm.DB, tenantID string) ([]DegreeCount, error)

	CountValidated(ctx context.Context, tx *gorm.DB, tenantID string) (int64, error)

	// DeleteStale removes relations written under a different mapping
	// version, or not refreshed since the given instant. Called after a full
	// reconsolidation so retyped or disappeared groups do not leave orphan
	// rows behind.
	DeleteStale(ctx context.Context, tx *gorm.DB, tenantID, keepVersion string, before time.Time) (int64, error)

	// DeleteByTenant wipes the tenant's relations for a purge-first rebuild.
	DeleteByTenant(ctx context.Context, tx *gorm.DB, tenantID string) (int64, error)
}

type canonicalRelationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCanonicalRelationRepo(db *gorm.DB, baseLog *logger.Logger) CanonicalRelationRepo {
	return &canonicalRelationRepo{db: db, log: baseLog.With("repo", "CanonicalRelationRepo")}
}

func (r *canonicalRelationRepo) Upsert(ctx context.Context, tx *gorm.DB, row *domain.CanonicalRelation) error {
	t := tx
	if t == nil {
		t = r.db
	}
	if row == nil || row.ID == uuid.Nil {
		return nil
	}
	row.UpdatedAt = time.Now().UTC()
	return t.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"assertion_count", "document_count", "chunk_count",
				"confidence_mean", "confidence_p50",
				"quality_score", "negated_ratio", "maturity",
				"first_seen_at", "last_seen_at",
				"top_predicates", "cluster_ids", "cluster_confidence",
				"evidence_sample", "source_document_ids",
				"mapping_version", "updated_at",
			}),
		}).
		Create(row).Error
}

func (r *canonicalRelationRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.CanonicalRelation, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var row domain.CanonicalRelation
	err := t.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *canonicalRelationRepo) ListByTenant(ctx context.Context, tx *gorm.DB, tenantID string, f ListFilter, afterID uuid.UUID, limit int) ([]*domain.CanonicalRelation, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*domain.CanonicalRelation
	if tenantID == "" {
		return out, nil
	}
	if limit <= 0 {
		limit = 100
	}
	q := t.WithContext(ctx).Where("tenant_id = ? AND id > ?", tenantID, afterID)
	if f.RelationType != "" {
		q = q.Where("relation_type = ?", f.RelationType)
	}
	if f.Maturity != "" {
		q = q.Where("maturity = ?", f.Maturity)
	}
	if f.SubjectConceptID != uuid.Nil {
		q = q.Where("subject_concept_id = ?", f.SubjectConceptID)
	}
	if f.ObjectConceptID != uuid.Nil {
		q = q.Where("object_concept_id = ?", f.ObjectConceptID)
	}
	if f.MinQuality > 0 {
		q = q.Where("quality_score >= ?", f.MinQuality)
	}
	if err := q.Order("id ASC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *canonicalRelationRepo) ListValidatedBySubjects(ctx context.Context, tx *gorm.DB, tenantID string, subjectIDs []uuid.UUID) ([]*domain.CanonicalRelation, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*domain.CanonicalRelation
	if tenantID == "" || len(subjectIDs) == 0 {
		return out, nil
	}
	if err := t.WithContext(ctx).
		Where("tenant_id = ? AND maturity = ? AND subject_concept_id IN ?",
			tenantID, "validated", subjectIDs).
		Order("subject_concept_id ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *canonicalRelationRepo) DegreeCounts(ctx context.Context, tx *gorm.DB, tenantID string) ([]DegreeCount, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []DegreeCount
	if tenantID == "" {
		return out, nil
	}
	if err := t.WithContext(ctx).Raw(`
		SELECT concept_id, COUNT(*) AS degree
		FROM (
			SELECT subject_concept_id AS concept_id FROM canonical_relation
			WHERE tenant_id = ? AND maturity = 'validated'
			UNION ALL
			SELECT object_concept_id AS concept_id FROM canonical_relation
			WHERE tenant_id = ? AND maturity = 'validated'
		) endpoints
		GROUP BY concept_id
	`, tenantID, tenantID).Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *canonicalRelationRepo) CountValidated(ctx context.Context, tx *gorm.DB, tenantID string) (int64, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var n int64
	if err := t.WithContext(ctx).
		Model(&domain.CanonicalRelation{}).
		Where("tenant_id = ? AND maturity = ?", tenantID, "validated").
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *canonicalRelationRepo) DeleteStale(ctx context.Context, tx *gorm.DB, tenantID, keepVersion string, before time.Time) (int64, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if tenantID == "" || keepVersion == "" {
		return 0, nil
	}
	res := t.WithContext(ctx).
		Where("tenant_id = ? AND (mapping_version <> ? OR updated_at < ?)", tenantID, keepVersion, before).
		Delete(&domain.CanonicalRelation{})
	return res.RowsAffected, res.Error
}

func (r *canonicalRelationRepo) DeleteByTenant(ctx context.Context, tx *gorm.DB, tenantID string) (int64, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if tenantID == "" {
		return 0, nil
	}
	res := t.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Delete(&domain.CanonicalRelation{})
	return res.RowsAffected, res.Error
}
