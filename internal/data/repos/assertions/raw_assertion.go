package assertions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fredpottier/kbgraph/internal/domain"
	"github.com/fredpottier/kbgraph/internal/platform/logger"
)

// GroupKey identifies one level A consolidation group. Keyset pagination
// orders by (subject, object, predicate_norm), so every predicate of a
// (subject, object) pair is contiguous in the scan.
type GroupKey struct {
	SubjectConceptID uuid.UUID
	ObjectConceptID  uuid.UUID
	PredicateNorm    string
}

// PairStats are the scalar aggregates over every assertion of one
// (subject, object) pair restricted to a set of predicate norms. Computed in
// SQL so consolidation never loads a whole pair into memory.
type PairStats struct {
	AssertionCount int
	DocumentCount  int
	ChunkCount     int
	ConfidenceMean float64
	ConfidenceP50  float64
	NegatedRatio   float64
	FirstSeenAt    time.Time
	LastSeenAt     time.Time
}

// PredicateCount is one distinct normalized predicate and how often it occurs.
type PredicateCount struct {
	PredicateNorm string
	Count         int
}

type RawAssertionRepo interface {
	// Ingest appends rows, silently skipping fingerprints already stored for
	// the tenant. Returns how many rows were actually inserted.
	Ingest(ctx context.Context, tx *gorm.DB, rows []*domain.RawAssertion) (int64, error)

	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.RawAssertion, error)
	CountByTenant(ctx context.Context, tx *gorm.DB, tenantID string) (int64, error)

	DistinctPredicateNorms(ctx context.Context, tx *gorm.DB, tenantID string) ([]PredicateCount, error)

	// ListGroupPage returns the next page of level A group keys strictly
	// after the cursor, in keyset order. A nil cursor starts from the top.
	ListGroupPage(ctx context.Context, tx *gorm.DB, tenantID string, after *GroupKey, limit int) ([]GroupKey, error)

	// ListGroupRows loads the assertions of one group, highest confidence
	// first, capped so one pathological group cannot blow memory.
	ListGroupRows(ctx context.Context, tx *gorm.DB, tenantID string, key GroupKey, limit int) ([]*domain.RawAssertion, error)

	PairStatsForNorms(ctx context.Context, tx *gorm.DB, tenantID string, subjectID, objectID uuid.UUID, norms []string) (*PairStats, error)

	// ListUnlinkedPage pages assertions not yet linked to a canonical
	// relation, by ascending id. Only the grouping columns are selected.
	ListUnlinkedPage(ctx context.Context, tx *gorm.DB, tenantID string, afterID uuid.UUID, limit int) ([]*domain.RawAssertion, error)

	LinkToCanonical(ctx context.Context, tx *gorm.DB, tenantID string, ids []uuid.UUID, canonicalID uuid.UUID, mappingVersion string) error

	// UnlinkAll clears every canonical link for the tenant so a
	// consolidation pass relinks everything from scratch.
	UnlinkAll(ctx context.Context, tx *gorm.DB, tenantID string) (int64, error)

	ListByCanonicalID(ctx context.Context, tx *gorm.DB, tenantID string, canonicalID uuid.UUID, afterID uuid.UUID, limit int) ([]*domain.RawAssertion, error)
}

type rawAssertionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRawAssertionRepo(db *gorm.DB, baseLog *logger.Logger) RawAssertionRepo {
	return &rawAssertionRepo{db: db, log: baseLog.With("repo", "RawAssertionRepo")}
}

func (r *rawAssertionRepo) Ingest(ctx context.Context, tx *gorm.DB, rows []*domain.RawAssertion) (int64, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return 0, nil
	}
	res := t.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "fingerprint"}},
			DoNothing: true,
		}).
		Create(&rows)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *rawAssertionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.RawAssertion, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var row domain.RawAssertion
	err := t.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *rawAssertionRepo) CountByTenant(ctx context.Context, tx *gorm.DB, tenantID string) (int64, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var n int64
	if err := t.WithContext(ctx).
		Model(&domain.RawAssertion{}).
		Where("tenant_id = ?", tenantID).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *rawAssertionRepo) DistinctPredicateNorms(ctx context.Context, tx *gorm.DB, tenantID string) ([]PredicateCount, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []PredicateCount
	if tenantID == "" {
		return out, nil
	}
	if err := t.WithContext(ctx).Raw(`
		SELECT predicate_norm, COUNT(*) AS count
		FROM raw_assertion
		WHERE tenant_id = ?
		GROUP BY predicate_norm
		ORDER BY predicate_norm ASC
	`, tenantID).Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *rawAssertionRepo) ListGroupPage(ctx context.Context, tx *gorm.DB, tenantID string, after *GroupKey, limit int) ([]GroupKey, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []GroupKey
	if tenantID == "" {
		return out, nil
	}
	if limit <= 0 {
		limit = 200
	}
	q := `
		SELECT subject_concept_id, object_concept_id, predicate_norm
		FROM raw_assertion
		WHERE tenant_id = ?`
	args := []interface{}{tenantID}
	if after != nil {
		q += ` AND (subject_concept_id, object_concept_id, predicate_norm) > (?, ?, ?)`
		args = append(args, after.SubjectConceptID, after.ObjectConceptID, after.PredicateNorm)
	}
	q += `
		GROUP BY subject_concept_id, object_concept_id, predicate_norm
		ORDER BY subject_concept_id, object_concept_id, predicate_norm
		LIMIT ?`
	args = append(args, limit)
	if err := t.WithContext(ctx).Raw(q, args...).Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *rawAssertionRepo) ListGroupRows(ctx context.Context, tx *gorm.DB, tenantID string, key GroupKey, limit int) ([]*domain.RawAssertion, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*domain.RawAssertion
	if tenantID == "" {
		return out, nil
	}
	if limit <= 0 {
		limit = 1000
	}
	if err := t.WithContext(ctx).
		Where("tenant_id = ? AND subject_concept_id = ? AND object_concept_id = ? AND predicate_norm = ?",
			tenantID, key.SubjectConceptID, key.ObjectConceptID, key.PredicateNorm).
		Order("confidence DESC, id ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *rawAssertionRepo) PairStatsForNorms(ctx context.Context, tx *gorm.DB, tenantID string, subjectID, objectID uuid.UUID, norms []string) (*PairStats, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if tenantID == "" || len(norms) == 0 {
		return &PairStats{}, nil
	}
	var out PairStats
	if err := t.WithContext(ctx).Raw(`
		SELECT
			COUNT(*)                                                     AS assertion_count,
			COUNT(DISTINCT source_document_id)                           AS document_count,
			COUNT(DISTINCT source_chunk_id)                              AS chunk_count,
			COALESCE(AVG(confidence), 0)                                 AS confidence_mean,
			COALESCE(PERCENTILE_CONT(0.5) WITHIN GROUP (ORDER BY confidence), 0) AS confidence_p50,
			COALESCE(AVG(CASE WHEN negated THEN 1.0 ELSE 0.0 END), 0)   AS negated_ratio,
			COALESCE(MIN(created_at), now())                             AS first_seen_at,
			COALESCE(MAX(created_at), now())                             AS last_seen_at
		FROM raw_assertion
		WHERE tenant_id = ? AND subject_concept_id = ? AND object_concept_id = ? AND predicate_norm IN ?
	`, tenantID, subjectID, objectID, norms).Scan(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *rawAssertionRepo) ListUnlinkedPage(ctx context.Context, tx *gorm.DB, tenantID string, afterID uuid.UUID, limit int) ([]*domain.RawAssertion, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*domain.RawAssertion
	if tenantID == "" {
		return out, nil
	}
	if limit <= 0 {
		limit = 500
	}
	if err := t.WithContext(ctx).
		Select("id", "subject_concept_id", "object_concept_id", "predicate_norm").
		Where("tenant_id = ? AND canonical_relation_id IS NULL AND id > ?", tenantID, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *rawAssertionRepo) LinkToCanonical(ctx context.Context, tx *gorm.DB, tenantID string, ids []uuid.UUID, canonicalID uuid.UUID, mappingVersion string) error {
	t := tx
	if t == nil {
		t = r.db
	}
	if tenantID == "" || len(ids) == 0 || canonicalID == uuid.Nil {
		return nil
	}
	return t.WithContext(ctx).
		Model(&domain.RawAssertion{}).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Updates(map[string]interface{}{
			"canonical_relation_id": canonicalID,
			"mapping_version":       mappingVersion,
		}).Error
}

func (r *rawAssertionRepo) UnlinkAll(ctx context.Context, tx *gorm.DB, tenantID string) (int64, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if tenantID == "" {
		return 0, nil
	}
	res := t.WithContext(ctx).
		Model(&domain.RawAssertion{}).
		Where("tenant_id = ? AND canonical_relation_id IS NOT NULL", tenantID).
		Updates(map[string]interface{}{
			"canonical_relation_id": nil,
			"mapping_version":       "",
		})
	return res.RowsAffected, res.Error
}

func (r *rawAssertionRepo) ListByCanonicalID(ctx context.Context, tx *gorm.DB, tenantID string, canonicalID uuid.UUID, afterID uuid.UUID, limit int) ([]*domain.RawAssertion, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*domain.RawAssertion
	if tenantID == "" || canonicalID == uuid.Nil {
		return out, nil
	}
	if limit <= 0 {
		limit = 100
	}
	if err := t.WithContext(ctx).
		Where("tenant_id = ? AND canonical_relation_id = ? AND id > ?", tenantID, canonicalID, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
