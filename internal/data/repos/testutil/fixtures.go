package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fredpottier/kbgraph/internal/domain"
)

func SeedConcept(tb testing.TB, ctx context.Context, tx *gorm.DB, tenantID, key string) *domain.Concept {
	tb.Helper()
	c := &domain.Concept{
		ID:       uuid.New(),
		TenantID: tenantID,
		Key:      key,
		Name:     key,
		Type:     "component",
		Aliases:  datatypes.JSON([]byte("[]")),
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed concept: %v", err)
	}
	return c
}

func SeedAssertion(tb testing.TB, ctx context.Context, tx *gorm.DB, tenantID string, subjectID, objectID uuid.UUID, predicateNorm string, confidence float64) *domain.RawAssertion {
	tb.Helper()
	id := uuid.New()
	a := &domain.RawAssertion{
		ID:               id,
		TenantID:         tenantID,
		Fingerprint:      fmt.Sprintf("fp-%s", id),
		SubjectConceptID: subjectID,
		ObjectConceptID:  objectID,
		PredicateRaw:     predicateNorm,
		PredicateNorm:    predicateNorm,
		EvidenceText:     "The subsystem depends on the shared component for request routing.",
		Confidence:       confidence,
		SourceDocumentID: "doc-1",
		SourceChunkID:    fmt.Sprintf("chunk-%s", id),
		ExtractorName:    "test-extractor",
		ExtractorVersion: "1",
		SchemaVersion:    "1",
		CreatedAt:        time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(a).Error; err != nil {
		tb.Fatalf("seed assertion: %v", err)
	}
	return a
}

func SeedCanonicalRelation(tb testing.TB, ctx context.Context, tx *gorm.DB, tenantID string, subjectID, objectID uuid.UUID, relationType, maturity string) *domain.CanonicalRelation {
	tb.Helper()
	now := time.Now().UTC()
	r := &domain.CanonicalRelation{
		ID:                uuid.New(),
		TenantID:          tenantID,
		SubjectConceptID:  subjectID,
		ObjectConceptID:   objectID,
		RelationType:      relationType,
		AssertionCount:    3,
		DocumentCount:     2,
		ChunkCount:        3,
		ConfidenceMean:    0.8,
		ConfidenceP50:     0.8,
		QualityScore:      0.9,
		Maturity:          maturity,
		FirstSeenAt:       now,
		LastSeenAt:        now,
		TopPredicates:     datatypes.JSON([]byte(`["depends on"]`)),
		ClusterIDs:        datatypes.JSON([]byte(`[]`)),
		SourceDocumentIDs: datatypes.JSON([]byte(`["doc-1"]`)),
		MappingVersion:    "v1",
	}
	if err := tx.WithContext(ctx).Create(r).Error; err != nil {
		tb.Fatalf("seed canonical relation: %v", err)
	}
	return r
}
