package steps

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fredpottier/kbgraph/internal/data/repos"
	"github.com/fredpottier/kbgraph/internal/data/repos/testutil"
	"github.com/fredpottier/kbgraph/internal/domain"
	"github.com/fredpottier/kbgraph/internal/domain/relations"
)

const e2eEvidence = "The primary subsystem requires the shared scheduling component to admit work."

func e2eAssertion(t *testing.T, ctx context.Context, tx *gorm.DB, assertionRepo repos.RawAssertionRepo, tenantID string, subject, object uuid.UUID, predicateNorm, docID string, confidence float64, negated bool) {
	t.Helper()
	id := uuid.New()
	rows := []*domain.RawAssertion{{
		ID:               id,
		TenantID:         tenantID,
		Fingerprint:      fmt.Sprintf("fp-%s", id),
		SubjectConceptID: subject,
		ObjectConceptID:  object,
		PredicateRaw:     predicateNorm,
		PredicateNorm:    predicateNorm,
		EvidenceText:     e2eEvidence,
		Confidence:       confidence,
		Negated:          negated,
		SourceDocumentID: docID,
		SourceChunkID:    fmt.Sprintf("chunk-%s", id),
		ExtractorName:    "test-extractor",
		ExtractorVersion: "1",
		SchemaVersion:    "1",
		CreatedAt:        time.Now().UTC(),
	}}
	inserted, err := assertionRepo.Ingest(ctx, tx, rows)
	if err != nil {
		t.Fatalf("ingest assertion: %v", err)
	}
	if inserted != 1 {
		t.Fatalf("expected 1 inserted assertion, got %d", inserted)
	}
}

// Full pass over a small corpus: one pair that earns validation through
// document diversity, one weak single assertion, one pair dominated by
// negated evidence. Runs the pass twice to check the upserts are idempotent.
func TestRelationConsolidateEndToEnd(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	log := testutil.Logger(t)

	tenantID := "tenant-consolidate-e2e"
	a := testutil.SeedConcept(t, ctx, tx, tenantID, "subsystem-a")
	b := testutil.SeedConcept(t, ctx, tx, tenantID, "component-b")
	c := testutil.SeedConcept(t, ctx, tx, tenantID, "component-c")

	conceptRepo := repos.NewConceptRepo(tx, log)
	assertionRepo := repos.NewRawAssertionRepo(tx, log)
	relationRepo := repos.NewCanonicalRelationRepo(tx, log)

	// a->b requires: two documents, strong confidence.
	e2eAssertion(t, ctx, tx, assertionRepo, tenantID, a.ID, b.ID, "requires", "doc-1", 0.8, false)
	e2eAssertion(t, ctx, tx, assertionRepo, tenantID, a.ID, b.ID, "requires", "doc-2", 0.8, false)
	// a->c causes: one weak assertion.
	e2eAssertion(t, ctx, tx, assertionRepo, tenantID, a.ID, c.ID, "causes", "doc-1", 0.3, false)
	// b->c prevents: half the evidence is negated.
	e2eAssertion(t, ctx, tx, assertionRepo, tenantID, b.ID, c.ID, "prevents", "doc-1", 0.7, false)
	e2eAssertion(t, ctx, tx, assertionRepo, tenantID, b.ID, c.ID, "prevents", "doc-2", 0.7, true)

	requiresCtx := PredicateInContext("requires", "component", "component")
	causesCtx := PredicateInContext("causes", "component", "component")
	preventsCtx := PredicateInContext("prevents", "component", "component")

	emb := &fakeEmbedder{vectors: map[string][]float32{
		requiresCtx: {1, 0, 0},
		causesCtx:   {0, 1, 0},
		preventsCtx: {0, 0, 1},
	}}
	ai := &fakeLabeler{response: assignmentsResponse(map[string]string{
		ClusterIDFor("v1", []string{requiresCtx}): "REQUIRES",
		ClusterIDFor("v1", []string{causesCtx}):   "CAUSES",
		ClusterIDFor("v1", []string{preventsCtx}): "PREVENTS",
	})}

	deps := RelationConsolidateDeps{
		DB:            tx,
		Log:           log,
		Concepts:      conceptRepo,
		Assertions:    assertionRepo,
		Relations:     relationRepo,
		Classifier:    testClassifier(t, emb, ai, newFakeLabelCache()),
		Workers:       1, // single connection under the test transaction
		PageSize:      2, // force page boundaries through the group scan
		LinkBatchSize: 2,
	}
	in := RelationConsolidateInput{TenantID: tenantID, MappingVersion: "v1"}

	out, err := RelationConsolidate(ctx, deps, in)
	if err != nil {
		t.Fatalf("RelationConsolidate: %v", err)
	}
	if out.Usages != 3 || out.Groups != 3 || out.Relations != 3 {
		t.Fatalf("expected 3 usages/groups/relations, got %+v", out)
	}
	if out.Validated != 1 || out.Rejected != 1 || out.Conflicted != 1 {
		t.Fatalf("unexpected maturity counters: %+v", out)
	}
	if out.Linked != 5 {
		t.Fatalf("expected all 5 assertions linked, got %d", out.Linked)
	}

	checkMaturity := func(subject, object uuid.UUID, relType, want string) {
		t.Helper()
		row, err := relationRepo.GetByID(ctx, tx, CanonicalRelationID(tenantID, subject, object, relType))
		if err != nil {
			t.Fatalf("relation %s %s->%s: %v", relType, subject, object, err)
		}
		if row == nil {
			t.Fatalf("relation %s %s->%s not found", relType, subject, object)
		}
		if row.Maturity != want {
			t.Fatalf("relation %s: maturity %q, want %q", relType, row.Maturity, want)
		}
		if row.MappingVersion != "v1" {
			t.Fatalf("relation %s: mapping version %q", relType, row.MappingVersion)
		}
	}
	checkMaturity(a.ID, b.ID, "REQUIRES", relations.MaturityValidated)
	checkMaturity(a.ID, c.ID, "CAUSES", relations.MaturityRejected)
	checkMaturity(b.ID, c.ID, "PREVENTS", relations.MaturityConflicted)

	// The pair with document diversity must carry both docs in its sample.
	validated, err := relationRepo.GetByID(ctx, tx, CanonicalRelationID(tenantID, a.ID, b.ID, "REQUIRES"))
	if err != nil || validated == nil {
		t.Fatalf("fetch validated relation: %v", err)
	}
	if validated.AssertionCount != 2 || validated.DocumentCount != 2 {
		t.Fatalf("validated aggregates: count=%d docs=%d", validated.AssertionCount, validated.DocumentCount)
	}

	// Re-run under the same mapping version: deterministic ids make the
	// second pass a full overwrite, never a duplicate.
	out2, err := RelationConsolidate(ctx, deps, in)
	if err != nil {
		t.Fatalf("second RelationConsolidate: %v", err)
	}
	if out2.Relations != 3 || out2.StaleDeleted != 0 {
		t.Fatalf("second pass not idempotent: %+v", out2)
	}
	var total int64
	if err := tx.WithContext(ctx).Model(&domain.CanonicalRelation{}).Where("tenant_id = ?", tenantID).Count(&total).Error; err != nil {
		t.Fatalf("count relations: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected 3 canonical relations after rerun, got %d", total)
	}
}

// A pass whose labeler is down degrades every group to UNKNOWN. The next pass
// under the same mapping version must move the links to the real relation and
// drop the orphan UNKNOWN row.
func TestRelationConsolidateRecoversFromDegradedPass(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	log := testutil.Logger(t)

	tenantID := "tenant-consolidate-recovery"
	a := testutil.SeedConcept(t, ctx, tx, tenantID, "subsystem-a")
	b := testutil.SeedConcept(t, ctx, tx, tenantID, "component-b")

	conceptRepo := repos.NewConceptRepo(tx, log)
	assertionRepo := repos.NewRawAssertionRepo(tx, log)
	relationRepo := repos.NewCanonicalRelationRepo(tx, log)

	e2eAssertion(t, ctx, tx, assertionRepo, tenantID, a.ID, b.ID, "requires", "doc-1", 0.8, false)
	e2eAssertion(t, ctx, tx, assertionRepo, tenantID, a.ID, b.ID, "requires", "doc-2", 0.8, false)

	requiresCtx := PredicateInContext("requires", "component", "component")
	emb := &fakeEmbedder{vectors: map[string][]float32{requiresCtx: {1, 0, 0}}}

	deps := RelationConsolidateDeps{
		DB:         tx,
		Log:        log,
		Concepts:   conceptRepo,
		Assertions: assertionRepo,
		Relations:  relationRepo,
		Classifier: testClassifier(t, emb, &fakeLabeler{err: fmt.Errorf("model down")}, newFakeLabelCache()),
		Workers:    1,
	}
	in := RelationConsolidateInput{TenantID: tenantID, MappingVersion: "v1"}

	out, err := RelationConsolidate(ctx, deps, in)
	if err != nil {
		t.Fatalf("degraded RelationConsolidate: %v", err)
	}
	if out.DegradedGroups != 1 {
		t.Fatalf("expected 1 degraded group, got %+v", out)
	}
	unknownID := CanonicalRelationID(tenantID, a.ID, b.ID, relations.TypeUnknown)
	if row, err := relationRepo.GetByID(ctx, tx, unknownID); err != nil || row == nil {
		t.Fatalf("degraded pass left no UNKNOWN relation: row=%v err=%v", row, err)
	}

	// Same mapping version, labeler back up.
	deps.Classifier = testClassifier(t, emb, &fakeLabeler{response: assignmentsResponse(map[string]string{
		ClusterIDFor("v1", []string{requiresCtx}): "REQUIRES",
	})}, newFakeLabelCache())

	out2, err := RelationConsolidate(ctx, deps, in)
	if err != nil {
		t.Fatalf("recovery RelationConsolidate: %v", err)
	}
	if out2.DegradedGroups != 0 || out2.Linked != 2 {
		t.Fatalf("recovery pass counters: %+v", out2)
	}
	if out2.StaleDeleted != 1 {
		t.Fatalf("expected the orphan UNKNOWN relation dropped, got %+v", out2)
	}
	if row, err := relationRepo.GetByID(ctx, tx, unknownID); err != nil || row != nil {
		t.Fatalf("UNKNOWN relation survived recovery: row=%v err=%v", row, err)
	}
	linked, err := assertionRepo.ListByCanonicalID(ctx, tx, tenantID, CanonicalRelationID(tenantID, a.ID, b.ID, "REQUIRES"), uuid.Nil, 10)
	if err != nil {
		t.Fatalf("ListByCanonicalID: %v", err)
	}
	if len(linked) != 2 {
		t.Fatalf("expected both assertions on the recovered relation, got %d", len(linked))
	}
	remaining, err := assertionRepo.ListUnlinkedPage(ctx, tx, tenantID, uuid.Nil, 10)
	if err != nil {
		t.Fatalf("ListUnlinkedPage: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected no unlinked assertions, got %d", len(remaining))
	}
}
