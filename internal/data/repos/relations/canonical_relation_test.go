package relations

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fredpottier/kbgraph/internal/data/repos/testutil"
	reltypes "github.com/fredpottier/kbgraph/internal/domain/relations"
)

func TestCanonicalRelationRepoDegreeAndValidated(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := NewCanonicalRelationRepo(db, testutil.Logger(t))

	tenant := "t-" + uuid.NewString()
	a := testutil.SeedConcept(t, ctx, tx, tenant, "a")
	b := testutil.SeedConcept(t, ctx, tx, tenant, "b")
	c := testutil.SeedConcept(t, ctx, tx, tenant, "c")

	testutil.SeedCanonicalRelation(t, ctx, tx, tenant, a.ID, b.ID, reltypes.TypeRequires, reltypes.MaturityValidated)
	testutil.SeedCanonicalRelation(t, ctx, tx, tenant, b.ID, c.ID, reltypes.TypeRequires, reltypes.MaturityValidated)
	testutil.SeedCanonicalRelation(t, ctx, tx, tenant, a.ID, c.ID, reltypes.TypeUses, reltypes.MaturityCandidate)

	counts, err := repo.DegreeCounts(ctx, tx, tenant)
	if err != nil {
		t.Fatalf("DegreeCounts: %v", err)
	}
	degree := map[uuid.UUID]int{}
	for _, d := range counts {
		degree[d.ConceptID] = d.Degree
	}
	// Candidate rows do not contribute to degree.
	if degree[a.ID] != 1 || degree[b.ID] != 2 || degree[c.ID] != 1 {
		t.Fatalf("unexpected degrees: a=%d b=%d c=%d", degree[a.ID], degree[b.ID], degree[c.ID])
	}

	n, err := repo.CountValidated(ctx, tx, tenant)
	if err != nil {
		t.Fatalf("CountValidated: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 validated, got %d", n)
	}

	hops, err := repo.ListValidatedBySubjects(ctx, tx, tenant, []uuid.UUID{b.ID})
	if err != nil {
		t.Fatalf("ListValidatedBySubjects: %v", err)
	}
	if len(hops) != 1 || hops[0].SubjectConceptID != b.ID {
		t.Fatalf("unexpected second hops: %#v", hops)
	}
}

func TestCanonicalRelationRepoListFilterAndStale(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := NewCanonicalRelationRepo(db, testutil.Logger(t))

	tenant := "t-" + uuid.NewString()
	a := testutil.SeedConcept(t, ctx, tx, tenant, "a")
	b := testutil.SeedConcept(t, ctx, tx, tenant, "b")
	c := testutil.SeedConcept(t, ctx, tx, tenant, "c")

	kept := testutil.SeedCanonicalRelation(t, ctx, tx, tenant, a.ID, b.ID, reltypes.TypeRequires, reltypes.MaturityValidated)
	stale := testutil.SeedCanonicalRelation(t, ctx, tx, tenant, b.ID, c.ID, reltypes.TypeUses, reltypes.MaturityCandidate)
	if err := tx.Model(stale).Update("mapping_version", "v0").Error; err != nil {
		t.Fatalf("age stale row: %v", err)
	}

	rows, err := repo.ListByTenant(ctx, tx, tenant, ListFilter{RelationType: reltypes.TypeRequires}, uuid.Nil, 10)
	if err != nil {
		t.Fatalf("ListByTenant: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != kept.ID {
		t.Fatalf("relation_type filter failed: %#v", rows)
	}

	rows, err = repo.ListByTenant(ctx, tx, tenant, ListFilter{MinQuality: 0.95}, uuid.Nil, 10)
	if err != nil {
		t.Fatalf("ListByTenant min quality: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("min_quality filter failed: %#v", rows)
	}

	deleted, err := repo.DeleteStale(ctx, tx, tenant, "v1", time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("DeleteStale: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 stale row deleted, got %d", deleted)
	}
	if _, err := repo.GetByID(ctx, tx, kept.ID); err != nil {
		t.Fatalf("kept row missing after stale cleanup: %v", err)
	}

	// A matching version does not protect rows the current pass never
	// refreshed: anything older than the cutoff goes too.
	deleted, err = repo.DeleteStale(ctx, tx, tenant, "v1", time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("DeleteStale with future cutoff: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected the untouched row deleted, got %d", deleted)
	}
}
