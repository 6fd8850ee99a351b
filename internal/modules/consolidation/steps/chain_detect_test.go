package steps

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/fredpottier/kbgraph/internal/data/repos"
	"github.com/fredpottier/kbgraph/internal/data/repos/testutil"
	"github.com/fredpottier/kbgraph/internal/domain"
	"github.com/fredpottier/kbgraph/internal/domain/relations"
)

func rel(relType string, docs ...string) *domain.CanonicalRelation {
	b, _ := json.Marshal(docs)
	return &domain.CanonicalRelation{
		ID:                uuid.New(),
		SubjectConceptID:  uuid.New(),
		ObjectConceptID:   uuid.New(),
		RelationType:      relType,
		SourceDocumentIDs: datatypes.JSON(b),
	}
}

func TestDeriveChainTypePairRules(t *testing.T) {
	cases := []struct {
		types []string
		want  string
	}{
		{[]string{"REQUIRES", "REQUIRES"}, relations.ChainTypeDependency},
		{[]string{"USES", "REQUIRES"}, relations.ChainTypeDependency},
		{[]string{"REQUIRES", "ENABLES"}, relations.ChainTypeCapability},
		{[]string{"USES", "INTEGRATES_WITH"}, relations.ChainTypeIntegration},
		{[]string{"PART_OF", "PART_OF", "PART_OF"}, relations.ChainTypeComposition},
		{[]string{"CAUSES", "PREVENTS"}, relations.ChainTypeCausal},
		{[]string{"PRECEDES", "REPLACES"}, relations.ChainTypeEvolution},
	}
	for _, c := range cases {
		hops := make([]*domain.CanonicalRelation, 0, len(c.types))
		for _, tt := range c.types {
			hops = append(hops, rel(tt))
		}
		if got := deriveChainType(hops); got != c.want {
			t.Fatalf("deriveChainType(%v) = %s, want %s", c.types, got, c.want)
		}
	}
}

func TestDeriveChainTypeTransitiveFallback(t *testing.T) {
	hops := []*domain.CanonicalRelation{rel("EXTENDS"), rel("EXTENDS")}
	if got := deriveChainType(hops); got != "transitive_extends" {
		t.Fatalf("same-type chain without a pair rule should be transitive, got %s", got)
	}
}

func TestDeriveChainTypeGenericFallback(t *testing.T) {
	if got := deriveChainType([]*domain.CanonicalRelation{rel("USES"), rel("CAUSES")}); got != relations.ChainTypeGeneric {
		t.Fatalf("mixed untabled types should be generic, got %s", got)
	}
	if got := deriveChainType([]*domain.CanonicalRelation{rel("UNKNOWN"), rel("UNKNOWN")}); got != relations.ChainTypeGeneric {
		t.Fatalf("UNKNOWN hops must never be transitive, got %s", got)
	}
}

func TestChainScope(t *testing.T) {
	intra := []*domain.CanonicalRelation{rel("USES", "d1"), rel("USES", "d1")}
	if got := chainScope(intra); got != relations.ChainScopeIntraDocument {
		t.Fatalf("single shared document should be intra_document, got %s", got)
	}

	// A hop evidenced across two documents is already cross-document
	// knowledge, even when one of them overlaps the other hop.
	overlap := []*domain.CanonicalRelation{rel("REQUIRES", "d1", "d2"), rel("ENABLES", "d2")}
	if got := chainScope(overlap); got != relations.ChainScopeCrossDocument {
		t.Fatalf("multi-document hop should be cross_document, got %s", got)
	}

	cross := []*domain.CanonicalRelation{rel("USES", "d1"), rel("USES", "d2")}
	if got := chainScope(cross); got != relations.ChainScopeCrossDocument {
		t.Fatalf("disjoint documents should be cross_document, got %s", got)
	}

	// Missing provenance can never claim single-document confinement.
	unknown := []*domain.CanonicalRelation{rel("USES", "d1"), rel("USES")}
	if got := chainScope(unknown); got != relations.ChainScopeCrossDocument {
		t.Fatalf("missing provenance should be cross_document, got %s", got)
	}

	multi := []*domain.CanonicalRelation{rel("USES", "d1"), rel("USES", "d2"), rel("USES", "d3")}
	if got := chainScope(multi); got != relations.ChainScopeMultiDocument {
		t.Fatalf("3 hops over 3 documents should be multi_document, got %s", got)
	}

	// 3 hops but only 2 documents stays cross_document.
	threeTwo := []*domain.CanonicalRelation{rel("USES", "d1"), rel("USES", "d2"), rel("USES", "d2")}
	if got := chainScope(threeTwo); got != relations.ChainScopeCrossDocument {
		t.Fatalf("3 hops over 2 documents should be cross_document, got %s", got)
	}
}

func TestDuplicateEvidence(t *testing.T) {
	a := rel("USES")
	b := rel("USES")
	a.EvidenceSample = "Service A uses Service B for routing."
	b.EvidenceSample = a.EvidenceSample
	if !duplicateEvidence(a, b) {
		t.Fatalf("byte-identical evidence not detected")
	}
	b.EvidenceSample = "Service B uses Service C for routing."
	if duplicateEvidence(a, b) {
		t.Fatalf("distinct evidence flagged as duplicate")
	}
	a.EvidenceSample = ""
	b.EvidenceSample = ""
	if duplicateEvidence(a, b) {
		t.Fatalf("empty evidence must never count as duplicate")
	}
}

func TestConceptPath(t *testing.T) {
	r1 := rel("USES")
	r2 := rel("USES")
	r2.SubjectConceptID = r1.ObjectConceptID
	path := conceptPath([]*domain.CanonicalRelation{r1, r2})
	if len(path) != 3 {
		t.Fatalf("expected 3 concepts for 2 hops, got %d", len(path))
	}
	if path[0] != r1.SubjectConceptID || path[1] != r1.ObjectConceptID || path[2] != r2.ObjectConceptID {
		t.Fatalf("path order wrong: %v", path)
	}
}

func TestUninformativeJoin(t *testing.T) {
	if !uninformativeJoin(rel(relations.TypeUnknown), rel(relations.TypeUnknown)) {
		t.Fatalf("two untyped hops must not join")
	}
	if uninformativeJoin(rel("REQUIRES"), rel(relations.TypeUnknown)) {
		t.Fatalf("a typed hop keeps the join")
	}
	if uninformativeJoin(rel("REQUIRES"), rel("USES")) {
		t.Fatalf("typed hops flagged as uninformative")
	}
}

// Full detection over a seeded relation set: a clean two-hop dependency chain
// comes out, joins through a high-degree hub do not, and a rerun over the
// unchanged snapshot reproduces the identical chain set.
func TestChainDetectEndToEnd(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	log := testutil.Logger(t)

	tenantID := "tenant-chains-e2e"
	a := testutil.SeedConcept(t, ctx, tx, tenantID, "a")
	b := testutil.SeedConcept(t, ctx, tx, tenantID, "b")
	c := testutil.SeedConcept(t, ctx, tx, tenantID, "c")
	hub := testutil.SeedConcept(t, ctx, tx, tenantID, "hub")
	x1 := testutil.SeedConcept(t, ctx, tx, tenantID, "x1")
	x2 := testutil.SeedConcept(t, ctx, tx, tenantID, "x2")
	y1 := testutil.SeedConcept(t, ctx, tx, tenantID, "y1")
	y2 := testutil.SeedConcept(t, ctx, tx, tenantID, "y2")

	rab := testutil.SeedCanonicalRelation(t, ctx, tx, tenantID, a.ID, b.ID, "REQUIRES", relations.MaturityValidated)
	rbc := testutil.SeedCanonicalRelation(t, ctx, tx, tenantID, b.ID, c.ID, "REQUIRES", relations.MaturityValidated)
	// The hub touches four validated relations, above the configured cap,
	// so nothing may join through it.
	testutil.SeedCanonicalRelation(t, ctx, tx, tenantID, x1.ID, hub.ID, "USES", relations.MaturityValidated)
	testutil.SeedCanonicalRelation(t, ctx, tx, tenantID, x2.ID, hub.ID, "USES", relations.MaturityValidated)
	testutil.SeedCanonicalRelation(t, ctx, tx, tenantID, hub.ID, y1.ID, "USES", relations.MaturityValidated)
	testutil.SeedCanonicalRelation(t, ctx, tx, tenantID, hub.ID, y2.ID, "USES", relations.MaturityValidated)

	deps := ChainDetectDeps{
		DB:           tx,
		Log:          log,
		Relations:    repos.NewCanonicalRelationRepo(tx, log),
		Chains:       repos.NewRelationChainRepo(tx, log),
		HubDegreeMax: 3,
	}
	in := ChainDetectInput{TenantID: tenantID, MappingVersion: "v1", MinInformativeness: 0.5}

	out, err := ChainDetect(ctx, deps, in)
	if err != nil {
		t.Fatalf("ChainDetect: %v", err)
	}
	if out.RelationsScanned != 6 {
		t.Fatalf("expected 6 validated relations scanned, got %d", out.RelationsScanned)
	}
	if out.Chains != 1 || out.Inserted != 1 {
		t.Fatalf("expected exactly the a->b->c chain, got %+v", out)
	}
	if out.DroppedHub != 2 {
		t.Fatalf("expected both hub-bound relations dropped, got %+v", out)
	}

	id := ChainID(tenantID, relations.ChainTypeDependency, []uuid.UUID{rab.ID, rbc.ID}, []uuid.UUID{a.ID, b.ID, c.ID})
	row, err := deps.Chains.GetByID(ctx, tx, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if row == nil {
		t.Fatalf("dependency chain not found under its content address")
	}
	if row.ChainType != relations.ChainTypeDependency || row.HopCount != 2 {
		t.Fatalf("unexpected chain row: type=%s hops=%d", row.ChainType, row.HopCount)
	}
	if row.Scope != relations.ChainScopeIntraDocument {
		t.Fatalf("single-document hops should be intra_document, got %s", row.Scope)
	}
	if row.Confidence < 0.35 || row.Confidence > 0.95 {
		t.Fatalf("confidence %v outside bounds", row.Confidence)
	}
	// idf(b) = ln(1+6/2), and 1.386/4 sits under the floor.
	if row.Confidence != 0.35 {
		t.Fatalf("expected floor confidence 0.35, got %v", row.Confidence)
	}

	// Detection is a pure function of the validated snapshot.
	out2, err := ChainDetect(ctx, deps, in)
	if err != nil {
		t.Fatalf("second ChainDetect: %v", err)
	}
	if out2.Chains != out.Chains || out2.Inserted != out.Inserted || out2.DroppedHub != out.DroppedHub {
		t.Fatalf("rerun diverged: first=%+v second=%+v", out, out2)
	}
	total, err := deps.Chains.CountByTenant(ctx, tx, tenantID)
	if err != nil {
		t.Fatalf("CountByTenant: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected 1 chain after rerun, got %d", total)
	}
}
