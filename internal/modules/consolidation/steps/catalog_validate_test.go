package steps

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func testCatalog() []CatalogEntry {
	return []CatalogEntry{
		{Index: 0, ConceptID: uuid.New(), Name: "API Gateway", Type: "technology"},
		{Index: 1, ConceptID: uuid.New(), Name: "Billing Service", Type: "technology"},
		{Index: 2, ConceptID: uuid.Nil, Name: "Orphan", Type: "technology"},
	}
}

func TestValidateAgainstCatalogAccepts(t *testing.T) {
	cat := testCatalog()
	accepted, rejections := ValidateAgainstCatalog(cat, []CandidateRelation{
		{SubjectIndex: 0, ObjectIndex: 1, PredicateRaw: "routes to", Confidence: 0.9},
	})
	if len(rejections) != 0 {
		t.Fatalf("unexpected rejections: %v", rejections)
	}
	if len(accepted) != 1 {
		t.Fatalf("expected 1 accepted, got %d", len(accepted))
	}
	got := accepted[0]
	if got.SubjectConceptID != cat[0].ConceptID || got.ObjectConceptID != cat[1].ConceptID {
		t.Fatalf("endpoint ids not resolved from catalog")
	}
	if got.SubjectName != "API Gateway" || got.ObjectType != "technology" {
		t.Fatalf("catalog metadata not carried along: %#v", got)
	}
}

func TestValidateAgainstCatalogRejectsUnknownIndex(t *testing.T) {
	accepted, rejections := ValidateAgainstCatalog(testCatalog(), []CandidateRelation{
		{SubjectIndex: 7, ObjectIndex: 1},
		{SubjectIndex: 0, ObjectIndex: 9},
	})
	if len(accepted) != 0 {
		t.Fatalf("out-of-catalog candidates were accepted")
	}
	if len(rejections) != 2 {
		t.Fatalf("expected 2 rejections, got %v", rejections)
	}
	if !strings.Contains(rejections[0], "subject_index 7") || !strings.Contains(rejections[1], "object_index 9") {
		t.Fatalf("rejection reasons missing indexes: %v", rejections)
	}
}

func TestValidateAgainstCatalogRejectsSelfAndNilID(t *testing.T) {
	accepted, rejections := ValidateAgainstCatalog(testCatalog(), []CandidateRelation{
		{SubjectIndex: 1, ObjectIndex: 1},
		{SubjectIndex: 0, ObjectIndex: 2},
	})
	if len(accepted) != 0 {
		t.Fatalf("self-relation or nil-id candidate accepted")
	}
	if len(rejections) != 2 {
		t.Fatalf("expected 2 rejections, got %v", rejections)
	}
	if !strings.Contains(rejections[0], "self-relation") {
		t.Fatalf("self-relation not named in reason: %v", rejections)
	}
	if !strings.Contains(rejections[1], "missing concept id") {
		t.Fatalf("nil concept id not named in reason: %v", rejections)
	}
}
