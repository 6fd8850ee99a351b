package steps

import (
	"testing"

	"github.com/google/uuid"
)

func TestAssertionFingerprintDeterministic(t *testing.T) {
	s := uuid.New()
	o := uuid.New()
	a := AssertionFingerprint("t1", "doc1", "chunk1", s, o, "depends on", "A depends on B.")
	b := AssertionFingerprint("t1", "doc1", "chunk1", s, o, "depends on", "A depends on B.")
	if a != b {
		t.Fatalf("same inputs produced different fingerprints")
	}
	if a == AssertionFingerprint("t1", "doc1", "chunk2", s, o, "depends on", "A depends on B.") {
		t.Fatalf("chunk change must change the fingerprint")
	}
	if a == AssertionFingerprint("t1", "doc1", "chunk1", s, o, "depends on", "A depends on B") {
		t.Fatalf("evidence change must change the fingerprint")
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256, got %d chars", len(a))
	}
}

func TestCanonicalRelationIDStable(t *testing.T) {
	s := uuid.New()
	o := uuid.New()
	a := CanonicalRelationID("t1", s, o, "REQUIRES")
	if a != CanonicalRelationID("t1", s, o, "REQUIRES") {
		t.Fatalf("canonical relation id not deterministic")
	}
	if a == CanonicalRelationID("t1", o, s, "REQUIRES") {
		t.Fatalf("direction must matter")
	}
	if a == CanonicalRelationID("t1", s, o, "USES") {
		t.Fatalf("relation type must matter")
	}
	if a == CanonicalRelationID("t2", s, o, "REQUIRES") {
		t.Fatalf("tenant must matter")
	}
}

func TestChainIDOrderSensitive(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	r1, r2 := uuid.New(), uuid.New()
	rels := []uuid.UUID{r1, r2}
	fwd := ChainID("t1", "dependency_chain", rels, []uuid.UUID{a, b, c})
	if fwd != ChainID("t1", "dependency_chain", rels, []uuid.UUID{a, b, c}) {
		t.Fatalf("chain id not deterministic")
	}
	if fwd == ChainID("t1", "dependency_chain", rels, []uuid.UUID{c, b, a}) {
		t.Fatalf("path order must matter")
	}
	if fwd == ChainID("t1", "capability_chain", rels, []uuid.UUID{a, b, c}) {
		t.Fatalf("chain type must matter")
	}
	// Parallel edges: same concepts, same type, different relation rows.
	if fwd == ChainID("t1", "dependency_chain", []uuid.UUID{r1, uuid.New()}, []uuid.UUID{a, b, c}) {
		t.Fatalf("relation sequence must matter")
	}
}

func TestClipAndClamp(t *testing.T) {
	if clip01(-0.2) != 0 || clip01(1.4) != 1 || clip01(0.5) != 0.5 {
		t.Fatalf("clip01 misbehaved")
	}
	if clamp(0.1, 0.35, 0.95) != 0.35 {
		t.Fatalf("clamp floor not applied")
	}
	if clamp(2.0, 0.35, 0.95) != 0.95 {
		t.Fatalf("clamp ceiling not applied")
	}
	if clamp(0.6, 0.35, 0.95) != 0.6 {
		t.Fatalf("clamp altered in-range value")
	}
}
