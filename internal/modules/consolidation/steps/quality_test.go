package steps

import (
	"math"
	"testing"

	"github.com/fredpottier/kbgraph/internal/domain"
	"github.com/fredpottier/kbgraph/internal/domain/relations"
)

const longEvidence = "The gateway forwards every authenticated request to the billing service over mutual TLS."

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestAssertionQualityNoPenalties(t *testing.T) {
	a := &domain.RawAssertion{Confidence: 0.85, PredicateNorm: "depends on", EvidenceText: longEvidence}
	got := AssertionQuality(a, "Gateway", "Billing", DefaultPenaltyConfig())
	if !almostEqual(got, 0.85) {
		t.Fatalf("clean assertion penalized: got %f", got)
	}
}

func TestAssertionQualityPenaltiesStack(t *testing.T) {
	// Short evidence (0.15) + negated (0.20) + generic predicate (0.20).
	a := &domain.RawAssertion{Confidence: 0.9, PredicateNorm: "relates to", EvidenceText: "A relates to B.", Negated: true}
	got := AssertionQuality(a, "Gateway", "Billing", DefaultPenaltyConfig())
	if !almostEqual(got, 0.9-0.15-0.20-0.20) {
		t.Fatalf("expected stacked penalties, got %f", got)
	}
}

func TestAssertionQualityMayGoNegative(t *testing.T) {
	a := &domain.RawAssertion{Confidence: 0.3, PredicateNorm: "is", EvidenceText: "It is that.", Negated: true, CrossSentence: true}
	got := AssertionQuality(a, "system", "data", DefaultPenaltyConfig())
	if got >= 0 {
		t.Fatalf("heavily penalized assertion should score below zero before averaging, got %f", got)
	}
}

func TestClassifyMaturityValidatedByDocumentDiversity(t *testing.T) {
	s := RollupStats{AssertionCount: 3, DocumentCount: 2, ChunkCount: 3, ConfidenceP50: 0.81}
	if got := ClassifyMaturity(s, nil); got != relations.MaturityValidated {
		t.Fatalf("expected validated, got %s", got)
	}
}

func TestClassifyMaturityValidatedByChunkDiversity(t *testing.T) {
	s := RollupStats{AssertionCount: 3, DocumentCount: 1, ChunkCount: 3, ConfidenceP50: 0.76}
	if got := ClassifyMaturity(s, nil); got != relations.MaturityValidated {
		t.Fatalf("expected validated, got %s", got)
	}
	s.ConfidenceP50 = 0.72
	if got := ClassifyMaturity(s, nil); got != relations.MaturityCandidate {
		t.Fatalf("single-document p50 below threshold must stay candidate, got %s", got)
	}
}

func TestClassifyMaturityRejectedSingleWeakAssertion(t *testing.T) {
	s := RollupStats{AssertionCount: 1, DocumentCount: 1, ChunkCount: 1, ConfidenceP50: 0.30}
	if got := ClassifyMaturity(s, &SingleAssertionFacts{Confidence: 0.30}); got != relations.MaturityRejected {
		t.Fatalf("expected rejected, got %s", got)
	}
}

func TestClassifyMaturityConflictedBeatsValidation(t *testing.T) {
	// Diversity criteria hold, but 3 of 6 assertions are negated.
	s := RollupStats{AssertionCount: 6, DocumentCount: 3, ChunkCount: 6, ConfidenceP50: 0.85, NegatedRatio: 0.5}
	if got := ClassifyMaturity(s, nil); got != relations.MaturityConflicted {
		t.Fatalf("conflicted group reported as %s", got)
	}
}

func TestClassifyMaturitySingleAssertionException(t *testing.T) {
	s := RollupStats{AssertionCount: 1, DocumentCount: 1, ChunkCount: 1, ConfidenceP50: 0.96}
	strong := &SingleAssertionFacts{Confidence: 0.96, Definitional: true}
	if got := ClassifyMaturity(s, strong); got != relations.MaturityValidated {
		t.Fatalf("definitional single assertion should validate, got %s", got)
	}
	hedged := &SingleAssertionFacts{Confidence: 0.96, Definitional: true, Hedged: true}
	if got := ClassifyMaturity(s, hedged); got != relations.MaturityCandidate {
		t.Fatalf("hedged single assertion must not validate, got %s", got)
	}
	plain := &SingleAssertionFacts{Confidence: 0.96}
	if got := ClassifyMaturity(s, plain); got != relations.MaturityCandidate {
		t.Fatalf("non-definitional single assertion must not validate, got %s", got)
	}
}
