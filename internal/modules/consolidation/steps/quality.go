package steps

import (
	"time"

	"github.com/fredpottier/kbgraph/internal/domain"
	"github.com/fredpottier/kbgraph/internal/domain/relations"
)

// PenaltyConfig holds the subtractive quality deductions. Each penalty is
// independent; the combined per-assertion quality is confidence minus the
// sum, and only the group average gets clipped to [0,1].
type PenaltyConfig struct {
	MinEvidenceLen int

	ShortEvidence    float64
	PronounDominated float64
	GenericPredicate float64
	CrossSentence    float64
	Negated          float64
	GenericSubject   float64
	GenericObject    float64
}

func DefaultPenaltyConfig() PenaltyConfig {
	return PenaltyConfig{
		MinEvidenceLen:   40,
		ShortEvidence:    0.15,
		PronounDominated: 0.15,
		GenericPredicate: 0.20,
		CrossSentence:    0.10,
		Negated:          0.20,
		GenericSubject:   0.10,
		GenericObject:    0.10,
	}
}

// AssertionQuality scores one assertion: extractor confidence minus every
// applicable penalty. May go negative; clipping happens after averaging.
func AssertionQuality(a *domain.RawAssertion, subjectName, objectName string, cfg PenaltyConfig) float64 {
	q := a.Confidence
	if len(a.EvidenceText) < cfg.MinEvidenceLen {
		q -= cfg.ShortEvidence
	}
	if PronounDominated(a.EvidenceText) {
		q -= cfg.PronounDominated
	}
	if GenericPredicate(a.PredicateNorm) {
		q -= cfg.GenericPredicate
	}
	if a.CrossSentence {
		q -= cfg.CrossSentence
	}
	if a.Negated {
		q -= cfg.Negated
	}
	if GenericTerm(subjectName) {
		q -= cfg.GenericSubject
	}
	if GenericTerm(objectName) {
		q -= cfg.GenericObject
	}
	return q
}

// RollupStats are the level B aggregates a maturity decision is made from.
type RollupStats struct {
	AssertionCount int
	DocumentCount  int
	ChunkCount     int
	ConfidenceMean float64
	ConfidenceP50  float64
	QualityScore   float64
	NegatedRatio   float64
	FirstSeenAt    time.Time
	LastSeenAt     time.Time
}

// SingleAssertionFacts carry the per-assertion details the single-assertion
// validation exception needs. Only populated when AssertionCount == 1.
type SingleAssertionFacts struct {
	Confidence    float64
	CrossSentence bool
	Negated       bool
	Hedged        bool
	Definitional  bool
}

// ClassifyMaturity is a deterministic function of the rolled-up statistics,
// recomputed fresh on every pass. Order matters: a conflicted group is never
// reported VALIDATED even when the diversity criteria hold.
func ClassifyMaturity(s RollupStats, single *SingleAssertionFacts) string {
	if s.NegatedRatio > 0.4 {
		return relations.MaturityConflicted
	}
	if s.AssertionCount == 1 {
		if s.ConfidenceP50 < 0.45 {
			return relations.MaturityRejected
		}
		if single != nil &&
			single.Confidence >= 0.95 &&
			!single.CrossSentence && !single.Negated && !single.Hedged &&
			single.Definitional {
			return relations.MaturityValidated
		}
		return relations.MaturityCandidate
	}
	if s.DocumentCount >= 2 && s.ConfidenceP50 >= 0.70 {
		return relations.MaturityValidated
	}
	if s.ChunkCount >= 3 && s.ConfidenceP50 >= 0.75 {
		return relations.MaturityValidated
	}
	return relations.MaturityCandidate
}
