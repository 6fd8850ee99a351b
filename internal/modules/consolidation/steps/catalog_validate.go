package steps

import (
	"fmt"

	"github.com/google/uuid"
)

// CatalogEntry is one row of the bounded, per-document concept catalog.
// Candidates reference entries by Index to keep the extraction payload
// compact; resolution to the stable concept id happens here, not downstream.
type CatalogEntry struct {
	Index     int       `json:"index"`
	ConceptID uuid.UUID `json:"concept_id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Aliases   []string  `json:"aliases,omitempty"`
}

// CandidateRelation is extractor output before validation.
type CandidateRelation struct {
	SubjectIndex      int     `json:"subject_index"`
	ObjectIndex       int     `json:"object_index"`
	PredicateRaw      string  `json:"predicate_raw"`
	EvidenceText      string  `json:"evidence_text"`
	EvidenceSpanStart int     `json:"evidence_span_start"`
	EvidenceSpanEnd   int     `json:"evidence_span_end"`
	Confidence        float64 `json:"confidence"`
	Negated           bool    `json:"negated"`
	Hedged            bool    `json:"hedged"`
	Conditional       bool    `json:"conditional"`
	CrossSentence     bool    `json:"cross_sentence"`
}

// MentionCandidate is a textual mention the extractor flagged as absent from
// the catalog.
type MentionCandidate struct {
	Mention       string `json:"mention"`
	Context       string `json:"context,omitempty"`
	SuggestedType string `json:"suggested_type,omitempty"`
}

// AcceptedCandidate is a candidate with both endpoints resolved to stable
// concept ids. Concept names and types ride along for quality scoring.
type AcceptedCandidate struct {
	CandidateRelation
	SubjectConceptID uuid.UUID
	ObjectConceptID  uuid.UUID
	SubjectName      string
	ObjectName       string
	SubjectType      string
	ObjectType       string
}

// ValidateAgainstCatalog enforces the closed-world policy: a candidate is
// accepted only when both endpoint indexes exist in the catalog and resolve
// to two distinct concepts. Everything else is rejected with a reason, never
// coerced into a near-match.
func ValidateAgainstCatalog(catalog []CatalogEntry, candidates []CandidateRelation) (accepted []AcceptedCandidate, rejections []string) {
	byIndex := make(map[int]CatalogEntry, len(catalog))
	for _, e := range catalog {
		byIndex[e.Index] = e
	}

	for i, c := range candidates {
		subj, okS := byIndex[c.SubjectIndex]
		if !okS {
			rejections = append(rejections, fmt.Sprintf("candidate %d: subject_index %d not in catalog", i, c.SubjectIndex))
			continue
		}
		obj, okO := byIndex[c.ObjectIndex]
		if !okO {
			rejections = append(rejections, fmt.Sprintf("candidate %d: object_index %d not in catalog", i, c.ObjectIndex))
			continue
		}
		if subj.ConceptID == uuid.Nil || obj.ConceptID == uuid.Nil {
			rejections = append(rejections, fmt.Sprintf("candidate %d: catalog entry missing concept id", i))
			continue
		}
		if subj.ConceptID == obj.ConceptID {
			rejections = append(rejections, fmt.Sprintf("candidate %d: self-relation on concept %s", i, subj.ConceptID))
			continue
		}
		accepted = append(accepted, AcceptedCandidate{
			CandidateRelation: c,
			SubjectConceptID:  subj.ConceptID,
			ObjectConceptID:   obj.ConceptID,
			SubjectName:       subj.Name,
			ObjectName:        obj.Name,
			SubjectType:       subj.Type,
			ObjectType:        obj.Type,
		})
	}
	return accepted, rejections
}
