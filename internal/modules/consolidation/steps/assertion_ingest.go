package steps

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fredpottier/kbgraph/internal/data/repos"
	"github.com/fredpottier/kbgraph/internal/domain"
	"github.com/fredpottier/kbgraph/internal/platform/logger"
)

type AssertionIngestDeps struct {
	DB         *gorm.DB
	Log        *logger.Logger
	Concepts   repos.ConceptRepo
	Mentions   repos.UnresolvedMentionRepo
	Assertions repos.RawAssertionRepo
}

type AssertionIngestInput struct {
	TenantID string `json:"tenant_id"`

	SourceDocumentID string `json:"source_document_id"`
	SourceChunkID    string `json:"source_chunk_id"`
	SourceSegment    string `json:"source_segment,omitempty"`

	ExtractorName    string `json:"extractor_name,omitempty"`
	ExtractorVersion string `json:"extractor_version,omitempty"`
	ModelName        string `json:"model_name,omitempty"`
	SchemaVersion    string `json:"schema_version,omitempty"`

	Catalog    []CatalogEntry      `json:"catalog"`
	Candidates []CandidateRelation `json:"candidates"`
	Mentions   []MentionCandidate  `json:"mentions,omitempty"`
}

type AssertionIngestOutput struct {
	Accepted   int `json:"accepted"`
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
	Rejected   int `json:"rejected"`
	Unresolved int `json:"unresolved"`
}

// AssertionIngest validates one extraction batch against its catalog and
// appends the accepted candidates to the evidence log. Replaying the same
// batch is a no-op thanks to the fingerprint index, so callers retry whole
// batches on failure.
func AssertionIngest(ctx context.Context, deps AssertionIngestDeps, in AssertionIngestInput) (AssertionIngestOutput, error) {
	out := AssertionIngestOutput{}
	if deps.DB == nil || deps.Log == nil || deps.Concepts == nil || deps.Mentions == nil || deps.Assertions == nil {
		return out, fmt.Errorf("assertion_ingest: missing deps")
	}
	if in.TenantID == "" {
		return out, fmt.Errorf("assertion_ingest: missing tenant_id")
	}
	if in.SourceDocumentID == "" || in.SourceChunkID == "" {
		return out, fmt.Errorf("assertion_ingest: missing source provenance")
	}
	log := deps.Log.With("step", "assertion_ingest", "tenant", in.TenantID)

	// The catalog must reference concepts that actually exist for the
	// tenant. An entry pointing at an unknown id is a caller bug, not an
	// unresolved mention.
	ids := make([]uuid.UUID, 0, len(in.Catalog))
	for _, e := range in.Catalog {
		if e.ConceptID != uuid.Nil {
			ids = append(ids, e.ConceptID)
		}
	}
	known, err := deps.Concepts.ExistingIDs(ctx, nil, in.TenantID, ids)
	if err != nil {
		return out, fmt.Errorf("assertion_ingest: concept lookup: %w", err)
	}
	catalog := make([]CatalogEntry, 0, len(in.Catalog))
	for _, e := range in.Catalog {
		if !known[e.ConceptID] {
			log.Warn("catalog entry references unknown concept (dropping)", "concept_id", e.ConceptID, "name", e.Name)
			continue
		}
		catalog = append(catalog, e)
	}

	accepted, rejections := ValidateAgainstCatalog(catalog, in.Candidates)
	for _, reason := range rejections {
		log.Info("candidate rejected", "reason", reason, "document", in.SourceDocumentID)
	}
	out.Accepted = len(accepted)
	out.Rejected = len(rejections)

	schemaVersion := in.SchemaVersion
	if schemaVersion == "" {
		schemaVersion = "1"
	}

	rows := make([]*domain.RawAssertion, 0, len(accepted))
	now := time.Now().UTC()
	for _, a := range accepted {
		norm := NormalizePredicate(a.PredicateRaw)
		if norm == "" {
			out.Rejected++
			out.Accepted--
			log.Info("candidate rejected", "reason", "empty predicate after normalization", "document", in.SourceDocumentID)
			continue
		}
		id, err := uuid.NewV7()
		if err != nil {
			id = uuid.New()
		}
		rows = append(rows, &domain.RawAssertion{
			ID:                id,
			TenantID:          in.TenantID,
			Fingerprint:       AssertionFingerprint(in.TenantID, in.SourceDocumentID, in.SourceChunkID, a.SubjectConceptID, a.ObjectConceptID, norm, a.EvidenceText),
			SubjectConceptID:  a.SubjectConceptID,
			ObjectConceptID:   a.ObjectConceptID,
			PredicateRaw:      a.PredicateRaw,
			PredicateNorm:     norm,
			EvidenceText:      a.EvidenceText,
			EvidenceSpanStart: a.EvidenceSpanStart,
			EvidenceSpanEnd:   a.EvidenceSpanEnd,
			Confidence:        clip01(a.Confidence),
			Negated:           a.Negated,
			Hedged:            a.Hedged,
			Conditional:       a.Conditional,
			CrossSentence:     a.CrossSentence,
			SourceDocumentID:  in.SourceDocumentID,
			SourceChunkID:     in.SourceChunkID,
			SourceSegment:     in.SourceSegment,
			ExtractorName:     in.ExtractorName,
			ExtractorVersion:  in.ExtractorVersion,
			ModelName:         in.ModelName,
			SchemaVersion:     schemaVersion,
			CreatedAt:         now,
		})
	}

	inserted, err := deps.Assertions.Ingest(ctx, nil, rows)
	if err != nil {
		return out, fmt.Errorf("assertion_ingest: persist: %w", err)
	}
	out.Inserted = int(inserted)
	out.Duplicates = len(rows) - out.Inserted

	for _, m := range in.Mentions {
		normMention := strings.Join(strings.Fields(strings.ToLower(m.Mention)), " ")
		if normMention == "" {
			continue
		}
		rec := &domain.UnresolvedMention{
			ID:            uuid.New(),
			TenantID:      in.TenantID,
			MentionNorm:   normMention,
			Mention:       m.Mention,
			Context:       m.Context,
			SuggestedType: m.SuggestedType,
			Occurrences:   1,
			Status:        "pending",
		}
		if err := deps.Mentions.Record(ctx, nil, rec); err != nil {
			log.Warn("unresolved mention record failed (continuing)", "mention", normMention, "error", err)
			continue
		}
		out.Unresolved++
	}

	log.Info("ingest batch done",
		"document", in.SourceDocumentID,
		"accepted", out.Accepted,
		"inserted", out.Inserted,
		"duplicates", out.Duplicates,
		"rejected", out.Rejected,
		"unresolved", out.Unresolved,
	)
	return out, nil
}
