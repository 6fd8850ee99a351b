package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	relrepo "github.com/fredpottier/kbgraph/internal/data/repos/relations"

	"github.com/fredpottier/kbgraph/internal/data/repos"
	"github.com/fredpottier/kbgraph/internal/domain"
	"github.com/fredpottier/kbgraph/internal/domain/relations"
	"github.com/fredpottier/kbgraph/internal/platform/logger"
)

type ChainDetectDeps struct {
	DB        *gorm.DB
	Log       *logger.Logger
	Relations repos.CanonicalRelationRepo
	Chains    repos.RelationChainRepo

	// HubDegreeMax excludes concepts with more validated relations than this
	// from acting as join points.
	HubDegreeMax int
	// MaxHops caps the relations per chain.
	MaxHops int
	// Confidence mapping: clamp(idf/ConfidenceK, Floor, Ceiling).
	ConfidenceK       float64
	ConfidenceFloor   float64
	ConfidenceCeiling float64

	PageSize int
}

type ChainDetectInput struct {
	TenantID       string
	MappingVersion string

	// MinInformativeness drops chains whose weakest join concept scores
	// below this idf floor.
	MinInformativeness float64

	Progress func(stage string, pct int)
}

type ChainDetectOutput struct {
	RelationsScanned int   `json:"relations_scanned"`
	Chains           int   `json:"chains"`
	MultiDocument    int   `json:"multi_document"`
	DroppedHub       int   `json:"dropped_hub"`
	DroppedDuplicate int   `json:"dropped_duplicate"`
	DroppedUntyped   int   `json:"dropped_untyped"`
	DroppedFloor     int   `json:"dropped_floor"`
	Inserted         int64 `json:"inserted"`
}

// ChainDetect rebuilds the tenant's chain set from its validated canonical
// relations. Detection is a pure function of that snapshot: ids are content
// addressed and every run starts by wiping the previous output, so an
// unchanged input reproduces an identical chain set.
func ChainDetect(ctx context.Context, deps ChainDetectDeps, in ChainDetectInput) (ChainDetectOutput, error) {
	out := ChainDetectOutput{}
	if deps.DB == nil || deps.Log == nil || deps.Relations == nil || deps.Chains == nil {
		return out, fmt.Errorf("chain_detect: missing deps")
	}
	if in.TenantID == "" {
		return out, fmt.Errorf("chain_detect: missing tenant_id")
	}
	log := deps.Log.With("step", "chain_detect", "tenant", in.TenantID)
	progress := in.Progress
	if progress == nil {
		progress = func(string, int) {}
	}

	hubMax := deps.HubDegreeMax
	if hubMax <= 0 {
		hubMax = 50
	}
	maxHops := deps.MaxHops
	if maxHops <= 0 {
		maxHops = 3
	}
	k := deps.ConfidenceK
	if k <= 0 {
		k = 4.0
	}
	floor := deps.ConfidenceFloor
	if floor <= 0 {
		floor = 0.35
	}
	ceiling := deps.ConfidenceCeiling
	if ceiling <= 0 {
		ceiling = 0.95
	}
	pageSize := deps.PageSize
	if pageSize <= 0 {
		pageSize = 200
	}

	progress("prepare", 5)
	degrees, err := deps.Relations.DegreeCounts(ctx, nil, in.TenantID)
	if err != nil {
		return out, fmt.Errorf("chain_detect: degree counts: %w", err)
	}
	degree := make(map[uuid.UUID]int, len(degrees))
	for _, d := range degrees {
		degree[d.ConceptID] = d.Degree
	}
	total, err := deps.Relations.CountValidated(ctx, nil, in.TenantID)
	if err != nil {
		return out, fmt.Errorf("chain_detect: count validated: %w", err)
	}
	if total == 0 {
		log.Info("no validated relations, chain set cleared")
		_, err := deps.Chains.DeleteByTenant(ctx, nil, in.TenantID)
		return out, err
	}

	// idf rewards joins through specific, discriminating concepts and
	// penalizes generic hubs.
	idf := func(conceptID uuid.UUID) float64 {
		d := degree[conceptID]
		if d <= 0 {
			d = 1
		}
		return math.Log(1 + float64(total)/float64(d))
	}

	if _, err := deps.Chains.DeleteByTenant(ctx, nil, in.TenantID); err != nil {
		return out, fmt.Errorf("chain_detect: clear previous: %w", err)
	}

	progress("detect", 15)
	var pending []*domain.RelationChain
	seen := map[uuid.UUID]bool{}

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		n, err := deps.Chains.CreateBatch(ctx, nil, pending)
		if err != nil {
			return err
		}
		out.Inserted += n
		pending = pending[:0]
		return nil
	}

	emit := func(hops []*domain.CanonicalRelation, minIDF float64) error {
		chainType := deriveChainType(hops)
		path := conceptPath(hops)
		relIDs := make([]uuid.UUID, 0, len(hops))
		for _, h := range hops {
			relIDs = append(relIDs, h.ID)
		}
		id := ChainID(in.TenantID, chainType, relIDs, path)
		if seen[id] {
			return nil
		}
		seen[id] = true

		scope := chainScope(hops)
		pathJSON, _ := json.Marshal(uuidStrings(path))
		relJSON, _ := json.Marshal(uuidStrings(relIDs))

		pending = append(pending, &domain.RelationChain{
			ID:             id,
			TenantID:       in.TenantID,
			ChainType:      chainType,
			ConceptPath:    datatypes.JSON(pathJSON),
			RelationIDs:    datatypes.JSON(relJSON),
			HopCount:       len(hops),
			Confidence:     clamp(minIDF/k, floor, ceiling),
			Scope:          scope,
			MappingVersion: in.MappingVersion,
		})
		out.Chains++
		if scope == relations.ChainScopeMultiDocument {
			out.MultiDocument++
		}
		if len(pending) >= 200 {
			return flush()
		}
		return nil
	}

	var afterID uuid.UUID
	filter := relrepo.ListFilter{Maturity: relations.MaturityValidated}
	for {
		page, err := deps.Relations.ListByTenant(ctx, nil, in.TenantID, filter, afterID, pageSize)
		if err != nil {
			return out, fmt.Errorf("chain_detect: relation page: %w", err)
		}
		if len(page) == 0 {
			break
		}
		out.RelationsScanned += len(page)

		// Second hops for every non-hub object in the page, one query.
		joinIDs := make([]uuid.UUID, 0, len(page))
		joinSeen := map[uuid.UUID]bool{}
		for _, r1 := range page {
			if degree[r1.ObjectConceptID] > hubMax {
				out.DroppedHub++
				continue
			}
			if !joinSeen[r1.ObjectConceptID] {
				joinSeen[r1.ObjectConceptID] = true
				joinIDs = append(joinIDs, r1.ObjectConceptID)
			}
		}
		second, err := deps.Relations.ListValidatedBySubjects(ctx, nil, in.TenantID, joinIDs)
		if err != nil {
			return out, fmt.Errorf("chain_detect: second hop fetch: %w", err)
		}
		bySubject := groupBySubject(second)

		// Third hops, when configured, hang off the second hops' objects.
		var bySubject3 map[uuid.UUID][]*domain.CanonicalRelation
		if maxHops >= 3 {
			thirdIDs := make([]uuid.UUID, 0, len(second))
			thirdSeen := map[uuid.UUID]bool{}
			for _, r2 := range second {
				if degree[r2.ObjectConceptID] > hubMax {
					continue
				}
				if !thirdSeen[r2.ObjectConceptID] {
					thirdSeen[r2.ObjectConceptID] = true
					thirdIDs = append(thirdIDs, r2.ObjectConceptID)
				}
			}
			third, err := deps.Relations.ListValidatedBySubjects(ctx, nil, in.TenantID, thirdIDs)
			if err != nil {
				return out, fmt.Errorf("chain_detect: third hop fetch: %w", err)
			}
			bySubject3 = groupBySubject(third)
		}

		for _, r1 := range page {
			if degree[r1.ObjectConceptID] > hubMax {
				continue
			}
			join1 := idf(r1.ObjectConceptID)
			for _, r2 := range bySubject[r1.ObjectConceptID] {
				if r2.ID == r1.ID || r2.ObjectConceptID == r1.SubjectConceptID {
					continue
				}
				if duplicateEvidence(r1, r2) {
					out.DroppedDuplicate++
					continue
				}
				if uninformativeJoin(r1, r2) {
					out.DroppedUntyped++
					continue
				}
				if join1 < in.MinInformativeness {
					out.DroppedFloor++
					continue
				}
				if err := emit([]*domain.CanonicalRelation{r1, r2}, join1); err != nil {
					return out, fmt.Errorf("chain_detect: persist: %w", err)
				}

				if maxHops < 3 || degree[r2.ObjectConceptID] > hubMax {
					continue
				}
				join2 := idf(r2.ObjectConceptID)
				for _, r3 := range bySubject3[r2.ObjectConceptID] {
					if r3.ID == r1.ID || r3.ID == r2.ID {
						continue
					}
					if r3.ObjectConceptID == r1.SubjectConceptID ||
						r3.ObjectConceptID == r1.ObjectConceptID ||
						r3.ObjectConceptID == r2.ObjectConceptID {
						continue
					}
					if duplicateEvidence(r1, r3) || duplicateEvidence(r2, r3) {
						out.DroppedDuplicate++
						continue
					}
					if uninformativeJoin(r2, r3) {
						out.DroppedUntyped++
						continue
					}
					minIDF := math.Min(join1, join2)
					if minIDF < in.MinInformativeness {
						out.DroppedFloor++
						continue
					}
					if err := emit([]*domain.CanonicalRelation{r1, r2, r3}, minIDF); err != nil {
						return out, fmt.Errorf("chain_detect: persist: %w", err)
					}
				}
			}
		}

		afterID = page[len(page)-1].ID
		if len(page) < pageSize {
			break
		}
	}

	if err := flush(); err != nil {
		return out, fmt.Errorf("chain_detect: persist: %w", err)
	}

	progress("done", 100)
	log.Info("chain detection done",
		"relations_scanned", out.RelationsScanned,
		"chains", out.Chains,
		"multi_document", out.MultiDocument,
		"dropped_hub", out.DroppedHub,
		"dropped_duplicate", out.DroppedDuplicate,
		"dropped_untyped", out.DroppedUntyped,
		"dropped_floor", out.DroppedFloor,
	)
	return out, nil
}

// pairChainTypes keys on "first|second" relation types.
var pairChainTypes = map[string]string{
	"REQUIRES|REQUIRES":               relations.ChainTypeDependency,
	"REQUIRES|USES":                   relations.ChainTypeDependency,
	"USES|REQUIRES":                   relations.ChainTypeDependency,
	"REQUIRES|ENABLES":                relations.ChainTypeCapability,
	"ENABLES|ENABLES":                 relations.ChainTypeCapability,
	"USES|INTEGRATES_WITH":            relations.ChainTypeIntegration,
	"INTEGRATES_WITH|USES":            relations.ChainTypeIntegration,
	"INTEGRATES_WITH|INTEGRATES_WITH": relations.ChainTypeIntegration,
	"PART_OF|PART_OF":                 relations.ChainTypeComposition,
	"CAUSES|CAUSES":                   relations.ChainTypeCausal,
	"CAUSES|PREVENTS":                 relations.ChainTypeCausal,
	"PREVENTS|CAUSES":                 relations.ChainTypeCausal,
	"PRECEDES|PRECEDES":               relations.ChainTypeEvolution,
	"REPLACES|REPLACES":               relations.ChainTypeEvolution,
	"PRECEDES|REPLACES":               relations.ChainTypeEvolution,
	"REPLACES|PRECEDES":               relations.ChainTypeEvolution,
}

// deriveChainType folds the pair rule over consecutive hops. When every
// consecutive pair agrees on a specific type, that type wins; a same-type
// chain with no pair rule is tagged transitive; anything else is generic.
func deriveChainType(hops []*domain.CanonicalRelation) string {
	if len(hops) < 2 {
		return relations.ChainTypeGeneric
	}
	pairType := ""
	allPairsAgree := true
	for i := 0; i+1 < len(hops); i++ {
		pt := pairChainTypes[hops[i].RelationType+"|"+hops[i+1].RelationType]
		if pt == "" {
			allPairsAgree = false
			break
		}
		if pairType == "" {
			pairType = pt
		} else if pairType != pt {
			allPairsAgree = false
			break
		}
	}
	if allPairsAgree && pairType != "" {
		return pairType
	}
	sameType := true
	for _, h := range hops[1:] {
		if h.RelationType != hops[0].RelationType {
			sameType = false
			break
		}
	}
	if sameType && hops[0].RelationType != relations.TypeUnknown {
		return relations.TransitivePrefix + strings.ToLower(hops[0].RelationType)
	}
	return relations.ChainTypeGeneric
}

// chainScope tags where the chain's evidence lives. intra_document requires
// every hop's provenance to be confined to one and the same document; a hop
// evidenced across several documents already makes the chain cross-document
// knowledge. 3+ hops spanning 3+ documents form the multi_document category.
func chainScope(hops []*domain.CanonicalRelation) string {
	union := map[string]bool{}
	confined := true
	for _, h := range hops {
		var docs []string
		_ = json.Unmarshal(h.SourceDocumentIDs, &docs)
		if len(docs) != 1 {
			confined = false
		}
		for _, d := range docs {
			union[d] = true
		}
	}
	if confined && len(union) == 1 {
		return relations.ChainScopeIntraDocument
	}
	if len(hops) >= 3 && len(union) >= 3 {
		return relations.ChainScopeMultiDocument
	}
	return relations.ChainScopeCrossDocument
}

// duplicateEvidence rejects joins whose endpoints cite byte-identical
// evidence text; such chains carry no new information.
func duplicateEvidence(a, b *domain.CanonicalRelation) bool {
	return a.EvidenceSample != "" && a.EvidenceSample == b.EvidenceSample
}

// uninformativeJoin rejects a join between two untyped hops. A chain needs
// at least one typed relation at every junction to say anything.
func uninformativeJoin(a, b *domain.CanonicalRelation) bool {
	return a.RelationType == relations.TypeUnknown && b.RelationType == relations.TypeUnknown
}

func conceptPath(hops []*domain.CanonicalRelation) []uuid.UUID {
	path := make([]uuid.UUID, 0, len(hops)+1)
	path = append(path, hops[0].SubjectConceptID)
	for _, h := range hops {
		path = append(path, h.ObjectConceptID)
	}
	return path
}

func groupBySubject(rows []*domain.CanonicalRelation) map[uuid.UUID][]*domain.CanonicalRelation {
	out := make(map[uuid.UUID][]*domain.CanonicalRelation, len(rows))
	for _, r := range rows {
		out[r.SubjectConceptID] = append(out[r.SubjectConceptID], r)
	}
	return out
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
