package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	assertrepo "github.com/fredpottier/kbgraph/internal/data/repos/assertions"

	"github.com/fredpottier/kbgraph/internal/data/repos"
	"github.com/fredpottier/kbgraph/internal/domain"
	"github.com/fredpottier/kbgraph/internal/domain/relations"
	"github.com/fredpottier/kbgraph/internal/platform/logger"
)

type RelationConsolidateDeps struct {
	DB         *gorm.DB
	Log        *logger.Logger
	Concepts   repos.ConceptRepo
	Assertions repos.RawAssertionRepo
	Relations  repos.CanonicalRelationRepo
	Classifier *PredicateTypeClassifier

	Penalties PenaltyConfig

	// PageSize bounds one group-discovery page, GroupRowCap bounds the per
	// group row fetch used for quality scoring, LinkBatchSize bounds one
	// linking micro-batch. Workers bounds concurrent pair rollups.
	PageSize      int
	GroupRowCap   int
	LinkBatchSize int
	Workers       int
}

type RelationConsolidateInput struct {
	TenantID       string
	MappingVersion string

	// PurgeFirst wipes the tenant's canonical relations and links before the
	// pass. Full reprocessing only, never implied.
	PurgeFirst bool

	// Progress is optional; pipelines wire it to the job run.
	Progress func(stage string, pct int)
}

type RelationConsolidateOutput struct {
	Usages         int   `json:"usages"`
	Clusters       int   `json:"clusters"`
	Groups         int   `json:"groups"`
	Relations      int   `json:"relations"`
	Validated      int   `json:"validated"`
	Conflicted     int   `json:"conflicted"`
	Rejected       int   `json:"rejected"`
	DegradedGroups int   `json:"degraded_groups"`
	FailedGroups   int   `json:"failed_groups"`
	Linked         int64 `json:"linked"`
	StaleDeleted   int64 `json:"stale_deleted"`
}

// levelA is one (subject, object, predicate_norm) group after scoring. Kept
// only until its pair is flushed; the pass never holds more than one
// (subject, object) pair of these.
type levelA struct {
	key          assertrepo.GroupKey
	count        int
	qualityMean  float64
	clusterID    string
	relationType string
	clusterConf  float64
	bestEvidence string
	bestConf     float64
	docIDs       []string
	single       *SingleAssertionFacts
}

type conceptMeta struct {
	name string
	typ  string
}

// RelationConsolidate is the consolidation pass: discover predicate usages,
// type them at cluster level, aggregate evidence into canonical relations,
// and link every assertion to its relation in micro-batches. All reads are
// keyset-paged; memory use is bounded by page size and by the widest single
// (subject, object) pair.
func RelationConsolidate(ctx context.Context, deps RelationConsolidateDeps, in RelationConsolidateInput) (RelationConsolidateOutput, error) {
	out := RelationConsolidateOutput{}
	if deps.DB == nil || deps.Log == nil || deps.Concepts == nil || deps.Assertions == nil || deps.Relations == nil || deps.Classifier == nil {
		return out, fmt.Errorf("relation_consolidate: missing deps")
	}
	if in.TenantID == "" {
		return out, fmt.Errorf("relation_consolidate: missing tenant_id")
	}
	if in.MappingVersion == "" {
		return out, fmt.Errorf("relation_consolidate: missing mapping_version")
	}
	log := deps.Log.With("step", "relation_consolidate", "tenant", in.TenantID, "mapping_version", in.MappingVersion)
	progress := in.Progress
	if progress == nil {
		progress = func(string, int) {}
	}

	pageSize := deps.PageSize
	if pageSize <= 0 {
		pageSize = 200
	}
	groupRowCap := deps.GroupRowCap
	if groupRowCap <= 0 {
		groupRowCap = 1000
	}
	linkBatch := deps.LinkBatchSize
	if linkBatch <= 0 {
		linkBatch = 500
	}
	workers := deps.Workers
	if workers <= 0 {
		workers = 4
	}

	if in.PurgeFirst {
		progress("purge", 1)
		unlinked, err := deps.Assertions.UnlinkAll(ctx, nil, in.TenantID)
		if err != nil {
			return out, fmt.Errorf("relation_consolidate: purge unlink: %w", err)
		}
		deleted, err := deps.Relations.DeleteByTenant(ctx, nil, in.TenantID)
		if err != nil {
			return out, fmt.Errorf("relation_consolidate: purge relations: %w", err)
		}
		log.Info("purged tenant before pass", "unlinked", unlinked, "relations_deleted", deleted)
	} else {
		// Every link is rewritten from the current pass's assignments. A
		// group that degraded to UNKNOWN last run and gets a real type now
		// would otherwise keep pointing at the orphaned UNKNOWN relation.
		if _, err := deps.Assertions.UnlinkAll(ctx, nil, in.TenantID); err != nil {
			return out, fmt.Errorf("relation_consolidate: unlink previous pass: %w", err)
		}
	}

	concepts := map[uuid.UUID]conceptMeta{}
	loadConcepts := func(ids []uuid.UUID) error {
		missing := make([]uuid.UUID, 0, len(ids))
		for _, id := range ids {
			if _, ok := concepts[id]; !ok {
				missing = append(missing, id)
			}
		}
		if len(missing) == 0 {
			return nil
		}
		rows, err := deps.Concepts.GetByIDs(ctx, nil, missing)
		if err != nil {
			return err
		}
		for _, c := range rows {
			concepts[c.ID] = conceptMeta{name: c.Name, typ: c.Type}
		}
		// Ids that vanished from the catalog still need an entry so the
		// lookup below is total.
		for _, id := range missing {
			if _, ok := concepts[id]; !ok {
				concepts[id] = conceptMeta{name: "", typ: "unknown"}
			}
		}
		return nil
	}

	// Stage 1: walk every group once to collect the distinct predicate
	// usages. Memory scales with distinct usages, not assertions.
	progress("discover", 5)
	usageIndex := map[string]*PredicateUsage{}
	var cursor *assertrepo.GroupKey
	for {
		page, err := deps.Assertions.ListGroupPage(ctx, nil, in.TenantID, cursor, pageSize)
		if err != nil {
			return out, fmt.Errorf("relation_consolidate: group page: %w", err)
		}
		if len(page) == 0 {
			break
		}
		ids := make([]uuid.UUID, 0, len(page)*2)
		for _, k := range page {
			ids = append(ids, k.SubjectConceptID, k.ObjectConceptID)
		}
		if err := loadConcepts(ids); err != nil {
			return out, fmt.Errorf("relation_consolidate: concept load: %w", err)
		}
		for _, k := range page {
			cctx := PredicateInContext(k.PredicateNorm, concepts[k.SubjectConceptID].typ, concepts[k.ObjectConceptID].typ)
			if u, ok := usageIndex[cctx]; ok {
				u.Count++
			} else {
				usageIndex[cctx] = &PredicateUsage{
					Context:       cctx,
					PredicateNorm: k.PredicateNorm,
					SubjectType:   concepts[k.SubjectConceptID].typ,
					ObjectType:    concepts[k.ObjectConceptID].typ,
					Count:         1,
				}
			}
		}
		last := page[len(page)-1]
		cursor = &last
		if len(page) < pageSize {
			break
		}
	}
	out.Usages = len(usageIndex)

	// Stage 2: cluster and type the usages. Degradation inside the
	// classifier surfaces as UNKNOWN assignments, never as a failed pass.
	progress("classify", 20)
	usages := make([]PredicateUsage, 0, len(usageIndex))
	for _, u := range usageIndex {
		usages = append(usages, *u)
	}
	assignments, err := deps.Classifier.ClassifyUsages(ctx, in.TenantID, in.MappingVersion, usages)
	if err != nil {
		return out, fmt.Errorf("relation_consolidate: classify: %w", err)
	}
	seen := map[string]bool{}
	for _, a := range assignments {
		if a.ClusterID != "" {
			seen[a.ClusterID] = true
		}
	}
	out.Clusters = len(seen)

	assignFor := func(k assertrepo.GroupKey) TypeAssignment {
		cctx := PredicateInContext(k.PredicateNorm, concepts[k.SubjectConceptID].typ, concepts[k.ObjectConceptID].typ)
		if a, ok := assignments[cctx]; ok {
			return a
		}
		return TypeAssignment{RelationType: relations.TypeUnknown}
	}

	// Stage 3: score each group and roll pairs up to canonical relations.
	// Relations not touched after this instant did not come out of the
	// current pass and are dropped in stage 5, whatever version they carry.
	passStart := time.Now().UTC()
	// Keyset order keeps a (subject, object) pair contiguous, so pair state
	// survives page boundaries and flushes exactly once.
	progress("consolidate", 30)
	var (
		mu sync.Mutex
		eg errgroup.Group
	)
	eg.SetLimit(workers)

	runPair := func(subject, object uuid.UUID, groups []levelA) {
		stats := consolidatePair(ctx, deps, log, in, subject, object, groups)
		mu.Lock()
		out.Relations += stats.relations
		out.Validated += stats.validated
		out.Conflicted += stats.conflicted
		out.Rejected += stats.rejected
		out.DegradedGroups += stats.degraded
		out.FailedGroups += stats.failed
		mu.Unlock()
	}
	flushPair := func(subject, object uuid.UUID, groups []levelA) {
		// One worker stays on the caller's goroutine, so a single DB
		// connection (a transaction) is never used concurrently.
		if workers == 1 {
			runPair(subject, object, groups)
			return
		}
		eg.Go(func() error {
			runPair(subject, object, groups)
			return nil
		})
	}

	var (
		pairSubject uuid.UUID
		pairObject  uuid.UUID
		pairGroups  []levelA
	)
	cursor = nil
	for {
		page, err := deps.Assertions.ListGroupPage(ctx, nil, in.TenantID, cursor, pageSize)
		if err != nil {
			_ = eg.Wait()
			return out, fmt.Errorf("relation_consolidate: group page: %w", err)
		}
		if len(page) == 0 {
			break
		}
		for _, k := range page {
			if len(pairGroups) > 0 && (k.SubjectConceptID != pairSubject || k.ObjectConceptID != pairObject) {
				flushPair(pairSubject, pairObject, pairGroups)
				pairGroups = nil
			}
			pairSubject = k.SubjectConceptID
			pairObject = k.ObjectConceptID

			la, err := scoreGroup(ctx, deps, in.TenantID, k, concepts, groupRowCap, assignFor(k))
			if err != nil {
				log.Warn("group scoring failed (continuing)", "subject", k.SubjectConceptID, "object", k.ObjectConceptID, "predicate", k.PredicateNorm, "error", err)
				mu.Lock()
				out.FailedGroups++
				mu.Unlock()
				continue
			}
			mu.Lock()
			out.Groups++
			mu.Unlock()
			pairGroups = append(pairGroups, la)
		}
		last := page[len(page)-1]
		cursor = &last
		if len(page) < pageSize {
			break
		}
	}
	if len(pairGroups) > 0 {
		flushPair(pairSubject, pairObject, pairGroups)
	}
	if err := eg.Wait(); err != nil {
		return out, err
	}

	// Stage 4: link assertions to their canonical relation in micro batches.
	progress("link", 75)
	var afterID uuid.UUID
	for {
		page, err := deps.Assertions.ListUnlinkedPage(ctx, nil, in.TenantID, afterID, linkBatch)
		if err != nil {
			return out, fmt.Errorf("relation_consolidate: unlinked page: %w", err)
		}
		if len(page) == 0 {
			break
		}
		if err := loadConcepts(collectEndpointIDs(page)); err != nil {
			return out, fmt.Errorf("relation_consolidate: concept load: %w", err)
		}
		byRelation := map[uuid.UUID][]uuid.UUID{}
		for _, a := range page {
			assignment := assignFor(assertrepo.GroupKey{
				SubjectConceptID: a.SubjectConceptID,
				ObjectConceptID:  a.ObjectConceptID,
				PredicateNorm:    a.PredicateNorm,
			})
			canonicalID := CanonicalRelationID(in.TenantID, a.SubjectConceptID, a.ObjectConceptID, assignment.RelationType)
			byRelation[canonicalID] = append(byRelation[canonicalID], a.ID)
		}
		for canonicalID, ids := range byRelation {
			if err := deps.Assertions.LinkToCanonical(ctx, nil, in.TenantID, ids, canonicalID, in.MappingVersion); err != nil {
				return out, fmt.Errorf("relation_consolidate: link batch: %w", err)
			}
			out.Linked += int64(len(ids))
		}
		afterID = page[len(page)-1].ID
		if len(page) < linkBatch {
			break
		}
	}

	// Stage 5: drop relations no current group produced.
	progress("cleanup", 95)
	stale, err := deps.Relations.DeleteStale(ctx, nil, in.TenantID, in.MappingVersion, passStart)
	if err != nil {
		return out, fmt.Errorf("relation_consolidate: delete stale: %w", err)
	}
	out.StaleDeleted = stale

	progress("done", 100)
	log.Info("consolidation pass done",
		"usages", out.Usages,
		"clusters", out.Clusters,
		"groups", out.Groups,
		"relations", out.Relations,
		"validated", out.Validated,
		"conflicted", out.Conflicted,
		"rejected", out.Rejected,
		"degraded_groups", out.DegradedGroups,
		"failed_groups", out.FailedGroups,
		"linked", out.Linked,
		"stale_deleted", out.StaleDeleted,
	)
	return out, nil
}

// scoreGroup computes the level A statistics for one group. Scalar
// aggregates come from SQL; the quality average and evidence sample come
// from a capped row fetch.
func scoreGroup(ctx context.Context, deps RelationConsolidateDeps, tenantID string, k assertrepo.GroupKey, concepts map[uuid.UUID]conceptMeta, rowCap int, assignment TypeAssignment) (levelA, error) {
	la := levelA{
		key:          k,
		clusterID:    assignment.ClusterID,
		relationType: assignment.RelationType,
		clusterConf:  assignment.Confidence,
	}

	stats, err := deps.Assertions.PairStatsForNorms(ctx, nil, tenantID, k.SubjectConceptID, k.ObjectConceptID, []string{k.PredicateNorm})
	if err != nil {
		return la, err
	}
	la.count = stats.AssertionCount

	rows, err := deps.Assertions.ListGroupRows(ctx, nil, tenantID, k, rowCap)
	if err != nil {
		return la, err
	}
	subjectName := concepts[k.SubjectConceptID].name
	objectName := concepts[k.ObjectConceptID].name
	sum := 0.0
	docSeen := map[string]bool{}
	for _, a := range rows {
		sum += AssertionQuality(a, subjectName, objectName, deps.Penalties)
		if a.Confidence > la.bestConf || la.bestEvidence == "" {
			la.bestConf = a.Confidence
			la.bestEvidence = a.EvidenceText
		}
		if !docSeen[a.SourceDocumentID] && len(la.docIDs) < 20 {
			docSeen[a.SourceDocumentID] = true
			la.docIDs = append(la.docIDs, a.SourceDocumentID)
		}
	}
	if len(rows) > 0 {
		la.qualityMean = sum / float64(len(rows))
	}
	if stats.AssertionCount == 1 && len(rows) == 1 {
		a := rows[0]
		la.single = &SingleAssertionFacts{
			Confidence:    a.Confidence,
			CrossSentence: a.CrossSentence,
			Negated:       a.Negated,
			Hedged:        a.Hedged,
			Definitional:  HasDefinitionalCue(a.EvidenceText),
		}
	}
	return la, nil
}

type pairResult struct {
	relations  int
	validated  int
	conflicted int
	rejected   int
	degraded   int
	failed     int
}

// consolidatePair rolls the pair's level A groups up by relation type and
// upserts one canonical relation per type. A failed upsert is logged and
// counted, not fatal; the group is recomputed from source on the next pass.
func consolidatePair(ctx context.Context, deps RelationConsolidateDeps, log *logger.Logger, in RelationConsolidateInput, subject, object uuid.UUID, groups []levelA) pairResult {
	res := pairResult{}

	byType := map[string][]levelA{}
	for _, g := range groups {
		byType[g.relationType] = append(byType[g.relationType], g)
		if g.relationType == relations.TypeUnknown {
			res.degraded++
		}
	}

	for relType, members := range byType {
		norms := make([]string, 0, len(members))
		for _, m := range members {
			norms = append(norms, m.key.PredicateNorm)
		}
		stats, err := deps.Assertions.PairStatsForNorms(ctx, nil, in.TenantID, subject, object, norms)
		if err != nil {
			log.Warn("pair rollup stats failed (continuing)", "subject", subject, "object", object, "type", relType, "error", err)
			res.failed++
			continue
		}
		if stats.AssertionCount == 0 {
			continue
		}

		// Weighted quality across the contributing groups, clipped only
		// after averaging.
		totalW := 0
		qualitySum := 0.0
		clusterConfSum := 0.0
		bestEvidence := ""
		bestConf := -1.0
		clusterSet := map[string]bool{}
		docSet := map[string]bool{}
		var single *SingleAssertionFacts
		for _, m := range members {
			w := m.count
			if w <= 0 {
				w = 1
			}
			totalW += w
			qualitySum += m.qualityMean * float64(w)
			clusterConfSum += m.clusterConf * float64(w)
			if m.bestConf > bestConf {
				bestConf = m.bestConf
				bestEvidence = m.bestEvidence
			}
			if m.clusterID != "" {
				clusterSet[m.clusterID] = true
			}
			for _, d := range m.docIDs {
				docSet[d] = true
			}
			if stats.AssertionCount == 1 {
				single = m.single
			}
		}
		quality := clip01(qualitySum / float64(totalW))
		clusterConf := clip01(clusterConfSum / float64(totalW))

		rollup := RollupStats{
			AssertionCount: stats.AssertionCount,
			DocumentCount:  stats.DocumentCount,
			ChunkCount:     stats.ChunkCount,
			ConfidenceMean: clip01(stats.ConfidenceMean),
			ConfidenceP50:  clip01(stats.ConfidenceP50),
			QualityScore:   quality,
			NegatedRatio:   stats.NegatedRatio,
			FirstSeenAt:    stats.FirstSeenAt,
			LastSeenAt:     stats.LastSeenAt,
		}
		maturity := ClassifyMaturity(rollup, single)

		sort.Slice(members, func(i, j int) bool {
			if members[i].count != members[j].count {
				return members[i].count > members[j].count
			}
			return members[i].key.PredicateNorm < members[j].key.PredicateNorm
		})
		topPredicates := make([]string, 0, 5)
		for _, m := range members {
			if len(topPredicates) == 5 {
				break
			}
			topPredicates = append(topPredicates, m.key.PredicateNorm)
		}
		clusterIDs := make([]string, 0, len(clusterSet))
		for id := range clusterSet {
			clusterIDs = append(clusterIDs, id)
		}
		sort.Strings(clusterIDs)
		docIDs := make([]string, 0, len(docSet))
		for d := range docSet {
			docIDs = append(docIDs, d)
		}
		sort.Strings(docIDs)
		if len(docIDs) > 20 {
			docIDs = docIDs[:20]
		}

		topJSON, _ := json.Marshal(topPredicates)
		clustersJSON, _ := json.Marshal(clusterIDs)
		docsJSON, _ := json.Marshal(docIDs)

		row := &domain.CanonicalRelation{
			ID:                CanonicalRelationID(in.TenantID, subject, object, relType),
			TenantID:          in.TenantID,
			SubjectConceptID:  subject,
			ObjectConceptID:   object,
			RelationType:      relType,
			AssertionCount:    rollup.AssertionCount,
			DocumentCount:     rollup.DocumentCount,
			ChunkCount:        rollup.ChunkCount,
			ConfidenceMean:    rollup.ConfidenceMean,
			ConfidenceP50:     rollup.ConfidenceP50,
			QualityScore:      rollup.QualityScore,
			NegatedRatio:      rollup.NegatedRatio,
			Maturity:          maturity,
			FirstSeenAt:       rollup.FirstSeenAt,
			LastSeenAt:        rollup.LastSeenAt,
			TopPredicates:     datatypes.JSON(topJSON),
			ClusterIDs:        datatypes.JSON(clustersJSON),
			ClusterConfidence: clusterConf,
			EvidenceSample:    bestEvidence,
			SourceDocumentIDs: datatypes.JSON(docsJSON),
			MappingVersion:    in.MappingVersion,
		}
		if err := deps.Relations.Upsert(ctx, nil, row); err != nil {
			log.Warn("canonical relation upsert failed (continuing)", "relation_id", row.ID, "error", err)
			res.failed++
			continue
		}
		res.relations++
		switch maturity {
		case relations.MaturityValidated:
			res.validated++
		case relations.MaturityConflicted:
			res.conflicted++
		case relations.MaturityRejected:
			res.rejected++
		}
	}
	return res
}

func collectEndpointIDs(rows []*domain.RawAssertion) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(rows)*2)
	for _, a := range rows {
		ids = append(ids, a.SubjectConceptID, a.ObjectConceptID)
	}
	return ids
}
