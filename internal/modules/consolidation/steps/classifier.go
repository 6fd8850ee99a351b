package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/fredpottier/kbgraph/internal/data/repos"
	"github.com/fredpottier/kbgraph/internal/domain"
	"github.com/fredpottier/kbgraph/internal/domain/relations"
	"github.com/fredpottier/kbgraph/internal/modules/consolidation/prompts"
	"github.com/fredpottier/kbgraph/internal/platform/logger"
	"github.com/fredpottier/kbgraph/internal/platform/openai"
)

// PredicateUsage is one distinct (normalized predicate, subject type,
// object type) combination observed in the evidence log.
type PredicateUsage struct {
	Context       string
	PredicateNorm string
	SubjectType   string
	ObjectType    string
	Count         int
}

// TypeAssignment is the cluster-level typing decision for one usage.
type TypeAssignment struct {
	ClusterID    string
	RelationType string
	Confidence   float64
}

// Embedder is the vectorizer contract. Swappable so tests can run without a
// model endpoint.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// ClusterLabeler labels whole clusters with a relation type. The production
// implementation is the LLM; it is never called per assertion.
type ClusterLabeler interface {
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error)
}

type PredicateTypeClassifier struct {
	Log    *logger.Logger
	Emb    Embedder
	AI     ClusterLabeler
	Labels repos.ClusterLabelRepo

	// MinSim is the cosine threshold for joining an existing cluster.
	MinSim float64
	// EmbedBatch caps one embeddings request.
	EmbedBatch int
	// LabelBatch caps how many clusters one labeling call carries.
	LabelBatch int
}

func NewPredicateTypeClassifier(log *logger.Logger, ai openai.Client, labels repos.ClusterLabelRepo, minSim float64) *PredicateTypeClassifier {
	return &PredicateTypeClassifier{
		Log:        log.With("component", "PredicateTypeClassifier"),
		Emb:        ai,
		AI:         ai,
		Labels:     labels,
		MinSim:     minSim,
		EmbedBatch: 128,
		LabelBatch: 40,
	}
}

type cluster struct {
	id       string
	members  []int // usage indexes
	centroid []float32
}

// ClassifyUsages clusters the usages by embedding similarity, labels each
// cluster once (cache first, model for misses), and returns an assignment
// per usage context. Classifier unavailability degrades every unlabeled
// usage to UNKNOWN rather than failing the pass; evidence is never dropped
// for lack of a type.
func (c *PredicateTypeClassifier) ClassifyUsages(ctx context.Context, tenantID, mappingVersion string, usages []PredicateUsage) (map[string]TypeAssignment, error) {
	out := make(map[string]TypeAssignment, len(usages))
	if len(usages) == 0 {
		return out, nil
	}

	// Stable input order makes clustering, cluster ids, and therefore the
	// whole pass deterministic for a given usage set.
	ordered := make([]PredicateUsage, len(usages))
	copy(ordered, usages)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Context < ordered[j].Context })

	vecs, err := c.embedAll(ctx, ordered)
	if err != nil {
		c.Log.Warn("usage embedding failed, typing degrades to UNKNOWN (continuing)", "tenant", tenantID, "error", err)
		// No vectors means no clustering: each context becomes its own
		// singleton cluster so downstream grouping stays addressable.
		for _, u := range ordered {
			out[u.Context] = TypeAssignment{
				ClusterID:    ClusterIDFor(mappingVersion, []string{u.Context}),
				RelationType: relations.TypeUnknown,
				Confidence:   0,
			}
		}
		return out, nil
	}

	clusters := c.cluster(ordered, vecs, mappingVersion)

	labels, degraded := c.labelClusters(ctx, tenantID, mappingVersion, ordered, clusters)
	if degraded > 0 {
		c.Log.Warn("cluster labeling partially degraded (continuing)", "tenant", tenantID, "unknown_clusters", degraded)
	}

	for _, cl := range clusters {
		la, ok := labels[cl.id]
		if !ok {
			la = TypeAssignment{ClusterID: cl.id, RelationType: relations.TypeUnknown, Confidence: 0}
		}
		for _, idx := range cl.members {
			out[ordered[idx].Context] = la
		}
	}
	return out, nil
}

func (c *PredicateTypeClassifier) embedAll(ctx context.Context, usages []PredicateUsage) ([][]float32, error) {
	batch := c.EmbedBatch
	if batch <= 0 {
		batch = 128
	}
	vecs := make([][]float32, 0, len(usages))
	for start := 0; start < len(usages); start += batch {
		end := start + batch
		if end > len(usages) {
			end = len(usages)
		}
		inputs := make([]string, 0, end-start)
		for _, u := range usages[start:end] {
			inputs = append(inputs, u.Context)
		}
		got, err := c.Emb.Embed(ctx, inputs)
		if err != nil {
			return nil, err
		}
		if len(got) != len(inputs) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d inputs", len(got), len(inputs))
		}
		vecs = append(vecs, got...)
	}
	return vecs, nil
}

// cluster greedily assigns each usage to the first cluster whose centroid
// clears MinSim, in lexicographic usage order. Cheap, deterministic, and
// good enough because predicate usages are short, templated strings.
func (c *PredicateTypeClassifier) cluster(usages []PredicateUsage, vecs [][]float32, mappingVersion string) []cluster {
	var clusters []cluster
	for i := range usages {
		placed := false
		for ci := range clusters {
			if cosine(clusters[ci].centroid, vecs[i]) >= c.MinSim {
				clusters[ci].members = append(clusters[ci].members, i)
				clusters[ci].centroid = meanVec(clusters[ci].centroid, len(clusters[ci].members)-1, vecs[i])
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, cluster{
				members:  []int{i},
				centroid: append([]float32(nil), vecs[i]...),
			})
		}
	}
	for ci := range clusters {
		contexts := make([]string, 0, len(clusters[ci].members))
		for _, idx := range clusters[ci].members {
			contexts = append(contexts, usages[idx].Context)
		}
		clusters[ci].id = ClusterIDFor(mappingVersion, contexts)
	}
	return clusters
}

func (c *PredicateTypeClassifier) labelClusters(ctx context.Context, tenantID, mappingVersion string, usages []PredicateUsage, clusters []cluster) (map[string]TypeAssignment, int) {
	labels := make(map[string]TypeAssignment, len(clusters))

	ids := make([]string, 0, len(clusters))
	for _, cl := range clusters {
		ids = append(ids, cl.id)
	}
	if c.Labels != nil {
		cached, err := c.Labels.GetByClusterIDs(ctx, nil, tenantID, mappingVersion, ids)
		if err != nil {
			c.Log.Warn("cluster label cache read failed (continuing)", "tenant", tenantID, "error", err)
		}
		for _, row := range cached {
			labels[row.ClusterID] = TypeAssignment{ClusterID: row.ClusterID, RelationType: row.RelationType, Confidence: row.Confidence}
		}
	}

	var misses []cluster
	for _, cl := range clusters {
		if _, ok := labels[cl.id]; !ok {
			misses = append(misses, cl)
		}
	}
	if len(misses) == 0 {
		return labels, 0
	}

	degraded := 0
	batch := c.LabelBatch
	if batch <= 0 {
		batch = 40
	}
	var toCache []*domain.PredicateClusterLabel
	for start := 0; start < len(misses); start += batch {
		end := start + batch
		if end > len(misses) {
			end = len(misses)
		}
		got, err := c.labelBatch(ctx, usages, misses[start:end])
		if err != nil {
			// The pass completes with UNKNOWN for these clusters and retries
			// labeling on the next run since UNKNOWNs are not cached.
			c.Log.Warn("cluster labeling call failed (continuing)", "tenant", tenantID, "error", err)
			for _, cl := range misses[start:end] {
				labels[cl.id] = TypeAssignment{ClusterID: cl.id, RelationType: relations.TypeUnknown, Confidence: 0}
				degraded++
			}
			continue
		}
		for _, cl := range misses[start:end] {
			la, ok := got[cl.id]
			if !ok {
				la = TypeAssignment{ClusterID: cl.id, RelationType: relations.TypeUnknown, Confidence: 0}
				degraded++
			}
			labels[cl.id] = la
			if la.RelationType != relations.TypeUnknown {
				toCache = append(toCache, &domain.PredicateClusterLabel{
					ID:             uuid.New(),
					TenantID:       tenantID,
					MappingVersion: mappingVersion,
					ClusterID:      cl.id,
					RelationType:   la.RelationType,
					Confidence:     la.Confidence,
					Members:        memberSample(usages, cl, 8),
				})
			}
		}
	}

	if c.Labels != nil && len(toCache) > 0 {
		if err := c.Labels.UpsertBatch(ctx, nil, toCache); err != nil {
			c.Log.Warn("cluster label cache write failed (continuing)", "tenant", tenantID, "error", err)
		}
	}
	return labels, degraded
}

func (c *PredicateTypeClassifier) labelBatch(ctx context.Context, usages []PredicateUsage, batch []cluster) (map[string]TypeAssignment, error) {
	if c.AI == nil {
		return nil, fmt.Errorf("no labeler configured")
	}

	type clusterJSON struct {
		ClusterID string   `json:"cluster_id"`
		Members   []string `json:"members"`
		Count     int      `json:"count"`
	}
	arr := make([]clusterJSON, 0, len(batch))
	for _, cl := range batch {
		cj := clusterJSON{ClusterID: cl.id}
		for _, idx := range cl.members {
			cj.Members = append(cj.Members, usages[idx].Context)
			cj.Count += usages[idx].Count
		}
		sort.Strings(cj.Members)
		if len(cj.Members) > 12 {
			cj.Members = cj.Members[:12]
		}
		arr = append(arr, cj)
	}
	clustersJSON, _ := json.Marshal(map[string]any{"clusters": arr})

	p, err := prompts.Build(prompts.PromptPredicateClusterTypes, prompts.Input{
		ClustersJSON:      string(clustersJSON),
		RelationTypesCSV:  strings.Join(relations.AllTypes(), ", "),
		VocabularyVersion: "1",
	})
	if err != nil {
		return nil, err
	}
	obj, err := c.AI.GenerateJSON(ctx, p.System, p.User, p.SchemaName, p.Schema)
	if err != nil {
		return nil, err
	}
	return parseClusterAssignments(obj), nil
}

// parseClusterAssignments is the strict rejection path for the model's JSON:
// a malformed item or an out-of-vocabulary type becomes UNKNOWN, never a
// crash and never a fabricated type.
func parseClusterAssignments(obj map[string]any) map[string]TypeAssignment {
	out := map[string]TypeAssignment{}
	raw, ok := obj["assignments"].([]any)
	if !ok {
		return out
	}
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		clusterID, _ := m["cluster_id"].(string)
		if strings.TrimSpace(clusterID) == "" {
			continue
		}
		relType, _ := m["relation_type"].(string)
		relType = strings.ToUpper(strings.TrimSpace(relType))
		conf, _ := m["confidence"].(float64)
		if !relations.ValidType(relType) {
			relType = relations.TypeUnknown
			conf = 0
		}
		out[clusterID] = TypeAssignment{
			ClusterID:    clusterID,
			RelationType: relType,
			Confidence:   clip01(conf),
		}
	}
	return out
}

func memberSample(usages []PredicateUsage, cl cluster, max int) string {
	contexts := make([]string, 0, len(cl.members))
	for _, idx := range cl.members {
		contexts = append(contexts, usages[idx].Context)
	}
	sort.Strings(contexts)
	if len(contexts) > max {
		contexts = contexts[:max]
	}
	return strings.Join(contexts, " | ")
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// meanVec folds one new vector into a running centroid that previously
// covered n members.
func meanVec(centroid []float32, n int, v []float32) []float32 {
	if len(centroid) != len(v) {
		return centroid
	}
	out := make([]float32, len(centroid))
	fn := float32(n)
	for i := range centroid {
		out[i] = (centroid[i]*fn + v[i]) / (fn + 1)
	}
	return out
}
