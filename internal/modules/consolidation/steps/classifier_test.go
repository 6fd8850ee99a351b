package steps

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fredpottier/kbgraph/internal/domain"
	"github.com/fredpottier/kbgraph/internal/domain/relations"
	"github.com/fredpottier/kbgraph/internal/platform/logger"
)

// fakeEmbedder returns a fixed vector per input so clustering outcomes are
// controlled by the test, not by a model.
type fakeEmbedder struct {
	vectors map[string][]float32
	fail    bool
	calls   int
}

func (f *fakeEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	f.calls++
	if f.fail {
		return nil, fmt.Errorf("embedding endpoint unavailable")
	}
	out := make([][]float32, 0, len(inputs))
	for _, in := range inputs {
		v, ok := f.vectors[in]
		if !ok {
			v = []float32{0, 0, 1}
		}
		out = append(out, v)
	}
	return out, nil
}

type fakeLabeler struct {
	response map[string]any
	err      error
	calls    int
}

func (f *fakeLabeler) GenerateJSON(context.Context, string, string, string, map[string]any) (map[string]any, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

// fakeLabelCache is an in-memory stand-in for the predicate cluster label
// repo.
type fakeLabelCache struct {
	rows map[string]*domain.PredicateClusterLabel
}

func newFakeLabelCache() *fakeLabelCache {
	return &fakeLabelCache{rows: map[string]*domain.PredicateClusterLabel{}}
}

func (f *fakeLabelCache) GetByClusterIDs(_ context.Context, _ *gorm.DB, _, _ string, clusterIDs []string) ([]*domain.PredicateClusterLabel, error) {
	var out []*domain.PredicateClusterLabel
	for _, id := range clusterIDs {
		if row, ok := f.rows[id]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeLabelCache) UpsertBatch(_ context.Context, _ *gorm.DB, rows []*domain.PredicateClusterLabel) error {
	for _, row := range rows {
		f.rows[row.ClusterID] = row
	}
	return nil
}

func testClassifier(t *testing.T, emb Embedder, ai ClusterLabeler, cache *fakeLabelCache) *PredicateTypeClassifier {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return &PredicateTypeClassifier{
		Log:        log,
		Emb:        emb,
		AI:         ai,
		Labels:     cache,
		MinSim:     0.9,
		EmbedBatch: 128,
		LabelBatch: 40,
	}
}

func testUsages() []PredicateUsage {
	return []PredicateUsage{
		{Context: "depends on [technology -> technology]", PredicateNorm: "depends on", SubjectType: "technology", ObjectType: "technology", Count: 4},
		{Context: "requires [technology -> technology]", PredicateNorm: "requires", SubjectType: "technology", ObjectType: "technology", Count: 2},
		{Context: "causes [problem -> problem]", PredicateNorm: "causes", SubjectType: "problem", ObjectType: "problem", Count: 1},
	}
}

func assignmentsResponse(clusterToType map[string]string) map[string]any {
	arr := make([]any, 0, len(clusterToType))
	for id, rt := range clusterToType {
		arr = append(arr, map[string]any{"cluster_id": id, "relation_type": rt, "confidence": 0.9})
	}
	return map[string]any{"assignments": arr, "schema_version": float64(1)}
}

func TestClassifyUsagesClustersAndLabels(t *testing.T) {
	usages := testUsages()
	// depends-on and requires share a vector, causes gets an orthogonal one.
	emb := &fakeEmbedder{vectors: map[string][]float32{
		usages[0].Context: {1, 0, 0},
		usages[1].Context: {1, 0, 0},
		usages[2].Context: {0, 1, 0},
	}}

	depCluster := ClusterIDFor("v1", []string{usages[0].Context, usages[1].Context})
	causeCluster := ClusterIDFor("v1", []string{usages[2].Context})
	ai := &fakeLabeler{response: assignmentsResponse(map[string]string{
		depCluster:   "REQUIRES",
		causeCluster: "CAUSES",
	})}

	c := testClassifier(t, emb, ai, newFakeLabelCache())
	got, err := c.ClassifyUsages(context.Background(), "t1", "v1", usages)
	if err != nil {
		t.Fatalf("ClassifyUsages: %v", err)
	}
	if got[usages[0].Context].RelationType != "REQUIRES" || got[usages[1].Context].RelationType != "REQUIRES" {
		t.Fatalf("co-clustered usages did not share the cluster label: %#v", got)
	}
	if got[usages[2].Context].RelationType != "CAUSES" {
		t.Fatalf("expected CAUSES for the isolated usage, got %#v", got[usages[2].Context])
	}
	if got[usages[0].Context].ClusterID != depCluster {
		t.Fatalf("cluster id mismatch: got %s want %s", got[usages[0].Context].ClusterID, depCluster)
	}
}

func TestClassifyUsagesEmbeddingFailureDegradesToUnknown(t *testing.T) {
	usages := testUsages()
	c := testClassifier(t, &fakeEmbedder{fail: true}, &fakeLabeler{}, newFakeLabelCache())
	got, err := c.ClassifyUsages(context.Background(), "t1", "v1", usages)
	if err != nil {
		t.Fatalf("embedding failure must not fail the pass: %v", err)
	}
	ids := map[string]bool{}
	for _, u := range usages {
		a := got[u.Context]
		if a.RelationType != relations.TypeUnknown {
			t.Fatalf("expected UNKNOWN for %s, got %s", u.Context, a.RelationType)
		}
		// Degraded usages keep singleton cluster ids so groups still key
		// on something stable.
		if a.ClusterID != ClusterIDFor("v1", []string{u.Context}) {
			t.Fatalf("expected singleton cluster id for %s, got %q", u.Context, a.ClusterID)
		}
		if ids[a.ClusterID] {
			t.Fatalf("cluster id %s assigned twice", a.ClusterID)
		}
		ids[a.ClusterID] = true
	}
}

func TestClassifyUsagesLabelerFailureDegradesToUnknown(t *testing.T) {
	usages := testUsages()[:1]
	emb := &fakeEmbedder{vectors: map[string][]float32{usages[0].Context: {1, 0, 0}}}
	cache := newFakeLabelCache()
	c := testClassifier(t, emb, &fakeLabeler{err: fmt.Errorf("model down")}, cache)

	got, err := c.ClassifyUsages(context.Background(), "t1", "v1", usages)
	if err != nil {
		t.Fatalf("labeler failure must not fail the pass: %v", err)
	}
	if got[usages[0].Context].RelationType != relations.TypeUnknown {
		t.Fatalf("expected UNKNOWN, got %s", got[usages[0].Context].RelationType)
	}
	if len(cache.rows) != 0 {
		t.Fatalf("UNKNOWN labels must never be cached")
	}
}

func TestClassifyUsagesMalformedAssignmentBecomesUnknown(t *testing.T) {
	usages := testUsages()[:1]
	emb := &fakeEmbedder{vectors: map[string][]float32{usages[0].Context: {1, 0, 0}}}
	clusterID := ClusterIDFor("v1", []string{usages[0].Context})
	// Out-of-vocabulary type must be rejected, not stored.
	ai := &fakeLabeler{response: assignmentsResponse(map[string]string{clusterID: "BEST_FRIENDS_WITH"})}

	c := testClassifier(t, emb, ai, newFakeLabelCache())
	got, err := c.ClassifyUsages(context.Background(), "t1", "v1", usages)
	if err != nil {
		t.Fatalf("ClassifyUsages: %v", err)
	}
	if got[usages[0].Context].RelationType != relations.TypeUnknown {
		t.Fatalf("fabricated type accepted: %#v", got[usages[0].Context])
	}
}

func TestClassifyUsagesCacheHitSkipsModel(t *testing.T) {
	usages := testUsages()[:1]
	emb := &fakeEmbedder{vectors: map[string][]float32{usages[0].Context: {1, 0, 0}}}
	clusterID := ClusterIDFor("v1", []string{usages[0].Context})
	cache := newFakeLabelCache()
	cache.rows[clusterID] = &domain.PredicateClusterLabel{
		ID: uuid.New(), TenantID: "t1", MappingVersion: "v1",
		ClusterID: clusterID, RelationType: "REQUIRES", Confidence: 0.88,
	}
	ai := &fakeLabeler{err: fmt.Errorf("should not be called")}

	c := testClassifier(t, emb, ai, cache)
	got, err := c.ClassifyUsages(context.Background(), "t1", "v1", usages)
	if err != nil {
		t.Fatalf("ClassifyUsages: %v", err)
	}
	if ai.calls != 0 {
		t.Fatalf("cached cluster still hit the model")
	}
	if got[usages[0].Context].RelationType != "REQUIRES" {
		t.Fatalf("cached label not applied: %#v", got[usages[0].Context])
	}
}
