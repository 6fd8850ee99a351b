package runtime

import (
	"context"
	"testing"

	"gorm.io/datatypes"

	"github.com/fredpottier/kbgraph/internal/domain"
)

func paramContext(t *testing.T, params string) *Context {
	t.Helper()
	job := &domain.JobRun{Params: datatypes.JSON([]byte(params))}
	return NewContext(context.Background(), nil, job, nil, nil, nil)
}

func TestContextParamHelpers(t *testing.T) {
	jc := paramContext(t, `{"mapping_version":"v3","purge_first":true,"batch_size":250,"min_informativeness":0.4}`)

	if got := jc.ParamString("mapping_version"); got != "v3" {
		t.Fatalf("ParamString: got %q", got)
	}
	if !jc.ParamBool("purge_first") {
		t.Fatalf("ParamBool: expected true")
	}
	if got := jc.ParamInt("batch_size", 0); got != 250 {
		t.Fatalf("ParamInt: got %d", got)
	}
	if got := jc.ParamFloat("min_informativeness", 0.5); got != 0.4 {
		t.Fatalf("ParamFloat: got %v", got)
	}
}

func TestContextParamDefaults(t *testing.T) {
	jc := paramContext(t, `{"batch_size":"large"}`)

	// Missing or untyped values fall back to the caller's default.
	if got := jc.ParamInt("batch_size", 500); got != 500 {
		t.Fatalf("ParamInt on non-numeric: got %d", got)
	}
	if got := jc.ParamInt("page_size", 100); got != 100 {
		t.Fatalf("ParamInt on missing key: got %d", got)
	}
	if got := jc.ParamFloat("floor", 0.5); got != 0.5 {
		t.Fatalf("ParamFloat on missing key: got %v", got)
	}
	if jc.ParamBool("purge_first") {
		t.Fatalf("ParamBool on missing key: expected false")
	}
}

func TestContextMalformedParams(t *testing.T) {
	jc := paramContext(t, `{not json`)

	if got := jc.Params(); len(got) != 0 {
		t.Fatalf("expected empty params, got %v", got)
	}
	if got := jc.ParamString("mapping_version"); got != "" {
		t.Fatalf("ParamString on malformed params: got %q", got)
	}
}
