package assertion_ingest

import (
	"encoding/json"
	"fmt"

	jobrt "github.com/fredpottier/kbgraph/internal/jobs/runtime"
	"github.com/fredpottier/kbgraph/internal/modules/consolidation/steps"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	if p == nil || p.db == nil || p.log == nil || p.concepts == nil || p.mentions == nil || p.assertions == nil {
		jc.Fail("validate", fmt.Errorf("assertion_ingest: pipeline not configured"))
		return nil
	}

	// The run params carry the whole extraction batch.
	var in steps.AssertionIngestInput
	if b, err := json.Marshal(jc.Params()); err == nil {
		_ = json.Unmarshal(b, &in)
	}
	in.TenantID = jc.Job.TenantID
	if in.SourceDocumentID == "" || in.SourceChunkID == "" {
		jc.Fail("validate", fmt.Errorf("missing source_document_id or source_chunk_id"))
		return nil
	}
	if len(in.Catalog) == 0 {
		jc.Fail("validate", fmt.Errorf("empty concept catalog"))
		return nil
	}

	jc.Progress("ingest", 10, "Validating candidates against catalog")

	out, err := steps.AssertionIngest(jc.Ctx, steps.AssertionIngestDeps{
		DB:         p.db,
		Log:        p.log,
		Concepts:   p.concepts,
		Mentions:   p.mentions,
		Assertions: p.assertions,
	}, in)
	if err != nil {
		jc.Fail("ingest", err)
		return nil
	}

	jc.Succeed("done", out)
	return nil
}
