package relation_consolidate

import (
	"fmt"
	"time"

	jobrt "github.com/fredpottier/kbgraph/internal/jobs/runtime"
	"github.com/fredpottier/kbgraph/internal/modules/consolidation/steps"
	"github.com/fredpottier/kbgraph/internal/platform/redisdb"
)

// leaseTTL outlives any single consolidation stage; the lease is refreshed
// on every progress callback.
const leaseTTL = 10 * time.Minute

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	if p == nil || p.db == nil || p.log == nil || p.concepts == nil || p.assertions == nil || p.relations == nil || p.classifier == nil {
		jc.Fail("validate", fmt.Errorf("relation_consolidate: pipeline not configured"))
		return nil
	}

	tenantID := jc.Job.TenantID
	mappingVersion := jc.ParamString("mapping_version")
	if mappingVersion == "" {
		jc.Fail("validate", fmt.Errorf("missing mapping_version"))
		return nil
	}

	// Only one consolidation pass per tenant at a time. Without Redis the
	// single-process worker loop provides the same guarantee.
	var lease *redisdb.Lease
	if p.redis != nil {
		l, err := p.redis.AcquireLease(jc.Ctx, "consolidate", tenantID, leaseTTL)
		if err != nil {
			jc.Fail("lease", err)
			return nil
		}
		lease = l
		defer lease.Release(jc.Ctx)
	}

	// An explicit batch_size caps both the group scan page and the link
	// batch, for reruns over tenants that dwarf the defaults.
	batchSize := jc.ParamInt("batch_size", 0)

	out, err := steps.RelationConsolidate(jc.Ctx, steps.RelationConsolidateDeps{
		DB:            p.db,
		Log:           p.log,
		Concepts:      p.concepts,
		Assertions:    p.assertions,
		Relations:     p.relations,
		Classifier:    p.classifier,
		Penalties:     steps.DefaultPenaltyConfig(),
		Workers:       p.workers,
		PageSize:      batchSize,
		LinkBatchSize: batchSize,
	}, steps.RelationConsolidateInput{
		TenantID:       tenantID,
		MappingVersion: mappingVersion,
		PurgeFirst:     jc.ParamBool("purge_first"),
		Progress: func(stage string, pct int) {
			if lease != nil {
				if err := lease.Refresh(jc.Ctx); err != nil {
					p.log.Warn("lease refresh failed (continuing)", "tenant", tenantID, "error", err)
				}
			}
			jc.Progress(stage, pct, "")
		},
	})
	if err != nil {
		jc.Fail("consolidate", err)
		return nil
	}

	jc.Succeed("done", out)
	return nil
}
