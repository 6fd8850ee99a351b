package chain_detect

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/fredpottier/kbgraph/internal/data/graph"
	relrepo "github.com/fredpottier/kbgraph/internal/data/repos/relations"
	"github.com/fredpottier/kbgraph/internal/domain/relations"
	jobrt "github.com/fredpottier/kbgraph/internal/jobs/runtime"
	"github.com/fredpottier/kbgraph/internal/modules/consolidation/steps"
)

const projectionPage = 200

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	if p == nil || p.db == nil || p.log == nil || p.concepts == nil || p.relations == nil || p.chains == nil {
		jc.Fail("validate", fmt.Errorf("chain_detect: pipeline not configured"))
		return nil
	}

	tenantID := jc.Job.TenantID
	mappingVersion := jc.ParamString("mapping_version")
	if mappingVersion == "" {
		jc.Fail("validate", fmt.Errorf("missing mapping_version"))
		return nil
	}

	out, err := steps.ChainDetect(jc.Ctx, steps.ChainDetectDeps{
		DB:           p.db,
		Log:          p.log,
		Relations:    p.relations,
		Chains:       p.chains,
		HubDegreeMax: p.hubDegreeMax,
	}, steps.ChainDetectInput{
		TenantID:           tenantID,
		MappingVersion:     mappingVersion,
		MinInformativeness: jc.ParamFloat("min_informativeness", p.minInformativeness),
		Progress: func(stage string, pct int) {
			// Detection owns 0-80; projection takes the rest.
			jc.Progress(stage, pct*80/100, "")
		},
	})
	if err != nil {
		jc.Fail("detect", err)
		return nil
	}

	if p.graph != nil {
		jc.Progress("project", 85, "Projecting relations and chains to Neo4j")
		if err := p.project(jc, tenantID); err != nil {
			jc.Fail("project", err)
			return nil
		}
	}

	jc.Succeed("done", out)
	return nil
}

// project mirrors the tenant's validated relations and freshly built chains
// into Neo4j, page by page.
func (p *Pipeline) project(jc *jobrt.Context, tenantID string) error {
	var afterID uuid.UUID
	filter := relrepo.ListFilter{Maturity: relations.MaturityValidated}
	for {
		page, err := p.relations.ListByTenant(jc.Ctx, nil, tenantID, filter, afterID, projectionPage)
		if err != nil {
			return fmt.Errorf("relation page: %w", err)
		}
		if len(page) == 0 {
			break
		}

		idSet := map[uuid.UUID]bool{}
		ids := make([]uuid.UUID, 0, len(page)*2)
		for _, r := range page {
			for _, id := range []uuid.UUID{r.SubjectConceptID, r.ObjectConceptID} {
				if !idSet[id] {
					idSet[id] = true
					ids = append(ids, id)
				}
			}
		}
		concepts, err := p.concepts.GetByIDs(jc.Ctx, nil, ids)
		if err != nil {
			return fmt.Errorf("concept fetch: %w", err)
		}
		if err := graph.UpsertRelationGraph(jc.Ctx, p.graph, p.log, tenantID, concepts, page); err != nil {
			return err
		}

		afterID = page[len(page)-1].ID
		if len(page) < projectionPage {
			break
		}
	}

	if err := graph.DeleteTenantChains(jc.Ctx, p.graph, tenantID); err != nil {
		return err
	}

	afterID = uuid.Nil
	for {
		page, err := p.chains.ListByTenant(jc.Ctx, nil, tenantID, relrepo.ChainFilter{}, afterID, projectionPage)
		if err != nil {
			return fmt.Errorf("chain page: %w", err)
		}
		if len(page) == 0 {
			break
		}

		paths := make(map[string][]string, len(page))
		for _, ch := range page {
			var path []string
			_ = json.Unmarshal(ch.ConceptPath, &path)
			paths[ch.ID.String()] = path
		}
		if err := graph.UpsertChainGraph(jc.Ctx, p.graph, p.log, tenantID, page, paths); err != nil {
			return err
		}

		afterID = page[len(page)-1].ID
		if len(page) < projectionPage {
			break
		}
	}
	return nil
}
