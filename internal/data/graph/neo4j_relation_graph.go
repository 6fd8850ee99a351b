package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/fredpottier/kbgraph/internal/domain"
	"github.com/fredpottier/kbgraph/internal/platform/logger"
	"github.com/fredpottier/kbgraph/internal/platform/neo4jdb"
)

// UpsertRelationGraph projects a batch of canonical relations into Neo4j as
// Concept nodes joined by RELATION edges. Postgres stays the source of
// truth; the projection exists for traversal queries and is safe to rerun.
func UpsertRelationGraph(ctx context.Context, client *neo4jdb.Client, log *logger.Logger, tenantID string, concepts []*domain.Concept, relations []*domain.CanonicalRelation) error {
	if client == nil || client.Driver == nil {
		return nil
	}
	if tenantID == "" {
		return fmt.Errorf("neo4j relation graph sync: missing tenantID")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	nodes := make([]map[string]any, 0, len(concepts))
	for _, c := range concepts {
		if c == nil {
			continue
		}
		nodes = append(nodes, map[string]any{
			"id":        c.ID.String(),
			"tenant_id": c.TenantID,
			"key":       c.Key,
			"name":      c.Name,
			"type":      c.Type,
			"synced_at": now,
		})
	}

	rels := make([]map[string]any, 0, len(relations))
	for _, r := range relations {
		if r == nil {
			continue
		}
		rels = append(rels, map[string]any{
			"id":              r.ID.String(),
			"tenant_id":       r.TenantID,
			"from_id":         r.SubjectConceptID.String(),
			"to_id":           r.ObjectConceptID.String(),
			"relation_type":   r.RelationType,
			"maturity":        r.Maturity,
			"quality_score":   r.QualityScore,
			"confidence_p50":  r.ConfidenceP50,
			"assertion_count": int64(r.AssertionCount),
			"document_count":  int64(r.DocumentCount),
			"mapping_version": r.MappingVersion,
			"synced_at":       now,
		})
	}

	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	// Schema helpers are best-effort; restricted users may not hold the
	// privilege.
	if res, err := session.Run(ctx, `CREATE CONSTRAINT concept_id_unique IF NOT EXISTS FOR (c:Concept) REQUIRE c.id IS UNIQUE`, nil); err != nil {
		if log != nil {
			log.Warn("neo4j schema init failed (continuing)", "error", err)
		}
	} else {
		_, _ = res.Consume(ctx)
	}
	if res, err := session.Run(ctx, `CREATE INDEX concept_tenant_idx IF NOT EXISTS FOR (c:Concept) ON (c.tenant_id, c.key)`, nil); err != nil {
		if log != nil {
			log.Warn("neo4j schema init failed (continuing)", "error", err)
		}
	} else {
		_, _ = res.Consume(ctx)
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if len(nodes) > 0 {
			res, err := tx.Run(ctx, `
UNWIND $nodes AS n
MERGE (c:Concept {id: n.id})
SET c += n
`, map[string]any{"nodes": nodes})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}

		if len(rels) > 0 {
			res, err := tx.Run(ctx, `
UNWIND $rels AS r
MATCH (a:Concept {id: r.from_id})
MATCH (b:Concept {id: r.to_id})
MERGE (a)-[e:RELATION {id: r.id}]->(b)
SET e.relation_type = r.relation_type,
    e.maturity = r.maturity,
    e.quality_score = r.quality_score,
    e.confidence_p50 = r.confidence_p50,
    e.assertion_count = r.assertion_count,
    e.document_count = r.document_count,
    e.mapping_version = r.mapping_version,
    e.tenant_id = r.tenant_id,
    e.synced_at = r.synced_at
`, map[string]any{"rels": rels})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

// UpsertChainGraph projects detected chains as Chain nodes pointing at their
// member concepts in path order.
func UpsertChainGraph(ctx context.Context, client *neo4jdb.Client, log *logger.Logger, tenantID string, chains []*domain.RelationChain, pathsByChain map[string][]string) error {
	if client == nil || client.Driver == nil {
		return nil
	}
	if tenantID == "" {
		return fmt.Errorf("neo4j chain graph sync: missing tenantID")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	rows := make([]map[string]any, 0, len(chains))
	for _, ch := range chains {
		if ch == nil {
			continue
		}
		members := make([]map[string]any, 0)
		for i, conceptID := range pathsByChain[ch.ID.String()] {
			members = append(members, map[string]any{
				"concept_id": conceptID,
				"position":   int64(i),
			})
		}
		rows = append(rows, map[string]any{
			"id":              ch.ID.String(),
			"tenant_id":       ch.TenantID,
			"chain_type":      ch.ChainType,
			"hop_count":       int64(ch.HopCount),
			"confidence":      ch.Confidence,
			"scope":           ch.Scope,
			"mapping_version": ch.MappingVersion,
			"members":         members,
			"synced_at":       now,
		})
	}
	if len(rows) == 0 {
		return nil
	}

	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
UNWIND $rows AS row
MERGE (ch:Chain {id: row.id})
SET ch.tenant_id = row.tenant_id,
    ch.chain_type = row.chain_type,
    ch.hop_count = row.hop_count,
    ch.confidence = row.confidence,
    ch.scope = row.scope,
    ch.mapping_version = row.mapping_version,
    ch.synced_at = row.synced_at
WITH ch, row
UNWIND row.members AS m
MATCH (c:Concept {id: m.concept_id})
MERGE (ch)-[h:HOP {position: m.position}]->(c)
SET h.synced_at = row.synced_at
`, map[string]any{"rows": rows})
		if err != nil {
			return nil, err
		}
		if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	})
	return err
}

// DeleteTenantChains clears the chain projection before a rebuild.
func DeleteTenantChains(ctx context.Context, client *neo4jdb.Client, tenantID string) error {
	if client == nil || client.Driver == nil {
		return nil
	}
	if tenantID == "" {
		return nil
	}
	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (ch:Chain {tenant_id: $tenant_id})
DETACH DELETE ch
`, map[string]any{"tenant_id": tenantID})
		if err != nil {
			return nil, err
		}
		if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	})
	return err
}
