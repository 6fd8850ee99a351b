package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/fredpottier/kbgraph/internal/data/db"
	"github.com/fredpottier/kbgraph/internal/data/repos"
	"github.com/fredpottier/kbgraph/internal/modules/consolidation/prompts"
	"github.com/fredpottier/kbgraph/internal/modules/consolidation/steps"
	"github.com/fredpottier/kbgraph/internal/platform/envutil"
	"github.com/fredpottier/kbgraph/internal/platform/logger"
	"github.com/fredpottier/kbgraph/internal/platform/openai"
)

// One-shot consolidation pass for a tenant, bypassing the job queue. Meant
// for operators after a mapping version bump or a catalog backfill.
func main() {
	tenantID := flag.String("tenant", "", "tenant id (required)")
	mappingVersion := flag.String("mapping-version", "", "mapping version to consolidate under (required)")
	purge := flag.Bool("purge", false, "wipe canonical relations and links before the pass")
	chains := flag.Bool("chains", true, "rebuild chains after consolidation")
	minInformativeness := flag.Float64("min-informativeness", 0.5, "idf floor for chain join concepts")
	batchSize := flag.Int("batch-size", 0, "page and link batch size, 0 for defaults")
	flag.Parse()

	if *tenantID == "" || *mappingVersion == "" {
		flag.Usage()
		os.Exit(2)
	}

	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	prompts.RegisterAll()

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Fatal("Postgres migration failed", "error", err)
	}
	gormDB := pg.DB()

	conceptRepo := repos.NewConceptRepo(gormDB, log)
	assertionRepo := repos.NewRawAssertionRepo(gormDB, log)
	relationRepo := repos.NewCanonicalRelationRepo(gormDB, log)
	chainRepo := repos.NewRelationChainRepo(gormDB, log)
	labelRepo := repos.NewClusterLabelRepo(gormDB, log)

	aiClient, err := openai.NewClient(log)
	if err != nil {
		log.Fatal("OpenAI client init failed", "error", err)
	}
	classifier := steps.NewPredicateTypeClassifier(
		log,
		aiClient,
		labelRepo,
		envutil.Float("PREDICATE_CLUSTER_MIN_SIM", 0.82),
	)

	ctx := context.Background()

	out, err := steps.RelationConsolidate(ctx, steps.RelationConsolidateDeps{
		DB:            gormDB,
		Log:           log,
		Concepts:      conceptRepo,
		Assertions:    assertionRepo,
		Relations:     relationRepo,
		Classifier:    classifier,
		Penalties:     steps.DefaultPenaltyConfig(),
		Workers:       envutil.Int("CONSOLIDATE_WORKERS", 4),
		PageSize:      *batchSize,
		LinkBatchSize: *batchSize,
	}, steps.RelationConsolidateInput{
		TenantID:       *tenantID,
		MappingVersion: *mappingVersion,
		PurgeFirst:     *purge,
		Progress: func(stage string, pct int) {
			log.Info("consolidation progress", "stage", stage, "pct", pct)
		},
	})
	if err != nil {
		log.Fatal("consolidation failed", "error", err)
	}
	log.Info("consolidation finished",
		"relations", out.Relations,
		"validated", out.Validated,
		"conflicted", out.Conflicted,
		"linked", out.Linked,
		"stale_deleted", out.StaleDeleted,
	)

	if !*chains {
		return
	}

	chainOut, err := steps.ChainDetect(ctx, steps.ChainDetectDeps{
		DB:           gormDB,
		Log:          log,
		Relations:    relationRepo,
		Chains:       chainRepo,
		HubDegreeMax: envutil.Int("CHAIN_HUB_DEGREE_MAX", 50),
	}, steps.ChainDetectInput{
		TenantID:           *tenantID,
		MappingVersion:     *mappingVersion,
		MinInformativeness: *minInformativeness,
	})
	if err != nil {
		log.Fatal("chain detection failed", "error", err)
	}
	log.Info("chain detection finished",
		"chains", chainOut.Chains,
		"multi_document", chainOut.MultiDocument,
		"dropped_hub", chainOut.DroppedHub,
		"dropped_duplicate", chainOut.DroppedDuplicate,
		"dropped_floor", chainOut.DroppedFloor,
	)
}
