package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fredpottier/kbgraph/internal/data/db"
	"github.com/fredpottier/kbgraph/internal/data/repos"
	httpapi "github.com/fredpottier/kbgraph/internal/http"
	httpH "github.com/fredpottier/kbgraph/internal/http/handlers"
	"github.com/fredpottier/kbgraph/internal/jobs"
	jobrt "github.com/fredpottier/kbgraph/internal/jobs/runtime"
	assertioningest "github.com/fredpottier/kbgraph/internal/jobs/pipeline/assertion_ingest"
	chaindetect "github.com/fredpottier/kbgraph/internal/jobs/pipeline/chain_detect"
	relationconsolidate "github.com/fredpottier/kbgraph/internal/jobs/pipeline/relation_consolidate"
	"github.com/fredpottier/kbgraph/internal/modules/consolidation/prompts"
	"github.com/fredpottier/kbgraph/internal/modules/consolidation/steps"
	"github.com/fredpottier/kbgraph/internal/observability"
	"github.com/fredpottier/kbgraph/internal/platform/envutil"
	"github.com/fredpottier/kbgraph/internal/platform/logger"
	"github.com/fredpottier/kbgraph/internal/platform/neo4jdb"
	"github.com/fredpottier/kbgraph/internal/platform/openai"
	"github.com/fredpottier/kbgraph/internal/platform/redisdb"
	"github.com/fredpottier/kbgraph/internal/services"
)

func main() {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()
	shutdownOtel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "kbgraph",
		Environment: envutil.String("ENVIRONMENT", "development"),
		Version:     envutil.String("SERVICE_VERSION", "dev"),
	})
	if shutdownOtel != nil {
		defer func() { _ = shutdownOtel(context.Background()) }()
	}

	prompts.RegisterAll()

	// Postgres
	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Fatal("Postgres migration failed", "error", err)
	}
	gormDB := pg.DB()

	// Repos
	conceptRepo := repos.NewConceptRepo(gormDB, log)
	mentionRepo := repos.NewUnresolvedMentionRepo(gormDB, log)
	assertionRepo := repos.NewRawAssertionRepo(gormDB, log)
	relationRepo := repos.NewCanonicalRelationRepo(gormDB, log)
	chainRepo := repos.NewRelationChainRepo(gormDB, log)
	labelRepo := repos.NewClusterLabelRepo(gormDB, log)
	runRepo := repos.NewJobRunRepo(gormDB, log)
	eventRepo := repos.NewJobRunEventRepo(gormDB, log)

	// Optional backing services
	redisClient, err := redisdb.NewFromEnv(log)
	if err != nil {
		log.Warn("Redis init failed, continuing without leases", "error", err)
		redisClient = nil
	}
	neo4jClient, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Warn("Neo4j init failed, continuing without graph projection", "error", err)
		neo4jClient = nil
	}

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

	notify := services.NewJobNotifier(redisClient, log)

	// Job pipelines
	registry := jobrt.NewRegistry()
	mustRegister(log, registry, assertioningest.New(gormDB, log, conceptRepo, mentionRepo, assertionRepo))
	mustRegister(log, registry, relationconsolidate.New(
		gormDB, log, conceptRepo, assertionRepo, relationRepo, classifier, redisClient,
		envutil.Int("CONSOLIDATE_WORKERS", 4),
	))
	mustRegister(log, registry, chaindetect.New(
		gormDB, log, conceptRepo, relationRepo, chainRepo, neo4jClient,
		envutil.Int("CHAIN_HUB_DEGREE_MAX", 50),
		envutil.Float("CHAIN_MIN_INFORMATIVENESS", 0.5),
	))

	worker := jobs.NewWorker(gormDB, log, runRepo, eventRepo, registry, notify, jobs.DefaultWorkerConfig())
	worker.Start(ctx)

	// HTTP
	server := httpapi.NewServer(httpapi.RouterConfig{
		Log:              log,
		HealthHandler:    httpH.NewHealthHandler(),
		ConceptHandler:   httpH.NewConceptHandler(gormDB, log, conceptRepo),
		AssertionHandler: httpH.NewAssertionHandler(gormDB, log, conceptRepo, mentionRepo, assertionRepo),
		JobHandler:       httpH.NewJobHandler(gormDB, log, runRepo, eventRepo, notify),
		RelationHandler:  httpH.NewRelationHandler(gormDB, log, relationRepo, chainRepo),
		MentionHandler:   httpH.NewMentionHandler(gormDB, log, mentionRepo),
	})

	addr := envutil.String("HTTP_ADDR", ":8080")
	log.Info("Starting HTTP server", "addr", addr)
	if err := server.Run(addr); err != nil {
		log.Fatal("HTTP server exited", "error", err)
	}
}

func mustRegister(log *logger.Logger, registry *jobrt.Registry, h jobrt.Handler) {
	if err := registry.Register(h); err != nil {
		log.Fatal("handler registration failed", "kind", h.Kind(), "error", err)
	}
}
