package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/fredpottier/kbgraph/internal/http/handlers"
	httpMW "github.com/fredpottier/kbgraph/internal/http/middleware"
	"github.com/fredpottier/kbgraph/internal/platform/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	HealthHandler    *httpH.HealthHandler
	ConceptHandler   *httpH.ConceptHandler
	AssertionHandler *httpH.AssertionHandler
	JobHandler       *httpH.JobHandler
	RelationHandler  *httpH.RelationHandler
	MentionHandler   *httpH.MentionHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("kbgraph"))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS())

	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api/v1")
	api.Use(httpMW.TenantRequired())
	{
		if cfg.ConceptHandler != nil {
			api.POST("/concepts/sync", cfg.ConceptHandler.Sync)
			api.GET("/concepts", cfg.ConceptHandler.GetByKeys)
		}

		if cfg.AssertionHandler != nil {
			api.POST("/assertions/ingest", cfg.AssertionHandler.Ingest)
		}

		if cfg.JobHandler != nil {
			api.POST("/jobs/consolidate", cfg.JobHandler.EnqueueConsolidate)
			api.POST("/jobs/chains", cfg.JobHandler.EnqueueChains)
			api.GET("/jobs/:id", cfg.JobHandler.GetJob)
		}

		if cfg.RelationHandler != nil {
			api.GET("/relations", cfg.RelationHandler.ListRelations)
			api.GET("/relations/:id", cfg.RelationHandler.GetRelation)
			api.GET("/chains", cfg.RelationHandler.ListChains)
		}

		if cfg.MentionHandler != nil {
			api.GET("/mentions", cfg.MentionHandler.ListMentions)
			api.PATCH("/mentions/:id", cfg.MentionHandler.UpdateMentionStatus)
		}
	}

	return r
}
