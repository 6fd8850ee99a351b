package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/fredpottier/kbgraph/internal/data/repos"
	"github.com/fredpottier/kbgraph/internal/http/middleware"
	"github.com/fredpottier/kbgraph/internal/http/response"
	"github.com/fredpottier/kbgraph/internal/modules/consolidation/steps"
	"github.com/fredpottier/kbgraph/internal/platform/logger"
)

type AssertionHandler struct {
	db         *gorm.DB
	log        *logger.Logger
	concepts   repos.ConceptRepo
	mentions   repos.UnresolvedMentionRepo
	assertions repos.RawAssertionRepo
}

func NewAssertionHandler(db *gorm.DB, baseLog *logger.Logger, concepts repos.ConceptRepo, mentions repos.UnresolvedMentionRepo, assertions repos.RawAssertionRepo) *AssertionHandler {
	return &AssertionHandler{
		db:         db,
		log:        baseLog.With("handler", "AssertionHandler"),
		concepts:   concepts,
		mentions:   mentions,
		assertions: assertions,
	}
}

// POST /api/v1/assertions/ingest
//
// Ingestion is synchronous: the batch either lands in the evidence log or
// the caller gets an error and retries the whole batch. Fingerprint dedup
// keeps retries harmless.
func (h *AssertionHandler) Ingest(c *gin.Context) {
	var in steps.AssertionIngestInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	in.TenantID = middleware.TenantID(c)

	out, err := steps.AssertionIngest(c.Request.Context(), steps.AssertionIngestDeps{
		DB:         h.db,
		Log:        h.log,
		Concepts:   h.concepts,
		Mentions:   h.mentions,
		Assertions: h.assertions,
	}, in)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "ingest_failed", err)
		return
	}
	response.RespondOK(c, out)
}
