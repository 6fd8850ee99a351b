package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fredpottier/kbgraph/internal/data/repos"
	"github.com/fredpottier/kbgraph/internal/domain"
	jobtypes "github.com/fredpottier/kbgraph/internal/domain/jobs"
	"github.com/fredpottier/kbgraph/internal/http/middleware"
	"github.com/fredpottier/kbgraph/internal/http/response"
	"github.com/fredpottier/kbgraph/internal/pkg/dbctx"
	"github.com/fredpottier/kbgraph/internal/platform/logger"
	"github.com/fredpottier/kbgraph/internal/services"
)

type JobHandler struct {
	db     *gorm.DB
	log    *logger.Logger
	runs   repos.JobRunRepo
	events repos.JobRunEventRepo
	notify services.JobNotifier
}

func NewJobHandler(db *gorm.DB, baseLog *logger.Logger, runs repos.JobRunRepo, events repos.JobRunEventRepo, notify services.JobNotifier) *JobHandler {
	return &JobHandler{
		db:     db,
		log:    baseLog.With("handler", "JobHandler"),
		runs:   runs,
		events: events,
		notify: notify,
	}
}

type consolidateRequest struct {
	MappingVersion string `json:"mapping_version"`
	PurgeFirst     bool   `json:"purge_first"`
	BatchSize      int    `json:"batch_size,omitempty"`
}

// POST /api/v1/jobs/consolidate
func (h *JobHandler) EnqueueConsolidate(c *gin.Context) {
	var req consolidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if req.MappingVersion == "" {
		response.RespondError(c, http.StatusBadRequest, "missing_mapping_version", fmt.Errorf("mapping_version required"))
		return
	}
	params := map[string]any{
		"mapping_version": req.MappingVersion,
		"purge_first":     req.PurgeFirst,
	}
	if req.BatchSize > 0 {
		params["batch_size"] = req.BatchSize
	}
	h.enqueue(c, jobtypes.KindRelationConsolidate, params)
}

type chainsRequest struct {
	MappingVersion     string   `json:"mapping_version"`
	MinInformativeness *float64 `json:"min_informativeness,omitempty"`
}

// POST /api/v1/jobs/chains
func (h *JobHandler) EnqueueChains(c *gin.Context) {
	var req chainsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if req.MappingVersion == "" {
		response.RespondError(c, http.StatusBadRequest, "missing_mapping_version", fmt.Errorf("mapping_version required"))
		return
	}
	params := map[string]any{"mapping_version": req.MappingVersion}
	if req.MinInformativeness != nil {
		params["min_informativeness"] = *req.MinInformativeness
	}
	h.enqueue(c, jobtypes.KindChainDetect, params)
}

// enqueue creates one queued run unless the tenant already has one of the
// same kind pending; in that case the existing run is returned instead of
// stacking duplicates.
func (h *JobHandler) enqueue(c *gin.Context, kind string, params map[string]any) {
	tenantID := middleware.TenantID(c)
	dbc := dbctx.Context{Ctx: c.Request.Context()}

	runnable, err := h.runs.HasRunnable(dbc, tenantID, kind)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "enqueue_failed", err)
		return
	}
	if runnable {
		existing, err := h.runs.GetLatestByKind(dbc, tenantID, kind)
		if err == nil && existing != nil {
			response.RespondAccepted(c, gin.H{"job": existing, "deduplicated": true})
			return
		}
	}

	b, _ := json.Marshal(params)
	job := &domain.JobRun{
		ID:       uuid.New(),
		TenantID: tenantID,
		Kind:     kind,
		Status:   jobtypes.StatusQueued,
		Params:   datatypes.JSON(b),
	}
	if _, err := h.runs.Create(dbc, []*domain.JobRun{job}); err != nil {
		response.RespondError(c, http.StatusInternalServerError, "enqueue_failed", err)
		return
	}
	if h.notify != nil {
		h.notify.JobCreated(tenantID, job)
	}
	response.RespondAccepted(c, gin.H{"job": job})
}

// GET /api/v1/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	job, err := h.runs.GetByID(dbc, jobID)
	if err != nil {
		response.RespondError(c, http.StatusNotFound, "job_not_found", err)
		return
	}
	if job.TenantID != middleware.TenantID(c) {
		response.RespondError(c, http.StatusNotFound, "job_not_found", fmt.Errorf("job %s not found", jobID))
		return
	}
	events, err := h.events.ListByRunID(dbc, job.ID, 100)
	if err != nil {
		h.log.Warn("event listing failed (continuing)", "job_id", job.ID, "error", err)
	}
	response.RespondOK(c, gin.H{"job": job, "events": events})
}
