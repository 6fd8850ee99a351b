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
	"github.com/fredpottier/kbgraph/internal/http/middleware"
	"github.com/fredpottier/kbgraph/internal/http/response"
	"github.com/fredpottier/kbgraph/internal/platform/logger"
)

type ConceptHandler struct {
	db       *gorm.DB
	log      *logger.Logger
	concepts repos.ConceptRepo
}

func NewConceptHandler(db *gorm.DB, baseLog *logger.Logger, concepts repos.ConceptRepo) *ConceptHandler {
	return &ConceptHandler{db: db, log: baseLog.With("handler", "ConceptHandler"), concepts: concepts}
}

type conceptSyncItem struct {
	ID      uuid.UUID `json:"id"`
	Key     string    `json:"key"`
	Name    string    `json:"name"`
	Type    string    `json:"type"`
	Aliases []string  `json:"aliases,omitempty"`
}

type conceptSyncRequest struct {
	Concepts []conceptSyncItem `json:"concepts"`
}

// POST /api/v1/concepts/sync
//
// Mirrors resolved concepts from the upstream catalog service. Upsert by
// (tenant, key) so replays are harmless.
func (h *ConceptHandler) Sync(c *gin.Context) {
	tenantID := middleware.TenantID(c)

	var req conceptSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if len(req.Concepts) == 0 {
		response.RespondError(c, http.StatusBadRequest, "empty_batch", fmt.Errorf("no concepts in batch"))
		return
	}

	synced := 0
	for _, item := range req.Concepts {
		if item.Key == "" || item.Name == "" {
			response.RespondError(c, http.StatusBadRequest, "invalid_concept", fmt.Errorf("concept requires key and name"))
			return
		}
		id := item.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		aliases, _ := json.Marshal(item.Aliases)
		typ := item.Type
		if typ == "" {
			typ = "unknown"
		}
		row := &domain.Concept{
			ID:       id,
			TenantID: tenantID,
			Key:      item.Key,
			Name:     item.Name,
			Type:     typ,
			Aliases:  datatypes.JSON(aliases),
		}
		if err := h.concepts.UpsertByTenantAndKey(c.Request.Context(), nil, row); err != nil {
			response.RespondError(c, http.StatusInternalServerError, "concept_sync_failed", err)
			return
		}
		synced++
	}

	response.RespondOK(c, gin.H{"synced": synced})
}

// GET /api/v1/concepts?keys=a,b,c
func (h *ConceptHandler) GetByKeys(c *gin.Context) {
	tenantID := middleware.TenantID(c)
	keys := c.QueryArray("key")
	if len(keys) == 0 {
		response.RespondError(c, http.StatusBadRequest, "missing_keys", fmt.Errorf("at least one key query parameter required"))
		return
	}
	rows, err := h.concepts.GetByTenantAndKeys(c.Request.Context(), nil, tenantID, keys)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "concept_lookup_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"concepts": rows})
}
