package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fredpottier/kbgraph/internal/data/repos"
	catalogtypes "github.com/fredpottier/kbgraph/internal/domain/catalog"
	"github.com/fredpottier/kbgraph/internal/http/middleware"
	"github.com/fredpottier/kbgraph/internal/http/response"
	"github.com/fredpottier/kbgraph/internal/platform/logger"
)

type MentionHandler struct {
	db       *gorm.DB
	log      *logger.Logger
	mentions repos.UnresolvedMentionRepo
}

func NewMentionHandler(db *gorm.DB, baseLog *logger.Logger, mentions repos.UnresolvedMentionRepo) *MentionHandler {
	return &MentionHandler{db: db, log: baseLog.With("handler", "MentionHandler"), mentions: mentions}
}

// GET /api/v1/mentions?status=pending
//
// Ordered by occurrences so catalog curators see the highest-impact gaps
// first.
func (h *MentionHandler) ListMentions(c *gin.Context) {
	tenantID := middleware.TenantID(c)
	rows, err := h.mentions.ListByTenant(c.Request.Context(), nil, tenantID, c.Query("status"), listLimit(c))
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "mention_list_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"mentions": rows})
}

type mentionStatusRequest struct {
	Status string `json:"status"`
}

// PATCH /api/v1/mentions/:id
func (h *MentionHandler) UpdateMentionStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_mention_id", err)
		return
	}
	var req mentionStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	switch req.Status {
	case catalogtypes.MentionStatusPending, catalogtypes.MentionStatusPromoted, catalogtypes.MentionStatusRejected:
	default:
		response.RespondError(c, http.StatusBadRequest, "invalid_status", fmt.Errorf("status must be pending, promoted or rejected"))
		return
	}
	if err := h.mentions.UpdateStatus(c.Request.Context(), nil, id, req.Status); err != nil {
		response.RespondError(c, http.StatusInternalServerError, "mention_update_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"id": id, "status": req.Status})
}
