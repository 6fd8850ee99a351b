package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fredpottier/kbgraph/internal/data/repos"
	relrepo "github.com/fredpottier/kbgraph/internal/data/repos/relations"
	"github.com/fredpottier/kbgraph/internal/http/middleware"
	"github.com/fredpottier/kbgraph/internal/http/response"
	"github.com/fredpottier/kbgraph/internal/platform/logger"
)

const defaultListLimit = 50
const maxListLimit = 500

type RelationHandler struct {
	db        *gorm.DB
	log       *logger.Logger
	relations repos.CanonicalRelationRepo
	chains    repos.RelationChainRepo
}

func NewRelationHandler(db *gorm.DB, baseLog *logger.Logger, relations repos.CanonicalRelationRepo, chains repos.RelationChainRepo) *RelationHandler {
	return &RelationHandler{
		db:        db,
		log:       baseLog.With("handler", "RelationHandler"),
		relations: relations,
		chains:    chains,
	}
}

func listLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func afterID(c *gin.Context) uuid.UUID {
	id, err := uuid.Parse(c.Query("after_id"))
	if err != nil {
		return uuid.Nil
	}
	return id
}

// GET /api/v1/relations
//
// Keyset paginated: pass the last row's id as after_id for the next page.
func (h *RelationHandler) ListRelations(c *gin.Context) {
	tenantID := middleware.TenantID(c)

	f := relrepo.ListFilter{
		RelationType: c.Query("relation_type"),
		Maturity:     c.Query("maturity"),
	}
	if id, err := uuid.Parse(c.Query("subject_concept_id")); err == nil {
		f.SubjectConceptID = id
	}
	if id, err := uuid.Parse(c.Query("object_concept_id")); err == nil {
		f.ObjectConceptID = id
	}
	if q, err := strconv.ParseFloat(c.Query("min_quality"), 64); err == nil {
		f.MinQuality = q
	}

	rows, err := h.relations.ListByTenant(c.Request.Context(), nil, tenantID, f, afterID(c), listLimit(c))
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "relation_list_failed", err)
		return
	}
	next := ""
	if len(rows) > 0 {
		next = rows[len(rows)-1].ID.String()
	}
	response.RespondOK(c, gin.H{"relations": rows, "next_after_id": next})
}

// GET /api/v1/relations/:id
func (h *RelationHandler) GetRelation(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_relation_id", err)
		return
	}
	row, err := h.relations.GetByID(c.Request.Context(), nil, id)
	if err != nil || row.TenantID != middleware.TenantID(c) {
		response.RespondError(c, http.StatusNotFound, "relation_not_found", err)
		return
	}
	response.RespondOK(c, gin.H{"relation": row})
}

// GET /api/v1/chains
func (h *RelationHandler) ListChains(c *gin.Context) {
	tenantID := middleware.TenantID(c)

	f := relrepo.ChainFilter{
		ChainType: c.Query("chain_type"),
		Scope:     c.Query("scope"),
	}
	if v, err := strconv.ParseFloat(c.Query("min_confidence"), 64); err == nil {
		f.MinConfidence = v
	}
	if v, err := strconv.Atoi(c.Query("min_hops")); err == nil {
		f.MinHops = v
	}

	rows, err := h.chains.ListByTenant(c.Request.Context(), nil, tenantID, f, afterID(c), listLimit(c))
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "chain_list_failed", err)
		return
	}
	next := ""
	if len(rows) > 0 {
		next = rows[len(rows)-1].ID.String()
	}
	response.RespondOK(c, gin.H{"chains": rows, "next_after_id": next})
}
