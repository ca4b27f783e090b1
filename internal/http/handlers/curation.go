package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/poldracklab/cogat/internal/data/repos/nodes"
	"github.com/poldracklab/cogat/internal/domain/atlas"
	"github.com/poldracklab/cogat/internal/http/response"
	"github.com/poldracklab/cogat/internal/platform/logger"
	"github.com/poldracklab/cogat/internal/services"
)

// CurationHandler backs the editing forms. Every route it serves requires an
// authenticated actor.
type CurationHandler struct {
	log     *logger.Logger
	catalog *nodes.Catalog
	atlas   services.AtlasService
}

func NewCurationHandler(log *logger.Logger, catalog *nodes.Catalog, atlasService services.AtlasService) *CurationHandler {
	return &CurationHandler{
		log:     log.With("handler", "CurationHandler"),
		catalog: catalog,
		atlas:   atlasService,
	}
}

func (h *CurationHandler) respondEdge(c *gin.Context, edge atlas.Edge, err error) {
	if err != nil {
		h.log.Warn("curation failed", "path", c.FullPath(), "id", c.Param("id"), "error", err)
		response.RespondAppError(c, err)
		return
	}
	if edge.Created {
		response.RespondCreated(c, edge)
		return
	}
	response.RespondOK(c, edge)
}

func (h *CurationHandler) respondRecord(c *gin.Context, rec atlas.Record, err error) {
	if err != nil {
		h.log.Warn("curation failed", "path", c.FullPath(), "id", c.Param("id"), "error", err)
		response.RespondAppError(c, err)
		return
	}
	response.RespondCreated(c, rec)
}

// respondTask answers with the refreshed task view, as the legacy forms did.
func (h *CurationHandler) respondTask(c *gin.Context, err error) {
	if err != nil {
		h.log.Warn("curation failed", "path", c.FullPath(), "id", c.Param("id"), "error", err)
		response.RespondAppError(c, err)
		return
	}
	task, err := h.catalog.Task.GetFull(c.Request.Context(), "id", c.Param("id"))
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	if task == nil {
		response.RespondAppError(c, &atlas.NotFoundError{Label: "task", Field: "id", Value: c.Param("id")})
		return
	}
	response.RespondCreated(c, task)
}

type nameRequest struct {
	Name string `json:"name" binding:"required,max=255"`
}

// POST /api/tasks/:id/conditions
func (h *CurationHandler) AddCondition(c *gin.Context) {
	var req nameRequest
	if !bindJSON(c, &req) {
		return
	}
	rec, err := h.atlas.AddCondition(c.Request.Context(), c.Param("id"), req.Name)
	h.respondRecord(c, rec, err)
}

type contrastRequest struct {
	Name    string             `json:"name" binding:"required,max=255"`
	Weights map[string]float64 `json:"weights" binding:"required"`
}

// POST /api/tasks/:id/contrasts
func (h *CurationHandler) AddContrast(c *gin.Context) {
	var req contrastRequest
	if !bindJSON(c, &req) {
		return
	}
	rec, err := h.atlas.AddContrast(c.Request.Context(), c.Param("id"), req.Name, req.Weights)
	h.respondRecord(c, rec, err)
}

type taskConceptRequest struct {
	ConceptID string `json:"concept_id" binding:"required"`
}

// POST /api/tasks/:id/concepts
func (h *CurationHandler) AssertTaskConcept(c *gin.Context) {
	var req taskConceptRequest
	if !bindJSON(c, &req) {
		return
	}
	_, err := h.atlas.AssertTaskConcept(c.Request.Context(), c.Param("id"), req.ConceptID)
	h.respondTask(c, err)
}

type taskPhenotypeRequest struct {
	PhenotypeID string `json:"phenotype_id" binding:"required"`
	ContrastID  string `json:"contrast_id" binding:"required"`
}

// POST /api/tasks/:id/phenotypes
func (h *CurationHandler) AddTaskPhenotype(c *gin.Context) {
	var req taskPhenotypeRequest
	if !bindJSON(c, &req) {
		return
	}
	_, err := h.atlas.AddTaskPhenotype(c.Request.Context(), req.PhenotypeID, req.ContrastID)
	h.respondTask(c, err)
}

type conceptContrastRequest struct {
	ConceptID  string `json:"concept_id" binding:"required"`
	ContrastID string `json:"contrast_id" binding:"required"`
}

// POST /api/tasks/:id/concept-contrasts
func (h *CurationHandler) AssertConceptContrast(c *gin.Context) {
	var req conceptContrastRequest
	if !bindJSON(c, &req) {
		return
	}
	rec, err := h.atlas.AssertConceptContrast(c.Request.Context(), c.Param("id"), req.ConceptID, req.ContrastID)
	h.respondRecord(c, rec, err)
}

type disorderRelationRequest struct {
	DisorderID string `json:"disorder_id" binding:"required"`
	// Parent makes disorder_id the parent of the path disorder.
	Parent bool `json:"parent"`
}

// POST /api/disorders/:id/disorders
func (h *CurationHandler) AddDisorderRelation(c *gin.Context) {
	var req disorderRelationRequest
	if !bindJSON(c, &req) {
		return
	}
	edge, err := h.atlas.AddDisorderRelation(c.Request.Context(), c.Param("id"), req.DisorderID, req.Parent)
	h.respondEdge(c, edge, err)
}

type disorderTaskRequest struct {
	TaskID string `json:"task_id" binding:"required"`
}

// POST /api/disorders/:id/tasks
func (h *CurationHandler) AssertDisorderTask(c *gin.Context) {
	var req disorderTaskRequest
	if !bindJSON(c, &req) {
		return
	}
	rec, err := h.atlas.AssertDisorderTask(c.Request.Context(), c.Param("id"), req.TaskID)
	h.respondRecord(c, rec, err)
}

type conceptRelationRequest struct {
	RelType string `json:"rel_type" binding:"required"`
	OtherID string `json:"other_id" binding:"required"`
}

// POST /api/concepts/:id/relations
func (h *CurationHandler) AddConceptRelation(c *gin.Context) {
	var req conceptRelationRequest
	if !bindJSON(c, &req) {
		return
	}
	edge, err := h.atlas.AddConceptRelation(c.Request.Context(), c.Param("id"), req.RelType, req.OtherID)
	h.respondEdge(c, edge, err)
}

type theoryAssertionRequest struct {
	AssertionID string `json:"assertion_id" binding:"required"`
}

// POST /api/theories/:id/assertions
func (h *CurationHandler) AddTheoryAssertion(c *gin.Context) {
	var req theoryAssertionRequest
	if !bindJSON(c, &req) {
		return
	}
	edge, err := h.atlas.AddTheoryAssertion(c.Request.Context(), c.Param("id"), req.AssertionID)
	h.respondEdge(c, edge, err)
}
