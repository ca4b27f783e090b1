package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/poldracklab/cogat/internal/data/repos/nodes"
	"github.com/poldracklab/cogat/internal/http/response"
	"github.com/poldracklab/cogat/internal/platform/logger"
)

// ViewHandler serves the denormalized read views assembled from multi-hop
// traversals.
type ViewHandler struct {
	log     *logger.Logger
	catalog *nodes.Catalog
}

func NewViewHandler(log *logger.Logger, catalog *nodes.Catalog) *ViewHandler {
	return &ViewHandler{log: log.With("handler", "ViewHandler"), catalog: catalog}
}

func (h *ViewHandler) respond(c *gin.Context, view string, payload any, err error) {
	if err != nil {
		h.log.Error("view failed", "view", view, "id", c.Param("id"), "error", err)
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, payload)
}

// GET /api/tasks/:id/contrasts
func (h *ViewHandler) TaskContrasts(c *gin.Context) {
	out, err := h.catalog.Task.Contrasts(c.Request.Context(), c.Param("id"))
	h.respond(c, "task_contrasts", out, err)
}

// GET /api/tasks/:id/conditions
func (h *ViewHandler) TaskConditions(c *gin.Context) {
	out, err := h.catalog.Task.Conditions(c.Request.Context(), c.Param("id"))
	h.respond(c, "task_conditions", out, err)
}

// GET /api/tasks/:id/disorders
func (h *ViewHandler) TaskDisorders(c *gin.Context) {
	out, err := h.catalog.Task.Disorders(c.Request.Context(), c.Param("id"))
	h.respond(c, "task_disorders", out, err)
}

// GET /api/tasks/:id/concepts
func (h *ViewHandler) TaskConcepts(c *gin.Context) {
	out, err := h.catalog.Task.ConceptContrasts(c.Request.Context(), c.Param("id"))
	h.respond(c, "task_concepts", out, err)
}

// GET /api/tasks/:id/measured-by/:label
func (h *ViewHandler) TaskMeasuredBy(c *gin.Context) {
	out, err := h.catalog.Task.MeasuredBy(c.Request.Context(), c.Param("id"), c.Param("label"))
	h.respond(c, "task_measured_by", out, err)
}

// GET /api/contrasts/:id/tasks
func (h *ViewHandler) ContrastTasks(c *gin.Context) {
	out, err := h.catalog.Contrast.Tasks(c.Request.Context(), c.Param("id"))
	h.respond(c, "contrast_tasks", out, err)
}

// GET /api/contrasts/:id/conditions
func (h *ViewHandler) ContrastConditions(c *gin.Context) {
	out, err := h.catalog.Contrast.Conditions(c.Request.Context(), c.Param("id"))
	h.respond(c, "contrast_conditions", out, err)
}

// GET /api/contrasts/:id/concepts
func (h *ViewHandler) ContrastConcepts(c *gin.Context) {
	out, err := h.catalog.Contrast.Concepts(c.Request.Context(), c.Param("id"))
	h.respond(c, "contrast_concepts", out, err)
}

// GET /api/theories/:id/terms
func (h *ViewHandler) TheoryTerms(c *gin.Context) {
	out, err := h.catalog.Theory.ReferencedTerms(c.Request.Context(), c.Param("id"))
	h.respond(c, "theory_terms", out, err)
}

// GET /api/disorders/tree
func (h *ViewHandler) DisorderTree(c *gin.Context) {
	out, err := h.catalog.Disorder.Tree(c.Request.Context())
	h.respond(c, "disorder_tree", out, err)
}

// GET /api/concept-classes
func (h *ViewHandler) ConceptClasses(c *gin.Context) {
	out, err := h.catalog.ConceptClass.WithConcepts(c.Request.Context())
	h.respond(c, "concept_classes", out, err)
}

// GET /api/search/all?q=&label=&fields=
func (h *ViewHandler) SearchAll(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_query", errMissingQuery)
		return
	}
	out, err := h.catalog.Repo().Search(c.Request.Context(), q, nodes.SearchOptions{
		Fields: queryList(c, "fields"),
		Label:  c.Query("label"),
	})
	h.respond(c, "search_all", out, err)
}

// GET /api/search/contrast?q=
func (h *ViewHandler) SearchContrasts(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_query", errMissingQuery)
		return
	}
	out, err := h.catalog.Repo().SearchContrasts(c.Request.Context(), q)
	h.respond(c, "search_contrast", out, err)
}
