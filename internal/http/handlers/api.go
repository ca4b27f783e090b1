package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/poldracklab/cogat/internal/data/repos/nodes"
	"github.com/poldracklab/cogat/internal/domain/atlas"
	"github.com/poldracklab/cogat/internal/http/response"
	"github.com/poldracklab/cogat/internal/platform/apierr"
	"github.com/poldracklab/cogat/internal/platform/logger"
	"github.com/poldracklab/cogat/internal/services"
)

// apiSearchLabels are the types the public /api/search endpoint covers.
var apiSearchLabels = []string{"concept", "contrast", "disorder", "task"}

// APIHandler serves the public JSON API consumed by external tools.
type APIHandler struct {
	log     *logger.Logger
	catalog *nodes.Catalog
	atlas   services.AtlasService
}

func NewAPIHandler(log *logger.Logger, catalog *nodes.Catalog, atlasService services.AtlasService) *APIHandler {
	return &APIHandler{
		log:     log.With("handler", "APIHandler"),
		catalog: catalog,
		atlas:   atlasService,
	}
}

type termRequest struct {
	TermName       string `json:"term_name" binding:"required,max=255"`
	DefinitionText string `json:"definition_text"`
	Alias          string `json:"alias"`
}

func (r termRequest) props() map[string]any {
	props := map[string]any{}
	if s := strings.TrimSpace(r.DefinitionText); s != "" {
		props["definition_text"] = s
	}
	if s := strings.TrimSpace(r.Alias); s != "" {
		props["alias"] = s
	}
	return props
}

// GET /api/search?q=
func (h *APIHandler) Search(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	results := []atlas.Record{}
	for _, label := range apiSearchLabels {
		ent, err := h.catalog.Entity(label)
		if err != nil {
			response.RespondAppError(c, err)
			return
		}
		found, err := ent.SearchAllFields(c.Request.Context(), q)
		if err != nil {
			h.log.Error("search failed", "label", label, "error", err)
			response.RespondAppError(c, err)
			return
		}
		results = append(results, found...)
	}
	if len(results) == 0 {
		response.RespondError(c, http.StatusNotFound, "not_found", errors.New("no results found"))
		return
	}
	response.RespondOK(c, results)
}

// GET /api/concept?id=|name=|contrast_id=
func (h *APIHandler) GetConcept(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		payload any
		err     error
	)
	switch {
	case c.Query("id") != "":
		payload, err = nilIfAbsent(h.catalog.Concept.GetFull(ctx, "id", c.Query("id")))
	case c.Query("name") != "":
		payload, err = nilIfAbsent(h.catalog.Concept.GetFull(ctx, "name", c.Query("name")))
	case c.Query("contrast_id") != "":
		payload, err = h.catalog.Contrast.Concepts(ctx, c.Query("contrast_id"))
	default:
		payload, err = h.catalog.Concept.All(ctx, nodes.ListOptions{})
	}
	h.respondLookup(c, "concept", payload, err)
}

// POST /api/concept
func (h *APIHandler) PostConcept(c *gin.Context) {
	h.createTerm(c, "concept")
}

// GET /api/task?id=|name=
func (h *APIHandler) GetTask(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		payload any
		err     error
	)
	switch {
	case c.Query("id") != "":
		payload, err = nilIfAbsent(h.catalog.Task.GetFull(ctx, "id", c.Query("id")))
	case c.Query("name") != "":
		payload, err = nilIfAbsent(h.catalog.Task.GetFull(ctx, "name", c.Query("name")))
	default:
		payload, err = h.catalog.Task.All(ctx, nodes.ListOptions{})
	}
	h.respondLookup(c, "task", payload, err)
}

// POST /api/task
func (h *APIHandler) PostTask(c *gin.Context) {
	h.createTerm(c, "task")
}

// GET /api/disorder?id=|name=
func (h *APIHandler) GetDisorder(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		payload any
		err     error
	)
	switch {
	case c.Query("id") != "":
		payload, err = nilIfAbsent(h.catalog.Disorder.GetFull(ctx, "id", c.Query("id")))
	case c.Query("name") != "":
		payload, err = nilIfAbsent(h.catalog.Disorder.GetFull(ctx, "name", c.Query("name")))
	default:
		payload, err = h.catalog.Disorder.All(ctx, nodes.ListOptions{})
	}
	h.respondLookup(c, "disorder", payload, err)
}

func (h *APIHandler) createTerm(c *gin.Context, label string) {
	var req termRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	rec, err := h.atlas.Create(ctx, label, req.TermName, req.props(), services.CreateOptions{UniqueName: true})
	if err != nil && rec == nil {
		response.RespondAppError(c, err)
		return
	}
	if err != nil {
		h.log.Warn("created without audit trail", "label", label, "id", rec.ID(), "error", err)
	}
	var full atlas.Record
	switch label {
	case "task":
		full, err = h.catalog.Task.GetFull(ctx, "id", rec.ID())
	default:
		full, err = h.catalog.Concept.GetFull(ctx, "id", rec.ID())
	}
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondCreated(c, full)
}

func (h *APIHandler) respondLookup(c *gin.Context, label string, payload any, err error) {
	if err != nil {
		h.log.Error("lookup failed", "label", label, "error", err)
		response.RespondAppError(c, err)
		return
	}
	if payload == nil {
		response.RespondAppError(c, apierr.New(http.StatusNotFound, "not_found", errors.New(label+" not found")))
		return
	}
	response.RespondOK(c, payload)
}

// nilIfAbsent turns a missing record into an untyped nil so respondLookup can
// tell it apart from an empty list.
func nilIfAbsent(rec atlas.Record, err error) (any, error) {
	if err != nil || rec == nil {
		return nil, err
	}
	return rec, nil
}
