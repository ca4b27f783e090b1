package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/poldracklab/cogat/internal/data/repos/nodes"
	"github.com/poldracklab/cogat/internal/domain/atlas"
	"github.com/poldracklab/cogat/internal/http/response"
	"github.com/poldracklab/cogat/internal/platform/logger"
	"github.com/poldracklab/cogat/internal/services"
)

// NodeHandler exposes the store operations for any registered entity type.
type NodeHandler struct {
	log     *logger.Logger
	catalog *nodes.Catalog
	atlas   services.AtlasService
}

func NewNodeHandler(log *logger.Logger, catalog *nodes.Catalog, atlasService services.AtlasService) *NodeHandler {
	return &NodeHandler{
		log:     log.With("handler", "NodeHandler"),
		catalog: catalog,
		atlas:   atlasService,
	}
}

func (h *NodeHandler) entity(c *gin.Context) (nodes.Entity, bool) {
	ent, err := h.catalog.Entity(c.Param("label"))
	if err != nil {
		response.RespondAppError(c, err)
		return nodes.Entity{}, false
	}
	return ent, true
}

// GET /api/nodes/:label?letter=&order_by=&desc=&limit=&fields=
func (h *NodeHandler) List(c *gin.Context) {
	ent, ok := h.entity(c)
	if !ok {
		return
	}
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	opts := nodes.ListOptions{
		Fields:  queryList(c, "fields"),
		Limit:   limit,
		OrderBy: c.Query("order_by"),
		Desc:    queryBool(c, "desc"),
	}
	var recs []atlas.Record
	if letter := strings.TrimSpace(c.Query("letter")); letter != "" {
		recs, err = ent.ByLetter(c.Request.Context(), letter, opts)
	} else {
		recs, err = ent.All(c.Request.Context(), opts)
	}
	if err != nil {
		h.log.Error("list failed", "label", ent.Label, "error", err)
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, recs)
}

// GET /api/counts
func (h *NodeHandler) Counts(c *gin.Context) {
	labels := h.catalog.Repo().Registry().Labels()
	counts := make([]int64, len(labels))
	g, gctx := errgroup.WithContext(c.Request.Context())
	for i, label := range labels {
		g.Go(func() (err error) {
			counts[i], err = h.catalog.Repo().Count(gctx, label)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		h.log.Error("count failed", "error", err)
		response.RespondAppError(c, err)
		return
	}
	out := make(map[string]int64, len(labels))
	for i, label := range labels {
		out[label] = counts[i]
	}
	response.RespondOK(c, out)
}

// GET /api/nodes/:label/:id?full=true
func (h *NodeHandler) Get(c *gin.Context) {
	ent, ok := h.entity(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if queryBool(c, "full") {
		rec, err := h.full(c, ent, id)
		if err != nil {
			response.RespondAppError(c, err)
			return
		}
		if rec == nil {
			response.RespondAppError(c, &atlas.NotFoundError{Label: ent.Label, Field: "id", Value: id})
			return
		}
		response.RespondOK(c, rec)
		return
	}
	rec, err := ent.GetOne(c.Request.Context(), "id", id, nodes.GetOptions{})
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, rec)
}

// full picks the richest view a type has.
func (h *NodeHandler) full(c *gin.Context, ent nodes.Entity, id string) (atlas.Record, error) {
	ctx := c.Request.Context()
	switch ent.Label {
	case h.catalog.Task.Label:
		return h.catalog.Task.GetFull(ctx, "id", id)
	case h.catalog.Concept.Label:
		return h.catalog.Concept.GetFull(ctx, "id", id)
	default:
		return ent.GetFull(ctx, "id", id)
	}
}

type createNodeRequest struct {
	Name       string         `json:"name" binding:"required,max=255"`
	Properties map[string]any `json:"properties"`
	UniqueName bool           `json:"unique_name"`
}

// POST /api/nodes/:label
func (h *NodeHandler) Create(c *gin.Context) {
	ent, ok := h.entity(c)
	if !ok {
		return
	}
	var req createNodeRequest
	if !bindJSON(c, &req) {
		return
	}
	rec, err := h.atlas.Create(c.Request.Context(), ent.Label, req.Name, req.Properties, services.CreateOptions{UniqueName: req.UniqueName})
	if err != nil && rec == nil {
		response.RespondAppError(c, err)
		return
	}
	if err != nil {
		h.log.Warn("created without audit trail", "label", ent.Label, "id", rec.ID(), "error", err)
	}
	response.RespondCreated(c, rec)
}

// PATCH /api/nodes/:label/:id
func (h *NodeHandler) Update(c *gin.Context) {
	ent, ok := h.entity(c)
	if !ok {
		return
	}
	var updates map[string]any
	if !bindJSON(c, &updates) {
		return
	}
	id := c.Param("id")
	if err := h.atlas.Update(c.Request.Context(), ent.Label, id, updates); err != nil {
		response.RespondAppError(c, err)
		return
	}
	rec, err := ent.GetOne(c.Request.Context(), "id", id, nodes.GetOptions{SkipRelations: true})
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, rec)
}

// GET /api/nodes/:label/:id/creator
func (h *NodeHandler) Creator(c *gin.Context) {
	ent, ok := h.entity(c)
	if !ok {
		return
	}
	rec, err := ent.Creator(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	if rec == nil {
		response.RespondError(c, http.StatusNotFound, "not_found", errUnknownCreator)
		return
	}
	response.RespondOK(c, rec)
}

type reviewedRequest struct {
	Reviewed *bool `json:"reviewed" binding:"required"`
}

// POST /api/nodes/:label/:id/reviewed
func (h *NodeHandler) SetReviewed(c *gin.Context) {
	ent, ok := h.entity(c)
	if !ok {
		return
	}
	var req reviewedRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.atlas.SetReviewed(c.Request.Context(), ent.Label, c.Param("id"), *req.Reviewed); err != nil {
		response.RespondAppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type disambiguateRequest struct {
	Term1Name       string `json:"term1_name" binding:"required"`
	Term1Extension  string `json:"term1_extension"`
	Term1Definition string `json:"term1_definition"`
	Term2Name       string `json:"term2_name" binding:"required"`
	Term2Extension  string `json:"term2_extension"`
	Term2Definition string `json:"term2_definition"`
}

// POST /api/nodes/:label/:id/disambiguate
func (h *NodeHandler) Disambiguate(c *gin.Context) {
	ent, ok := h.entity(c)
	if !ok {
		return
	}
	var req disambiguateRequest
	if !bindJSON(c, &req) {
		return
	}
	rec, err := h.atlas.Disambiguate(c.Request.Context(), ent.Label, c.Param("id"), services.DisambiguateRequest{
		Term1Name:       req.Term1Name,
		Term1Extension:  req.Term1Extension,
		Term1Definition: req.Term1Definition,
		Term2Name:       req.Term2Name,
		Term2Extension:  req.Term2Extension,
		Term2Definition: req.Term2Definition,
	})
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondCreated(c, rec)
}

// GET /api/graph/:label?ids=
func (h *NodeHandler) Graph(c *gin.Context) {
	ent, ok := h.entity(c)
	if !ok {
		return
	}
	ids := queryList(c, "ids")
	if len(ids) == 0 {
		response.RespondError(c, http.StatusBadRequest, "invalid_query", errMissingIDs)
		return
	}
	view, err := ent.Graph(c.Request.Context(), ids)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, view)
}
