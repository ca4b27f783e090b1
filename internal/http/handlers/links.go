package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/poldracklab/cogat/internal/data/repos/nodes"
	"github.com/poldracklab/cogat/internal/http/response"
	"github.com/poldracklab/cogat/internal/platform/logger"
	"github.com/poldracklab/cogat/internal/services"
)

type LinkHandler struct {
	log   *logger.Logger
	repo  nodes.NodeRepo
	atlas services.AtlasService
}

func NewLinkHandler(log *logger.Logger, repo nodes.NodeRepo, atlasService services.AtlasService) *LinkHandler {
	return &LinkHandler{
		log:   log.With("handler", "LinkHandler"),
		repo:  repo,
		atlas: atlasService,
	}
}

type linkRequest struct {
	SrcLabel   string         `json:"src_label" binding:"required"`
	SrcID      string         `json:"src_id" binding:"required"`
	DestID     string         `json:"dest_id" binding:"required"`
	DestLabel  string         `json:"dest_label"`
	Relation   string         `json:"relation" binding:"required"`
	Properties map[string]any `json:"properties"`
}

// POST /api/links
func (h *LinkHandler) Link(c *gin.Context) {
	var req linkRequest
	if !bindJSON(c, &req) {
		return
	}
	edge, err := h.atlas.Link(c.Request.Context(), req.SrcLabel, req.SrcID, req.DestID, req.Relation, nodes.LinkOptions{
		DestLabel: req.DestLabel,
		Props:     req.Properties,
	})
	if err != nil {
		h.log.Warn("link failed", "relation", req.Relation, "src_id", req.SrcID, "dest_id", req.DestID, "error", err)
		response.RespondAppError(c, err)
		return
	}
	status := http.StatusOK
	if edge.Created {
		status = http.StatusCreated
	}
	c.JSON(status, edge)
}

// DELETE /api/links
func (h *LinkHandler) Unlink(c *gin.Context) {
	var req linkRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.atlas.Unlink(c.Request.Context(), req.SrcLabel, req.SrcID, req.DestID, req.Relation, req.DestLabel); err != nil {
		response.RespondAppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PATCH /api/links
func (h *LinkHandler) UpdateProperties(c *gin.Context) {
	var req linkRequest
	if !bindJSON(c, &req) {
		return
	}
	err := h.repo.UpdateLinkProperties(c.Request.Context(), req.SrcLabel, req.SrcID, req.DestID, req.Relation, req.DestLabel, req.Properties)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type createAndLinkRequest struct {
	SrcLabel   string         `json:"src_label" binding:"required"`
	SrcID      string         `json:"src_id" binding:"required"`
	DestLabel  string         `json:"dest_label" binding:"required"`
	Name       string         `json:"name" binding:"required,max=255"`
	Properties map[string]any `json:"properties"`
	Relation   string         `json:"relation" binding:"required"`
	Reverse    bool           `json:"reverse"`
}

// POST /api/links/create
func (h *LinkHandler) CreateAndLink(c *gin.Context) {
	var req createAndLinkRequest
	if !bindJSON(c, &req) {
		return
	}
	rec, err := h.atlas.CreateAndLink(c.Request.Context(), services.CreateAndLinkRequest{
		SrcLabel:  req.SrcLabel,
		SrcID:     req.SrcID,
		DestLabel: req.DestLabel,
		Name:      req.Name,
		Props:     req.Properties,
		Relation:  req.Relation,
		Reverse:   req.Reverse,
	})
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondCreated(c, rec)
}

// GET /api/relations/:relation/node-type
func (h *LinkHandler) RelationNodeType(c *gin.Context) {
	rel := c.Param("relation")
	response.RespondOK(c, gin.H{
		"relation":  rel,
		"node_type": h.repo.Registry().RelationNodeType(rel),
	})
}
