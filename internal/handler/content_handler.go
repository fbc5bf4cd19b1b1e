package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/build-biblical-leaders/bbl-api/internal/models"
	"github.com/build-biblical-leaders/bbl-api/internal/service"
	appErrors "github.com/build-biblical-leaders/bbl-api/pkg/errors"
	"github.com/build-biblical-leaders/bbl-api/pkg/response"
)

// ContentHandler exposes resource and news publishing.
type ContentHandler struct {
	service *service.ContentService
}

// NewContentHandler creates a new content handler.
func NewContentHandler(svc *service.ContentService) *ContentHandler {
	return &ContentHandler{service: svc}
}

// Create godoc
// @Summary Create content item
// @Tags Content
// @Accept json
// @Produce json
// @Param payload body models.CreateContentRequest true "Content payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /content [post]
func (h *ContentHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.CreateContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid content payload"))
		return
	}

	item, err := h.service.CreateContent(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusCreated, item, nil)
}

// Update godoc
// @Summary Update content item
// @Tags Content
// @Accept json
// @Produce json
// @Param id path string true "Content ID"
// @Param payload body models.UpdateContentRequest true "Content payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /content/{id} [put]
func (h *ContentHandler) Update(c *gin.Context) {
	var req models.UpdateContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid content payload"))
		return
	}

	item, err := h.service.UpdateContent(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, item, nil)
}

// Get godoc
// @Summary Get content item
// @Tags Content
// @Produce json
// @Param id path string true "Content ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /content/{id} [get]
func (h *ContentHandler) Get(c *gin.Context) {
	item, err := h.service.GetContent(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, item, nil)
}

// List godoc
// @Summary List content items
// @Description Pinned items first, then newest
// @Tags Content
// @Produce json
// @Param kind query string false "Kind filter"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /content [get]
func (h *ContentHandler) List(c *gin.Context) {
	var filter models.ContentFilter
	if kind := c.Query("kind"); kind != "" {
		k := models.ContentKind(kind)
		filter.Kind = &k
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		filter.PageSize = size
	}

	items, pagination, err := h.service.ListContent(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, items, pagination)
}

// Delete godoc
// @Summary Delete content item
// @Tags Content
// @Produce json
// @Param id path string true "Content ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /content/{id} [delete]
func (h *ContentHandler) Delete(c *gin.Context) {
	if err := h.service.DeleteContent(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
