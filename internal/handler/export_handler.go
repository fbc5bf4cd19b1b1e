package handler

import (
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/build-biblical-leaders/bbl-api/internal/service"
	appErrors "github.com/build-biblical-leaders/bbl-api/pkg/errors"
	"github.com/build-biblical-leaders/bbl-api/pkg/response"
)

// ExportHandler generates downloadable datasets and streams them back.
type ExportHandler struct {
	service *service.ExportService
}

// NewExportHandler creates a new export handler.
func NewExportHandler(svc *service.ExportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// Generate godoc
// @Summary Generate export
// @Description Build a roster, attempt log, or progress dataset and return a download link
// @Tags Exports
// @Accept json
// @Produce json
// @Param payload body service.ExportRequest true "Export payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /exports [post]
func (h *ExportHandler) Generate(c *gin.Context) {
	var req service.ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export payload"))
		return
	}

	result, err := h.service.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusCreated, result, nil)
}

// Download godoc
// @Summary Download export
// @Description Stream the generated file behind a signed token
// @Tags Exports
// @Produce application/octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Router /exports/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	_, relPath, _, err := h.service.ParseToken(c.Param("token"), false)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "download link is invalid or expired"))
		return
	}

	file, err := h.service.Open(relPath)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "export file not found"))
		return
	}
	defer file.Close()

	c.Header("Content-Disposition", "attachment; filename="+filepath.Base(relPath))
	c.File(file.Name())
}

// Delete godoc
// @Summary Delete export
// @Description Remove a generated file before its TTL expires
// @Tags Exports
// @Produce json
// @Param token path string true "Signed download token"
// @Success 204 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /exports/{token} [delete]
func (h *ExportHandler) Delete(c *gin.Context) {
	_, relPath, _, err := h.service.ParseToken(c.Param("token"), true)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "download token is invalid"))
		return
	}

	if err := h.service.Delete(relPath); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "export file not found"))
		return
	}

	response.NoContent(c)
}
