package handler

import (
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/build-biblical-leaders/bbl-api/internal/models"
	"github.com/build-biblical-leaders/bbl-api/internal/service"
	appErrors "github.com/build-biblical-leaders/bbl-api/pkg/errors"
	"github.com/build-biblical-leaders/bbl-api/pkg/response"
)

// CertificateHandler exposes certificate issuance, verification, and
// signed downloads.
type CertificateHandler struct {
	service *service.CertificateService
}

// NewCertificateHandler creates a new certificate handler.
func NewCertificateHandler(svc *service.CertificateService) *CertificateHandler {
	return &CertificateHandler{service: svc}
}

// Issue godoc
// @Summary Issue certificate
// @Description Issue a module certificate when requirements are met; idempotent
// @Tags Certificates
// @Accept json
// @Produce json
// @Param payload body models.IssueCertificateRequest true "Issue payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /certificates [post]
func (h *CertificateHandler) Issue(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.IssueCertificateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid certificate payload"))
		return
	}

	cert, err := h.service.IssueCertificate(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusCreated, cert, nil)
}

// Get godoc
// @Summary Get certificate
// @Description The caller's certificate for a module, with a fresh download link
// @Tags Certificates
// @Produce json
// @Param moduleId path string true "Module ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /certificates/modules/{moduleId} [get]
func (h *CertificateHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	cert, err := h.service.GetCertificate(c.Request.Context(), claims.UserID, c.Param("moduleId"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, cert, nil)
}

// List godoc
// @Summary List certificates
// @Description Every certificate the caller holds
// @Tags Certificates
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /certificates [get]
func (h *CertificateHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	certs, err := h.service.ListCertificates(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, certs, nil)
}

// Verify godoc
// @Summary Verify certificate code
// @Description Public verification by short code; unknown codes report invalid
// @Tags Certificates
// @Produce json
// @Param code path string true "Certificate code"
// @Success 200 {object} response.Envelope
// @Router /certificates/verify/{code} [get]
func (h *CertificateHandler) Verify(c *gin.Context) {
	result, err := h.service.VerifyCertificate(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result, nil)
}

// Download godoc
// @Summary Download certificate PDF
// @Description Stream the PDF behind a signed token
// @Tags Certificates
// @Produce application/pdf
// @Param token path string true "Signed download token"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Router /certificates/download/{token} [get]
func (h *CertificateHandler) Download(c *gin.Context) {
	path, err := h.service.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+filepath.Base(path))
	c.File(path)
}
