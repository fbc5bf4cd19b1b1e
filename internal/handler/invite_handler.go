package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/build-biblical-leaders/bbl-api/internal/models"
	"github.com/build-biblical-leaders/bbl-api/internal/service"
	appErrors "github.com/build-biblical-leaders/bbl-api/pkg/errors"
	"github.com/build-biblical-leaders/bbl-api/pkg/response"
)

// InviteHandler exposes the invite lifecycle.
type InviteHandler struct {
	service *service.InviteService
}

// NewInviteHandler creates a new invite handler.
func NewInviteHandler(svc *service.InviteService) *InviteHandler {
	return &InviteHandler{service: svc}
}

// Create godoc
// @Summary Create invite
// @Description Issue a single-use invite token; an invite mail is queued
// @Tags Invites
// @Accept json
// @Produce json
// @Param payload body models.CreateInviteRequest true "Invite payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /invites [post]
func (h *InviteHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.CreateInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid invite payload"))
		return
	}

	invite, err := h.service.CreateInvite(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusCreated, invite, nil)
}

// List godoc
// @Summary List invites
// @Description List invites created by the caller
// @Tags Invites
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /invites [get]
func (h *InviteHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	invites, err := h.service.ListInvites(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, invites, nil)
}

// Validate godoc
// @Summary Validate invite token
// @Description Check a token without consuming it
// @Tags Invites
// @Produce json
// @Param token path string true "Invite token"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Router /invites/{token} [get]
func (h *InviteHandler) Validate(c *gin.Context) {
	invite, err := h.service.ValidateInvite(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, invite, nil)
}

// Accept godoc
// @Summary Accept invite
// @Description Consume the token, create the account, and open a session
// @Tags Invites
// @Accept json
// @Produce json
// @Param payload body models.AcceptInviteRequest true "Accept payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Router /invites/accept [post]
func (h *InviteHandler) Accept(c *gin.Context) {
	var req models.AcceptInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid accept payload"))
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	res, err := h.service.AcceptInvite(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusCreated, res, nil)
}
