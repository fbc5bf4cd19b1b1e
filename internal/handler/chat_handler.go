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

// ChatHandler exposes scoped channels and messages.
type ChatHandler struct {
	service *service.ChatService
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(svc *service.ChatService) *ChatHandler {
	return &ChatHandler{service: svc}
}

// CreateChannel godoc
// @Summary Create channel
// @Description Create a global, org, or class scoped channel
// @Tags Chat
// @Accept json
// @Produce json
// @Param payload body models.CreateChannelRequest true "Channel payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /chat/channels [post]
func (h *ChatHandler) CreateChannel(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.CreateChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid channel payload"))
		return
	}

	channel, err := h.service.CreateChannel(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusCreated, channel, nil)
}

// ListChannels godoc
// @Summary List visible channels
// @Tags Chat
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /chat/channels [get]
func (h *ChatHandler) ListChannels(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	channels, err := h.service.ListChannels(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, channels, nil)
}

// SendMessage godoc
// @Summary Post message
// @Description Post to a channel visible to the caller
// @Tags Chat
// @Accept json
// @Produce json
// @Param id path string true "Channel ID"
// @Param payload body models.SendMessageRequest true "Message payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /chat/channels/{id}/messages [post]
func (h *ChatHandler) SendMessage(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid message payload"))
		return
	}

	message, err := h.service.SendMessage(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusCreated, message, nil)
}

// ChannelMessages godoc
// @Summary List channel messages
// @Description Messages in posting order
// @Tags Chat
// @Produce json
// @Param id path string true "Channel ID"
// @Param limit query int false "Max messages"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /chat/channels/{id}/messages [get]
func (h *ChatHandler) ChannelMessages(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	messages, err := h.service.GetChannelMessages(c.Request.Context(), claims.UserID, c.Param("id"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, messages, nil)
}

// RecentMessages godoc
// @Summary List recent messages
// @Description Newest messages across every visible channel
// @Tags Chat
// @Produce json
// @Param limit query int false "Max messages"
// @Success 200 {object} response.Envelope
// @Router /chat/recent [get]
func (h *ChatHandler) RecentMessages(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	messages, err := h.service.GetRecentMessages(c.Request.Context(), claims.UserID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, messages, nil)
}
