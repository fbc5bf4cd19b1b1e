package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/build-biblical-leaders/bbl-api/internal/models"
	"github.com/build-biblical-leaders/bbl-api/internal/service"
	appErrors "github.com/build-biblical-leaders/bbl-api/pkg/errors"
	"github.com/build-biblical-leaders/bbl-api/pkg/response"
)

// ProgressHandler exposes quiz attempts and completion reads.
type ProgressHandler struct {
	service *service.ProgressService
}

// NewProgressHandler creates a new progress handler.
func NewProgressHandler(svc *service.ProgressService) *ProgressHandler {
	return &ProgressHandler{service: svc}
}

// SubmitAttempt godoc
// @Summary Submit quiz attempt
// @Description Append a quiz answer; attempts are never overwritten
// @Tags Progress
// @Accept json
// @Produce json
// @Param payload body models.SubmitAttemptRequest true "Attempt payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /progress/attempts [post]
func (h *ProgressHandler) SubmitAttempt(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.SubmitAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid attempt payload"))
		return
	}

	attempt, err := h.service.SubmitAttempt(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusCreated, attempt, nil)
}

// LessonProgress godoc
// @Summary Get lesson progress
// @Description Completion and score for one lesson
// @Tags Progress
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /progress/lessons/{id} [get]
func (h *ProgressHandler) LessonProgress(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	progress, err := h.service.GetLessonProgress(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, progress, nil)
}

// Summary godoc
// @Summary Get progress summary
// @Description Per-lesson completion and the running average score
// @Tags Progress
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /progress/summary [get]
func (h *ProgressHandler) Summary(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	summary, err := h.service.GetStudentSummary(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, summary, nil)
}

// StudentSummary godoc
// @Summary Get a student's progress summary
// @Description Progress summary for a specific student
// @Tags Progress
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /progress/students/{id} [get]
func (h *ProgressHandler) StudentSummary(c *gin.Context) {
	summary, err := h.service.GetStudentSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, summary, nil)
}

// ModuleEligibility godoc
// @Summary Get module eligibility
// @Description Whether the caller meets a module's completion requirements
// @Tags Progress
// @Produce json
// @Param id path string true "Module ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /progress/modules/{id}/eligibility [get]
func (h *ProgressHandler) ModuleEligibility(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	eligibility, err := h.service.GetModuleEligibility(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, eligibility, nil)
}

// EligibleModules godoc
// @Summary List module eligibility
// @Description Eligibility for every module
// @Tags Progress
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /progress/modules [get]
func (h *ProgressHandler) EligibleModules(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	modules, err := h.service.ListEligibleModules(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, modules, nil)
}
