package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/build-biblical-leaders/bbl-api/internal/middleware"
	"github.com/build-biblical-leaders/bbl-api/internal/models"
	"github.com/build-biblical-leaders/bbl-api/internal/service"
	appErrors "github.com/build-biblical-leaders/bbl-api/pkg/errors"
	"github.com/build-biblical-leaders/bbl-api/pkg/response"
)

// CurriculumHandler exposes course tree reads and publishing.
type CurriculumHandler struct {
	service *service.CurriculumService
}

// NewCurriculumHandler creates a new curriculum handler.
func NewCurriculumHandler(svc *service.CurriculumService) *CurriculumHandler {
	return &CurriculumHandler{service: svc}
}

// Tree godoc
// @Summary Get course tree
// @Description Full course, module, and lesson hierarchy
// @Tags Curriculum
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /curriculum/tree [get]
func (h *CurriculumHandler) Tree(c *gin.Context) {
	start := time.Now()
	tree, cacheHit, err := h.service.GetCourseTree(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, tree, nil, meta)
}

// GetLesson godoc
// @Summary Get lesson
// @Tags Curriculum
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /lessons/{id} [get]
func (h *CurriculumHandler) GetLesson(c *gin.Context) {
	lesson, err := h.service.GetLesson(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, lesson, nil)
}

// AdjacentLessons godoc
// @Summary Get adjacent lessons
// @Description Previous and next lesson in the caller's effective ordering
// @Tags Curriculum
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /lessons/{id}/adjacent [get]
func (h *CurriculumHandler) AdjacentLessons(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	adjacent, err := h.service.GetAdjacentLessons(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, adjacent, nil)
}

// EffectiveModules godoc
// @Summary List effective modules
// @Description Course modules in the caller's effective order
// @Tags Curriculum
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/modules [get]
func (h *CurriculumHandler) EffectiveModules(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	modules, err := h.service.EffectiveModules(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, modules, nil)
}

// PublishCourse godoc
// @Summary Publish course
// @Description Create or update a course
// @Tags Curriculum
// @Accept json
// @Produce json
// @Param payload body service.PublishCourseRequest true "Course payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /curriculum/courses [post]
func (h *CurriculumHandler) PublishCourse(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.PublishCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid course payload"))
		return
	}

	course, err := h.service.PublishCourse(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, course, nil)
}

// PublishModule godoc
// @Summary Publish module
// @Description Create or update a module within a course
// @Tags Curriculum
// @Accept json
// @Produce json
// @Param payload body service.PublishModuleRequest true "Module payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /curriculum/modules [post]
func (h *CurriculumHandler) PublishModule(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.PublishModuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid module payload"))
		return
	}

	module, err := h.service.PublishModule(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, module, nil)
}

// PublishLesson godoc
// @Summary Publish lesson
// @Description Create or update a lesson; reset_progress purges attempts
// @Tags Curriculum
// @Accept json
// @Produce json
// @Param payload body service.PublishLessonRequest true "Lesson payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /curriculum/lessons [post]
func (h *CurriculumHandler) PublishLesson(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.PublishLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid lesson payload"))
		return
	}

	lesson, err := h.service.PublishLesson(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, lesson, nil)
}

// DeleteLesson godoc
// @Summary Delete lesson
// @Description Remove a lesson and purge its progress
// @Tags Curriculum
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /curriculum/lessons/{id} [delete]
func (h *CurriculumHandler) DeleteLesson(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.DeleteLesson(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// CommitDraft godoc
// @Summary Commit course draft
// @Description Atomically persist a whole course draft
// @Tags Curriculum
// @Accept json
// @Produce json
// @Param payload body models.CourseDraft true "Course draft"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /curriculum/drafts/commit [post]
func (h *CurriculumHandler) CommitDraft(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var draft models.CourseDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid draft payload"))
		return
	}

	course, err := h.service.CommitDraft(c.Request.Context(), claims.UserID, draft)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusCreated, course, nil)
}
