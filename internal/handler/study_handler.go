package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/build-biblical-leaders/bbl-api/internal/service"
	appErrors "github.com/build-biblical-leaders/bbl-api/pkg/errors"
	"github.com/build-biblical-leaders/bbl-api/pkg/response"
)

// StudyHandler exposes per-lesson study aid documents.
type StudyHandler struct {
	service *service.StudyService
}

// NewStudyHandler creates a new study handler.
func NewStudyHandler(svc *service.StudyService) *StudyHandler {
	return &StudyHandler{service: svc}
}

// Save godoc
// @Summary Save study aid
// @Description Replace the whole document for a (lesson, kind) key
// @Tags Study
// @Accept json
// @Produce json
// @Param lessonId path string true "Lesson ID"
// @Param kind path string true "Study aid kind"
// @Param payload body object true "Document payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /study/lessons/{lessonId}/{kind} [put]
func (h *StudyHandler) Save(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload json.RawMessage
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid study aid payload"))
		return
	}

	aid, err := h.service.SaveAid(c.Request.Context(), claims.UserID, c.Param("lessonId"), c.Param("kind"), payload)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, aid, nil)
}

// Get godoc
// @Summary Get study aid
// @Description The stored document; missing documents come back empty
// @Tags Study
// @Produce json
// @Param lessonId path string true "Lesson ID"
// @Param kind path string true "Study aid kind"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /study/lessons/{lessonId}/{kind} [get]
func (h *StudyHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	aid, err := h.service.GetAid(c.Request.Context(), claims.UserID, c.Param("lessonId"), c.Param("kind"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, aid, nil)
}

// List godoc
// @Summary List study aids
// @Description Every study aid the caller has for a lesson
// @Tags Study
// @Produce json
// @Param lessonId path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Router /study/lessons/{lessonId} [get]
func (h *StudyHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	aids, err := h.service.ListAids(c.Request.Context(), claims.UserID, c.Param("lessonId"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, aids, nil)
}
