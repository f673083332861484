package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
	"github.com/Harsh-BH/sentinel-judge/internal/usecase"
)

// SubmissionHandler handles HTTP requests for submissions.
type SubmissionHandler struct {
	submitUC *usecase.SubmitSubmissionUsecase
	getUC    *usecase.GetSubmissionUsecase
	updateUC *usecase.UpdateStatusUsecase
	listUC   *usecase.ListSubmissionsUsecase
	deleteUC *usecase.DeleteSubmissionUsecase
	logger   *zap.Logger
}

// NewSubmissionHandler creates a new SubmissionHandler.
func NewSubmissionHandler(
	submitUC *usecase.SubmitSubmissionUsecase,
	getUC *usecase.GetSubmissionUsecase,
	updateUC *usecase.UpdateStatusUsecase,
	listUC *usecase.ListSubmissionsUsecase,
	deleteUC *usecase.DeleteSubmissionUsecase,
	logger *zap.Logger,
) *SubmissionHandler {
	return &SubmissionHandler{
		submitUC: submitUC,
		getUC:    getUC,
		updateUC: updateUC,
		listUC:   listUC,
		deleteUC: deleteUC,
		logger:   logger,
	}
}

// Submit handles POST /api/v1/submissions
func (h *SubmissionHandler) Submit(c *gin.Context) {
	var req domain.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": domain.ErrPayloadTooLarge.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	resp, err := h.submitUC.Execute(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err, zap.String("problem_id", req.ProblemID))
		return
	}

	c.JSON(http.StatusAccepted, resp)
}

// GetByID handles GET /api/v1/submissions/:id
func (h *SubmissionHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	sub, err := h.getUC.Execute(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, zap.String("submission_id", id.String()))
		return
	}

	c.JSON(http.StatusOK, sub)
}

// UpdateStatus handles PATCH /api/v1/submissions/:id/status
func (h *SubmissionHandler) UpdateStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req domain.StatusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	sub, err := h.updateUC.Execute(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, h.logger, err, zap.String("submission_id", id.String()))
		return
	}

	c.JSON(http.StatusOK, sub)
}

// List handles GET /api/v1/submissions?problemId=P&limit=N
func (h *SubmissionHandler) List(c *gin.Context) {
	problemID := c.Query("problemId")
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil {
		limit = 0
	}

	subs, err := h.listUC.Execute(c.Request.Context(), problemID, limit)
	if err != nil {
		respondError(c, h.logger, err, zap.String("problem_id", problemID))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    subs,
	})
}

// Delete handles DELETE /api/v1/submissions/:id
func (h *SubmissionHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.deleteUC.Execute(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err, zap.String("submission_id", id.String()))
		return
	}

	c.Status(http.StatusNoContent)
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid submission ID format"})
		return uuid.Nil, false
	}
	return id, true
}
