package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Harsh-BH/sentinel-judge/internal/usecase"
)

// LeaderboardHandler serves leaderboard reads.
type LeaderboardHandler struct {
	getUC  *usecase.GetLeaderboardUsecase
	logger *zap.Logger
}

// NewLeaderboardHandler creates a new LeaderboardHandler.
func NewLeaderboardHandler(getUC *usecase.GetLeaderboardUsecase, logger *zap.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{getUC: getUC, logger: logger}
}

// Get handles GET /api/v1/leaderboard/:type?limit=N
func (h *LeaderboardHandler) Get(c *gin.Context) {
	boardType := c.Param("type")
	// Non-numeric limits fall back to the default like non-positive ones.
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil {
		limit = 0
	}

	entries, err := h.getUC.Execute(c.Request.Context(), boardType, limit)
	if err != nil {
		respondError(c, h.logger, err, zap.String("board", boardType))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    entries,
	})
}
