package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
)

// LanguageLister exposes the configured language allow-list.
type LanguageLister interface {
	Info() []domain.LanguageInfo
}

// LanguageHandler handles language listing requests.
type LanguageHandler struct {
	languages LanguageLister
}

// NewLanguageHandler creates a new LanguageHandler.
func NewLanguageHandler(languages LanguageLister) *LanguageHandler {
	return &LanguageHandler{languages: languages}
}

// List handles GET /api/v1/languages
func (h *LanguageHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"languages": h.languages.Info(),
	})
}
