package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/skillstore/jobengine/internal/api/dto"
	"github.com/skillstore/jobengine/internal/quota"
)

// TokenHandler handles share token HTTP requests
type TokenHandler struct {
	logger  *slog.Logger
	counter *quota.Counter
}

// NewTokenHandler creates a new TokenHandler instance
func NewTokenHandler(deps *Dependencies) *TokenHandler {
	return &TokenHandler{
		logger:  deps.Logger,
		counter: deps.Counter,
	}
}

func tokenToDTO(token *quota.Token) dto.TokenDTO {
	return dto.TokenDTO{
		TokenID:       token.TokenID,
		DownloadCount: token.DownloadCount,
		DownloadLimit: token.DownloadLimit,
		Remaining:     token.Remaining(),
	}
}

// CreateToken handles POST /api/v1/tokens
func (h *TokenHandler) CreateToken(c *gin.Context) {
	var req dto.CreateTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	token, err := h.counter.Create(c.Request.Context(), uuid.New().String(), req.DownloadLimit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, tokenToDTO(token))
}

// GetToken handles GET /api/v1/tokens/:token_id
func (h *TokenHandler) GetToken(c *gin.Context) {
	token, err := h.counter.Get(c.Request.Context(), c.Param("token_id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, tokenToDTO(token))
}

// Download handles POST /api/v1/tokens/:token_id/download
// Spends one download. An exhausted token answers 429 without touching
// the counter.
func (h *TokenHandler) Download(c *gin.Context) {
	token, err := h.counter.Consume(c.Request.Context(), c.Param("token_id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, tokenToDTO(token))
}
