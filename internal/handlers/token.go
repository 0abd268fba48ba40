// internal/handlers/token.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/campushub/backend/internal/i18n"
	"github.com/campushub/backend/internal/services"
	"github.com/campushub/backend/internal/utils"
)

type TokenHandler struct {
	tokenService *services.TokenService
}

func NewTokenHandler(tokenService *services.TokenService) *TokenHandler {
	return &TokenHandler{
		tokenService: tokenService,
	}
}

// GET /tokens/balance
func (h *TokenHandler) GetBalance(c *gin.Context) {
	profileID, ok := currentProfile(c)
	if !ok {
		return
	}

	balance, err := h.tokenService.GetBalance(c.Request.Context(), profileID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, balance)
}

// GET /tokens/claims
func (h *TokenHandler) GetClaims(c *gin.Context) {
	profileID, ok := currentProfile(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	claims, total, err := h.tokenService.ListClaims(c.Request.Context(), profileID, params)
	if err != nil {
		respondError(c, err)
		return
	}

	result := utils.CreatePaginationResult(claims, total, params)
	utils.PaginatedResponse(c, result)
}

// GET /tokens/tasks
func (h *TokenHandler) GetTasks(c *gin.Context) {
	profileID, ok := currentProfile(c)
	if !ok {
		return
	}

	tasks, err := h.tokenService.ListClaimableTasks(c.Request.Context(), profileID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"today": h.tokenService.Today(),
		"tasks": tasks,
	})
}

// POST /tokens/claim
func (h *TokenHandler) Claim(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	profileID, ok := currentProfile(c)
	if !ok {
		return
	}

	var req services.ClaimRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.tokenService.Claim(c.Request.Context(), profileID, req.ClaimType)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyTokensClaimed, result.Claim.TokensEarned),
		"claim":   result.Claim,
		"balance": result.Balance,
	})
}
