// internal/handlers/escrow.go
package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/campushub/backend/internal/i18n"
	"github.com/campushub/backend/internal/models"
	"github.com/campushub/backend/internal/services"
	"github.com/campushub/backend/internal/utils"
)

type EscrowHandler struct {
	escrowService *services.EscrowService
}

func NewEscrowHandler(escrowService *services.EscrowService) *EscrowHandler {
	return &EscrowHandler{
		escrowService: escrowService,
	}
}

// GET /escrows?role=buyer|seller|all
func (h *EscrowHandler) GetEscrows(c *gin.Context) {
	profileID, ok := currentProfile(c)
	if !ok {
		return
	}

	role := models.EscrowRole(c.DefaultQuery("role", string(models.EscrowRoleAll)))
	escrows, err := h.escrowService.ListEscrows(c.Request.Context(), profileID, role)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"escrows": escrows,
		"total":   len(escrows),
	})
}

// POST /escrows/:id/release
func (h *EscrowHandler) Release(c *gin.Context) {
	h.settle(c, h.escrowService.Release, i18n.KeyEscrowReleased)
}

// POST /escrows/:id/refund
func (h *EscrowHandler) Refund(c *gin.Context) {
	h.settle(c, h.escrowService.Refund, i18n.KeyEscrowRefunded)
}

type settleFunc func(ctx context.Context, profileID, paymentID uuid.UUID) (*models.Payment, error)

func (h *EscrowHandler) settle(c *gin.Context, fn settleFunc, successKey string) {
	lang := utils.GetLangFromContext(c)
	profileID, ok := currentProfile(c)
	if !ok {
		return
	}
	paymentID, ok := paramID(c, "id")
	if !ok {
		return
	}

	p, err := fn(c.Request.Context(), profileID, paymentID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, successKey),
		"payment": p,
	})
}
