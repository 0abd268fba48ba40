// internal/handlers/payment.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/campushub/backend/internal/i18n"
	"github.com/campushub/backend/internal/models"
	"github.com/campushub/backend/internal/services"
	"github.com/campushub/backend/internal/utils"
	"github.com/campushub/backend/pkg/payment"
)

type PaymentHandler struct {
	paymentService *services.PaymentService
}

func NewPaymentHandler(paymentService *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

// POST /payments
func (h *PaymentHandler) Purchase(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	payerID, ok := currentProfile(c)
	if !ok {
		return
	}

	var req services.PurchaseRequest
	if !bindAndValidate(c, &req) {
		return
	}

	p, err := h.paymentService.Purchase(c.Request.Context(), payerID, &req)
	if err != nil {
		if p == nil || p.PaymentStatus != models.PaymentStatusFailed {
			respondError(c, err)
			return
		}
		respondPaymentFailure(c, p, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyPaymentSuccess),
		"payment": p,
	})
}

// POST /payments/escrow-call
func (h *PaymentHandler) PrepareEscrow(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	payerID, ok := currentProfile(c)
	if !ok {
		return
	}

	var req services.PrepareEscrowRequest
	if !bindAndValidate(c, &req) {
		return
	}

	call, err := h.paymentService.PrepareEscrow(c.Request.Context(), payerID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":     i18n.T(lang, i18n.KeyPaymentEscrowPrepared),
		"transaction": call,
	})
}

// respondPaymentFailure answers a purchase whose record was created and then
// marked failed. The failed record is returned so the client can show it.
func respondPaymentFailure(c *gin.Context, p *models.Payment, err error) {
	lang := utils.GetLangFromContext(c)

	switch {
	case errors.Is(err, services.ErrEscrowMismatch),
		errors.Is(err, services.ErrPaymentNotPending),
		errors.Is(err, payment.ErrProviderNotIntegrated):
		respondError(c, err)
		return
	}

	reason := i18n.T(lang, i18n.KeyExternalServiceError)
	if errors.Is(err, payment.ErrDeclined) {
		reason = err.Error()
	}

	logrus.WithError(err).WithFields(logrus.Fields{
		"payment_id": p.ID,
		"method":     p.PaymentMethod,
	}).Warn("Purchase failed")

	utils.ErrorResponse(c, http.StatusBadGateway, "PAYMENT_FAILED",
		i18n.T(lang, i18n.KeyPaymentFailed, reason), gin.H{"payment": p})
}

// GET /payments
func (h *PaymentHandler) GetPayments(c *gin.Context) {
	profileID, ok := currentProfile(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	payments, total, err := h.paymentService.ListPayments(c.Request.Context(), profileID, params)
	if err != nil {
		respondError(c, err)
		return
	}

	result := utils.CreatePaginationResult(payments, total, params)
	utils.PaginatedResponse(c, result)
}

// GET /payments/:id
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	profileID, ok := currentProfile(c)
	if !ok {
		return
	}
	paymentID, ok := paramID(c, "id")
	if !ok {
		return
	}

	p, err := h.paymentService.GetPayment(c.Request.Context(), profileID, paymentID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"payment": p,
	})
}

// GET /wallet/status
func (h *PaymentHandler) GetWalletStatus(c *gin.Context) {
	utils.SuccessResponse(c, h.paymentService.WalletStatus(c.Request.Context()))
}
