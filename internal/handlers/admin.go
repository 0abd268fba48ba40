// internal/handlers/admin.go
package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/campushub/backend/internal/i18n"
	"github.com/campushub/backend/internal/models"
	"github.com/campushub/backend/internal/services"
	"github.com/campushub/backend/internal/utils"
)

type AdminHandler struct {
	adminService *services.AdminService
}

func NewAdminHandler(adminService *services.AdminService) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
	}
}

// GET /admin/dashboard/stats
func (h *AdminHandler) GetDashboardStats(c *gin.Context) {
	stats, err := h.adminService.GetDashboardStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"stats": stats,
	})
}

// GET /admin/profiles
func (h *AdminHandler) GetProfiles(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	filter := services.AdminProfileFilter{
		PaginationParams: params,
	}
	if role := c.Query("role"); role != "" {
		r := models.ProfileRole(role)
		filter.Role = &r
	}

	profiles, total, err := h.adminService.GetProfiles(filter)
	if err != nil {
		respondError(c, err)
		return
	}

	result := utils.CreatePaginationResult(profiles, total, params)
	utils.PaginatedResponse(c, result)
}

// PUT /admin/profiles/:id/role
func (h *AdminHandler) UpdateProfileRole(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	adminID, ok := currentProfile(c)
	if !ok {
		return
	}
	profileID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req services.UpdateRoleRequest
	if !bindAndValidate(c, &req) {
		return
	}

	profile, err := h.adminService.UpdateProfileRole(adminID, profileID, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyAdminRoleUpdated),
		"profile": profile,
	})
}

// GET /admin/payments
func (h *AdminHandler) GetPayments(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	filter := services.AdminPaymentFilter{
		PaginationParams: params,
	}

	if method := c.Query("method"); method != "" {
		m := models.PaymentMethod(method)
		filter.Method = &m
	}

	if payerIDStr := c.Query("payer_id"); payerIDStr != "" {
		if payerID, err := uuid.Parse(payerIDStr); err == nil {
			filter.PayerID = &payerID
		}
	}

	if sellerIDStr := c.Query("seller_id"); sellerIDStr != "" {
		if sellerID, err := uuid.Parse(sellerIDStr); err == nil {
			filter.SellerID = &sellerID
		}
	}

	if createdAfter := c.Query("created_after"); createdAfter != "" {
		if t, err := time.Parse("2006-01-02", createdAfter); err == nil {
			filter.CreatedAfter = &t
		}
	}

	if createdBefore := c.Query("created_before"); createdBefore != "" {
		if t, err := time.Parse("2006-01-02", createdBefore); err == nil {
			filter.CreatedBefore = &t
		}
	}

	payments, total, err := h.adminService.GetPayments(filter)
	if err != nil {
		respondError(c, err)
		return
	}

	result := utils.CreatePaginationResult(payments, total, params)
	utils.PaginatedResponse(c, result)
}

// POST /admin/payments/sweep
func (h *AdminHandler) SweepPending(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	swept, err := h.adminService.SweepPending(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyAdminSweepDone, swept),
		"swept":   swept,
	})
}

// GET /admin/audit-logs
func (h *AdminHandler) GetAuditLogs(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	filter := services.AdminAuditFilter{
		PaginationParams: params,
		ResourceType:     c.Query("resource_type"),
	}
	if profileIDStr := c.Query("profile_id"); profileIDStr != "" {
		if profileID, err := uuid.Parse(profileIDStr); err == nil {
			filter.ProfileID = &profileID
		}
	}

	logs, total, err := h.adminService.GetAuditLogs(filter)
	if err != nil {
		respondError(c, err)
		return
	}

	result := utils.CreatePaginationResult(logs, total, params)
	utils.PaginatedResponse(c, result)
}
