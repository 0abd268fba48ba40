// internal/services/admin_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/campushub/backend/internal/models"
	"github.com/campushub/backend/internal/utils"
)

type AdminService struct {
	db         *gorm.DB
	payments   *PaymentService
	pendingTTL time.Duration
}

type AdminDashboardStats struct {
	TotalProfiles        int64                          `json:"total_profiles"`
	NewProfilesThisMonth int64                          `json:"new_profiles_this_month"`
	LinkedPhones         int64                          `json:"linked_phones"`
	OpenOpportunities    int64                          `json:"open_opportunities"`
	TotalPayments        int64                          `json:"total_payments"`
	PaymentsByStatus     map[models.PaymentStatus]int64 `json:"payments_by_status"`
	HeldVolume           decimal.Decimal                `json:"held_volume"`
	TokensIssued         int64                          `json:"tokens_issued"`
}

type AdminProfileFilter struct {
	utils.PaginationParams
	Role *models.ProfileRole `json:"role,omitempty"`
}

type AdminPaymentFilter struct {
	utils.PaginationParams
	Method        *models.PaymentMethod `json:"method,omitempty"`
	PayerID       *uuid.UUID            `json:"payer_id,omitempty"`
	SellerID      *uuid.UUID            `json:"seller_id,omitempty"`
	CreatedAfter  *time.Time            `json:"created_after,omitempty"`
	CreatedBefore *time.Time            `json:"created_before,omitempty"`
}

type AdminAuditFilter struct {
	utils.PaginationParams
	ProfileID    *uuid.UUID `json:"profile_id,omitempty"`
	ResourceType string     `json:"resource_type,omitempty"`
}

type UpdateRoleRequest struct {
	Role models.ProfileRole `json:"role" validate:"required,oneof=student admin"`
}

func NewAdminService(db *gorm.DB, payments *PaymentService, pendingTTL time.Duration) *AdminService {
	return &AdminService{
		db:         db,
		payments:   payments,
		pendingTTL: pendingTTL,
	}
}

// Dashboard Statistics
func (s *AdminService) GetDashboardStats(ctx context.Context) (*AdminDashboardStats, error) {
	db := s.db.WithContext(ctx)
	stats := &AdminDashboardStats{PaymentsByStatus: make(map[models.PaymentStatus]int64)}
	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	// Profile statistics
	if err := db.Model(&models.Profile{}).Count(&stats.TotalProfiles).Error; err != nil {
		return nil, fmt.Errorf("failed to count profiles: %w", err)
	}
	db.Model(&models.Profile{}).Where("created_at >= ?", monthStart).Count(&stats.NewProfilesThisMonth)
	db.Model(&models.Profile{}).Where("phone_number IS NOT NULL").Count(&stats.LinkedPhones)

	db.Model(&models.Opportunity{}).Where("status = ?", models.OpportunityStatusOpen).Count(&stats.OpenOpportunities)

	// Payment statistics
	var byStatus []struct {
		PaymentStatus models.PaymentStatus
		Count         int64
	}
	if err := db.Model(&models.Payment{}).
		Select("payment_status, COUNT(*) AS count").
		Group("payment_status").
		Scan(&byStatus).Error; err != nil {
		return nil, fmt.Errorf("failed to count payments: %w", err)
	}
	for _, row := range byStatus {
		stats.PaymentsByStatus[row.PaymentStatus] = row.Count
		stats.TotalPayments += row.Count
	}

	// SUM over a decimal column scans differently per driver
	var held []decimal.Decimal
	if err := db.Model(&models.Payment{}).
		Where("payment_status = ?", models.PaymentStatusCompleted).
		Pluck("amount", &held).Error; err != nil {
		return nil, fmt.Errorf("failed to sum held payments: %w", err)
	}
	for _, amount := range held {
		stats.HeldVolume = stats.HeldVolume.Add(amount)
	}

	db.Model(&models.TokenClaim{}).Select("COALESCE(SUM(tokens_earned), 0)").Scan(&stats.TokensIssued)

	return stats, nil
}

// Profile Management
func (s *AdminService) GetProfiles(filter AdminProfileFilter) ([]models.Profile, int64, error) {
	query := s.db.Model(&models.Profile{})

	if filter.Role != nil {
		query = query.Where("role = ?", *filter.Role)
	}
	if filter.Search != "" {
		term := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where("(LOWER(username) LIKE ? OR LOWER(email) LIKE ? OR LOWER(display_name) LIKE ?)", term, term, term)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count profiles: %w", err)
	}

	allowedSortFields := []string{"created_at", "username", "email", "last_login_at"}
	query = utils.ApplySort(query, filter.PaginationParams, allowedSortFields)
	query = utils.ApplyPagination(query, filter.PaginationParams)

	var profiles []models.Profile
	if err := query.Find(&profiles).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch profiles: %w", err)
	}

	return profiles, total, nil
}

func (s *AdminService) UpdateProfileRole(adminID, profileID uuid.UUID, role models.ProfileRole) (*models.Profile, error) {
	if adminID == profileID {
		return nil, ErrOwnRoleChange
	}

	var profile models.Profile
	if err := s.db.First(&profile, "id = ?", profileID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	oldRole := profile.Role
	if err := s.db.Model(&profile).Update("role", role).Error; err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}
	profile.Role = role

	logrus.WithFields(logrus.Fields{
		"admin_id":   adminID,
		"profile_id": profileID,
		"old_role":   oldRole,
		"new_role":   role,
	}).Info("Profile role changed")

	return &profile, nil
}

// Payment Oversight
func (s *AdminService) GetPayments(filter AdminPaymentFilter) ([]models.Payment, int64, error) {
	query := s.db.Model(&models.Payment{})

	if filter.Status != "" {
		query = query.Where("payment_status = ?", filter.Status)
	}
	if filter.Method != nil {
		query = query.Where("payment_method = ?", *filter.Method)
	}
	if filter.PayerID != nil {
		query = query.Where("payer_id = ?", *filter.PayerID)
	}
	if filter.SellerID != nil {
		query = query.Where("seller_id = ?", *filter.SellerID)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at <= ?", *filter.CreatedBefore)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count payments: %w", err)
	}

	allowedSortFields := []string{"created_at", "amount", "payment_status", "completed_at"}
	query = utils.ApplySort(query, filter.PaginationParams, allowedSortFields)
	query = utils.ApplyPagination(query, filter.PaginationParams)

	var payments []models.Payment
	if err := query.Preload("Opportunity").Find(&payments).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch payments: %w", err)
	}

	return payments, total, nil
}

// SweepPending fails pending payments older than the configured TTL.
func (s *AdminService) SweepPending(ctx context.Context) (int64, error) {
	return s.payments.SweepStalePending(ctx, s.pendingTTL)
}

// Audit Trail
func (s *AdminService) GetAuditLogs(filter AdminAuditFilter) ([]models.AuditLog, int64, error) {
	query := s.db.Model(&models.AuditLog{})

	if filter.ProfileID != nil {
		query = query.Where("profile_id = ?", *filter.ProfileID)
	}
	if filter.ResourceType != "" {
		query = query.Where("resource_type = ?", filter.ResourceType)
	}
	if filter.Search != "" {
		query = query.Where("LOWER(action) LIKE ?", "%"+strings.ToLower(filter.Search)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	query = utils.ApplySort(query, filter.PaginationParams, []string{"created_at", "action", "status_code"})
	query = utils.ApplyPagination(query, filter.PaginationParams)

	var logs []models.AuditLog
	if err := query.Find(&logs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch audit logs: %w", err)
	}

	return logs, total, nil
}
