// internal/services/user_service.go
package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/campushub/backend/internal/database"
	"github.com/campushub/backend/internal/models"
)

type UserService struct {
	db *gorm.DB
}

// UpdateProfileRequest only touches the fields that are present. An empty
// phone number unlinks the WhatsApp conversation.
type UpdateProfileRequest struct {
	DisplayName   *string `json:"display_name,omitempty" validate:"omitempty,max=100"`
	PhoneNumber   *string `json:"phone_number,omitempty" validate:"omitempty,e164"`
	WalletAddress *string `json:"wallet_address,omitempty" validate:"omitempty,eth_addr"`
	University    *string `json:"university,omitempty" validate:"omitempty,max=150"`
}

type PublicProfile struct {
	ID            uuid.UUID `json:"id"`
	Username      string    `json:"username"`
	DisplayName   string    `json:"display_name"`
	University    string    `json:"university,omitempty"`
	EmailVerified bool      `json:"email_verified"`
	ListingCount  int64     `json:"listing_count"`
	CreatedAt     time.Time `json:"created_at"`
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

func (s *UserService) GetProfileByID(profileID uuid.UUID) (*models.Profile, error) {
	var profile models.Profile
	if err := s.db.First(&profile, "id = ?", profileID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &profile, nil
}

// FindByPhone resolves a WhatsApp sender to a profile.
func (s *UserService) FindByPhone(phone string) (*models.Profile, error) {
	var profile models.Profile
	if err := s.db.Where("phone_number = ?", phone).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &profile, nil
}

func (s *UserService) GetPublicProfile(profileID uuid.UUID) (*PublicProfile, error) {
	profile, err := s.GetProfileByID(profileID)
	if err != nil {
		return nil, err
	}

	var listings int64
	if err := s.db.Model(&models.Opportunity{}).
		Where("owner_id = ? AND status = ?", profileID, models.OpportunityStatusOpen).
		Count(&listings).Error; err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	return &PublicProfile{
		ID:            profile.ID,
		Username:      profile.Username,
		DisplayName:   profile.DisplayName,
		University:    profile.University,
		EmailVerified: profile.EmailVerified(),
		ListingCount:  listings,
		CreatedAt:     profile.CreatedAt,
	}, nil
}

func (s *UserService) UpdateProfile(profileID uuid.UUID, req *UpdateProfileRequest) (*models.Profile, error) {
	profile, err := s.GetProfileByID(profileID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}

	if req.DisplayName != nil {
		profile.DisplayName = strings.TrimSpace(*req.DisplayName)
		updates["display_name"] = profile.DisplayName
	}

	if req.University != nil {
		profile.University = strings.TrimSpace(*req.University)
		updates["university"] = profile.University
	}

	if req.WalletAddress != nil {
		profile.WalletAddress = *req.WalletAddress
		updates["wallet_address"] = profile.WalletAddress
	}

	if req.PhoneNumber != nil {
		if *req.PhoneNumber == "" {
			profile.PhoneNumber = nil
			updates["phone_number"] = nil
		} else {
			// Check phone uniqueness
			var count int64
			if err := s.db.Model(&models.Profile{}).
				Where("phone_number = ? AND id <> ?", *req.PhoneNumber, profileID).
				Count(&count).Error; err != nil {
				return nil, fmt.Errorf("database error: %w", err)
			}
			if count > 0 {
				return nil, ErrPhoneInUse
			}

			phone := *req.PhoneNumber
			profile.PhoneNumber = &phone
			updates["phone_number"] = phone
		}
	}

	if len(updates) == 0 {
		return profile, nil
	}

	if err := s.db.Model(profile).Updates(updates).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrPhoneInUse
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	return profile, nil
}
