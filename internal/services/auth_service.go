// internal/services/auth_service.go
package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/campushub/backend/internal/config"
	"github.com/campushub/backend/internal/database"
	"github.com/campushub/backend/internal/models"
	"github.com/campushub/backend/internal/utils"
)

type AuthService struct {
	db       *gorm.DB
	cfg      *config.Config
	notifier *NotificationService
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RegisterRequest struct {
	Username    string `json:"username" validate:"required,username"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,strong_password"`
	DisplayName string `json:"display_name" validate:"omitempty,max=100"`
	University  string `json:"university" validate:"omitempty,max=150"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type AuthResponse struct {
	User         *models.Profile `json:"user"`
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	TokenType    string          `json:"token_type"`
	ExpiresIn    int             `json:"expires_in"` // in seconds
}

func NewAuthService(db *gorm.DB, cfg *config.Config, notifier *NotificationService) *AuthService {
	return &AuthService{
		db:       db,
		cfg:      cfg,
		notifier: notifier,
	}
}

func (s *AuthService) Register(req *RegisterRequest) (*AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	// Check if user already exists
	var existing models.Profile
	if err := s.db.Where("email = ? OR username = ?", email, req.Username).First(&existing).Error; err == nil {
		if existing.Email == email {
			return nil, ErrEmailTaken
		}
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("database error: %w", err)
	}

	verificationToken, err := utils.GenerateVerificationCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate verification token: %w", err)
	}

	profile := &models.Profile{
		Username:               req.Username,
		Email:                  email,
		DisplayName:            req.DisplayName,
		University:             req.University,
		Role:                   models.ProfileRoleStudent,
		EmailVerificationToken: utils.HashString(verificationToken),
	}

	if err := profile.SetPassword(req.Password); err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.db.Create(profile).Error; err != nil {
		// Lost a race with a concurrent registration
		if database.IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	s.notifier.SendVerificationEmail(profile, verificationToken)

	return s.issueTokens(profile)
}

func (s *AuthService) Login(req *LoginRequest) (*AuthResponse, error) {
	var profile models.Profile
	if err := s.db.Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if err := profile.CheckPassword(req.Password); err != nil {
		return nil, ErrInvalidCredentials
	}

	// Update last login time
	now := time.Now().UTC()
	profile.LastLoginAt = &now
	if err := s.db.Model(&profile).UpdateColumn("last_login_at", now).Error; err != nil {
		logrus.WithError(err).WithField("profile_id", profile.ID).Warn("Failed to record login time")
	}

	return s.issueTokens(&profile)
}

func (s *AuthService) RefreshToken(refreshToken string) (*AuthResponse, error) {
	userIDStr, err := utils.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRefreshToken, err)
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, fmt.Errorf("%w: bad subject", ErrInvalidRefreshToken)
	}

	profile, err := s.GetProfile(userID)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return nil, fmt.Errorf("%w: unknown profile", ErrInvalidRefreshToken)
		}
		return nil, err
	}

	return s.issueTokens(profile)
}

// VerifyEmail marks the profile owning token as verified. The profile row
// holds the sha256 of the mailed token.
func (s *AuthService) VerifyEmail(token string) (*models.Profile, error) {
	if token == "" {
		return nil, ErrInvalidVerificationToken
	}

	var profile models.Profile
	if err := s.db.Where("email_verification_token = ?", utils.HashString(token)).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidVerificationToken
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	now := time.Now().UTC()
	if err := s.db.Model(&profile).Updates(map[string]interface{}{
		"email_verified_at":        now,
		"email_verification_token": "",
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to verify email: %w", err)
	}

	profile.EmailVerifiedAt = &now
	return &profile, nil
}

func (s *AuthService) GetProfile(profileID uuid.UUID) (*models.Profile, error) {
	var profile models.Profile
	if err := s.db.First(&profile, "id = ?", profileID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &profile, nil
}

func (s *AuthService) issueTokens(profile *models.Profile) (*AuthResponse, error) {
	accessToken, err := utils.GenerateJWT(
		profile.ID,
		profile.Username,
		string(profile.Role),
		s.cfg.JWT.AccessTokenTTL,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := utils.GenerateRefreshToken(profile.ID, s.cfg.JWT.RefreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return &AuthResponse{
		User:         profile,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    s.cfg.JWT.AccessTokenTTL * 3600, // Convert hours to seconds
	}, nil
}
