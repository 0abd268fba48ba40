// internal/services/token_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/campushub/backend/internal/config"
	"github.com/campushub/backend/internal/database"
	"github.com/campushub/backend/internal/models"
	"github.com/campushub/backend/internal/utils"
)

const claimDateLayout = "2006-01-02"

// RewardSchedule maps each claim type to the tokens it pays.
type RewardSchedule map[models.ClaimType]int64

// ClaimOrder is the order tasks are presented in.
var ClaimOrder = []models.ClaimType{
	models.ClaimTypeSignup,
	models.ClaimTypeEmailVerification,
	models.ClaimTypeProfileCompletion,
	models.ClaimTypeFirstListing,
	models.ClaimTypeDaily,
}

func NewRewardSchedule(cfg config.TokenConfig) RewardSchedule {
	return RewardSchedule{
		models.ClaimTypeSignup:            cfg.SignupReward,
		models.ClaimTypeEmailVerification: cfg.EmailVerificationReward,
		models.ClaimTypeProfileCompletion: cfg.ProfileCompletionReward,
		models.ClaimTypeFirstListing:      cfg.FirstListingReward,
		models.ClaimTypeDaily:             cfg.DailyReward,
	}
}

type TokenService struct {
	db       *gorm.DB
	rewards  RewardSchedule
	location *time.Location
	now      func() time.Time
}

type ClaimRequest struct {
	ClaimType models.ClaimType `json:"claim_type" validate:"required"`
}

type ClaimResult struct {
	Claim   *models.TokenClaim `json:"claim"`
	Balance int64              `json:"balance"`
}

type ClaimableTask struct {
	Type      models.ClaimType `json:"type"`
	Tokens    int64            `json:"tokens"`
	Completed bool             `json:"completed"`
	Claimable bool             `json:"claimable"`
}

func NewTokenService(db *gorm.DB, cfg *config.Config) (*TokenService, error) {
	loc, err := time.LoadLocation(cfg.Tokens.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid token timezone: %w", err)
	}

	return &TokenService{
		db:       db,
		rewards:  NewRewardSchedule(cfg.Tokens),
		location: loc,
		now:      time.Now,
	}, nil
}

// WithClock replaces the wall clock. Tests use it to cross day boundaries.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

// Today is the claim date for daily rewards in the configured timezone.
func (s *TokenService) Today() string {
	return s.now().In(s.location).Format(claimDateLayout)
}

func (s *TokenService) GetBalance(ctx context.Context, profileID uuid.UUID) (*models.UserToken, error) {
	db := s.db.WithContext(ctx)

	if err := ensureBalanceRow(db, profileID); err != nil {
		return nil, err
	}

	var balance models.UserToken
	if err := db.First(&balance, "profile_id = ?", profileID).Error; err != nil {
		return nil, fmt.Errorf("failed to load balance: %w", err)
	}
	return &balance, nil
}

// Claim credits a reward. The eligibility check, the claim insert and the
// balance increment commit together; the unique index on
// (profile_id, claim_type, dedup_key) decides between concurrent claims.
func (s *TokenService) Claim(ctx context.Context, profileID uuid.UUID, claimType models.ClaimType) (*ClaimResult, error) {
	tokens, ok := s.rewards[claimType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClaimType, claimType)
	}

	now := s.now()
	claimDate := now.In(s.location).Format(claimDateLayout)
	dedupKey := models.OneShotDedupKey
	if claimType.Repeatable() {
		dedupKey = claimDate
	}

	result := &ClaimResult{}
	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		var profile models.Profile
		if err := tx.First(&profile, "id = ?", profileID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProfileNotFound
			}
			return fmt.Errorf("database error: %w", err)
		}

		eligible, err := s.eligible(tx, &profile, claimType)
		if err != nil {
			return err
		}
		if !eligible {
			return ErrNotEligible
		}

		if err := ensureBalanceRow(tx, profileID); err != nil {
			return err
		}

		claim := &models.TokenClaim{
			ProfileID:    profileID,
			ClaimType:    claimType,
			DedupKey:     dedupKey,
			TokensEarned: tokens,
			ClaimDate:    claimDate,
			ClaimedAt:    now.UTC(),
		}
		insert := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(claim)
		if insert.Error != nil {
			if database.IsUniqueViolation(insert.Error) {
				return ErrAlreadyClaimed
			}
			return fmt.Errorf("failed to record claim: %w", insert.Error)
		}
		if insert.RowsAffected == 0 {
			return ErrAlreadyClaimed
		}

		if err := tx.Model(&models.UserToken{}).
			Where("profile_id = ?", profileID).
			Updates(map[string]interface{}{
				"balance":    gorm.Expr("balance + ?", tokens),
				"updated_at": now.UTC(),
			}).Error; err != nil {
			return fmt.Errorf("failed to credit balance: %w", err)
		}

		var balance models.UserToken
		if err := tx.First(&balance, "profile_id = ?", profileID).Error; err != nil {
			return fmt.Errorf("failed to load balance: %w", err)
		}

		result.Claim = claim
		result.Balance = balance.Balance
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"profile_id": profileID,
		"claim_type": claimType,
		"tokens":     tokens,
		"balance":    result.Balance,
	}).Info("Tokens claimed")

	return result, nil
}

func (s *TokenService) eligible(tx *gorm.DB, profile *models.Profile, claimType models.ClaimType) (bool, error) {
	var listings int64
	if claimType == models.ClaimTypeFirstListing {
		var err error
		if listings, err = listingCount(tx, profile.ID); err != nil {
			return false, err
		}
	}
	return taskEligible(claimType, profile, listings), nil
}

func taskEligible(claimType models.ClaimType, profile *models.Profile, listingCount int64) bool {
	switch claimType {
	case models.ClaimTypeEmailVerification:
		return profile.EmailVerified()
	case models.ClaimTypeProfileCompletion:
		return profile.Complete()
	case models.ClaimTypeFirstListing:
		return listingCount > 0
	default:
		return true
	}
}

func (s *TokenService) ListClaims(ctx context.Context, profileID uuid.UUID, params utils.PaginationParams) ([]models.TokenClaim, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.TokenClaim{}).Where("profile_id = ?", profileID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count claims: %w", err)
	}

	var claims []models.TokenClaim
	err := utils.ApplyPagination(query.Order("claimed_at DESC"), params).Find(&claims).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list claims: %w", err)
	}

	return claims, total, nil
}

func (s *TokenService) ListClaimableTasks(ctx context.Context, profileID uuid.UUID) ([]ClaimableTask, error) {
	db := s.db.WithContext(ctx)

	var profile models.Profile
	if err := db.First(&profile, "id = ?", profileID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	var claims []models.TokenClaim
	if err := db.Where("profile_id = ?", profileID).Find(&claims).Error; err != nil {
		return nil, fmt.Errorf("failed to load claims: %w", err)
	}

	listings, err := listingCount(db, profileID)
	if err != nil {
		return nil, err
	}

	return s.rewards.ClaimableTasks(s.Today(), &profile, claims, listings), nil
}

// ClaimableTasks evaluates every task against the claim history. today is
// the current claim date in the ledger's timezone.
func (r RewardSchedule) ClaimableTasks(today string, profile *models.Profile, claims []models.TokenClaim, listingCount int64) []ClaimableTask {
	claimed := make(map[models.ClaimType]bool, len(claims))
	for _, c := range claims {
		if c.ClaimType.Repeatable() && c.ClaimDate != today {
			continue
		}
		claimed[c.ClaimType] = true
	}

	tasks := make([]ClaimableTask, 0, len(ClaimOrder))
	for _, ct := range ClaimOrder {
		tokens, ok := r[ct]
		if !ok {
			continue
		}

		tasks = append(tasks, ClaimableTask{
			Type:      ct,
			Tokens:    tokens,
			Completed: claimed[ct],
			Claimable: !claimed[ct] && taskEligible(ct, profile, listingCount),
		})
	}
	return tasks
}

func ensureBalanceRow(db *gorm.DB, profileID uuid.UUID) error {
	err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.UserToken{ProfileID: profileID}).Error
	if err != nil {
		return fmt.Errorf("failed to create balance: %w", err)
	}
	return nil
}

func listingCount(db *gorm.DB, profileID uuid.UUID) (int64, error) {
	var count int64
	if err := db.Model(&models.Opportunity{}).Where("owner_id = ?", profileID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count listings: %w", err)
	}
	return count, nil
}
