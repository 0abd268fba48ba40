// internal/testutil/testutil.go
// Package testutil provides in-memory databases, configuration and fixtures
// for package tests.
package testutil

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/campushub/backend/internal/config"
	"github.com/campushub/backend/internal/database"
	"github.com/campushub/backend/internal/models"
)

const TestPassword = "TestPass123!"

// NewTestDB opens a migrated in-memory SQLite database. A single connection
// keeps every query on the same in-memory database.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        database.UTCNow,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.RunMigrations(db))

	t.Cleanup(func() { sqlDB.Close() })
	return db
}

// TestConfig returns a configuration with every external integration
// disabled.
func TestConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		LogLevel:    "error",
		Server: config.ServerConfig{
			Port: "8080",
			Host: "localhost",
		},
		JWT: config.JWTConfig{
			SecretKey:       "test-secret",
			AccessTokenTTL:  1,
			RefreshTokenTTL: 24,
		},
		AWS: config.AWSConfig{
			Region:   "eu-west-1",
			S3Bucket: "test-bucket",
		},
		Blockchain: config.BlockchainConfig{
			Network:       "base-sepolia",
			ChainID:       84532,
			TokenDecimals: 18,
			TokenSymbol:   "ETH",
			TxTimeout:     time.Minute,
		},
		Payment: config.PaymentConfig{
			MobileMoneyProvider: "sandbox",
			DefaultCurrency:     "GHS",
			PendingTTL:          30 * time.Minute,
			SweepInterval:       10 * time.Minute,
		},
		WhatsApp: config.WhatsAppConfig{
			VerifyToken: "verify-me",
			AppSecret:   "app-secret",
			SessionTTL:  time.Hour,
		},
		Assistant: config.AssistantConfig{
			Model:   "test-model",
			Version: "2023-06-01",
		},
		Email: config.EmailConfig{
			FromEmail: "noreply@campushub.test",
			FromName:  "CampusHub",
		},
		Tokens: config.TokenConfig{
			SignupReward:            50,
			EmailVerificationReward: 25,
			ProfileCompletionReward: 20,
			FirstListingReward:      30,
			DailyReward:             10,
			Timezone:                "UTC",
		},
		I18n: config.I18nConfig{
			DefaultLocale: "en",
		},
		Frontend: config.FrontendConfig{
			BaseURL:        "http://localhost:3000",
			AllowedOrigins: "*",
		},
	}
}

type ProfileOption func(*models.Profile)

func WithPhone(phone string) ProfileOption {
	return func(p *models.Profile) { p.PhoneNumber = &phone }
}

func WithWallet(address string) ProfileOption {
	return func(p *models.Profile) { p.WalletAddress = address }
}

func WithRole(role models.ProfileRole) ProfileOption {
	return func(p *models.Profile) { p.Role = role }
}

func WithVerifiedEmail() ProfileOption {
	return func(p *models.Profile) {
		now := time.Now().UTC()
		p.EmailVerifiedAt = &now
	}
}

// CreateProfile stores a student named username with TestPassword.
func CreateProfile(t *testing.T, db *gorm.DB, username string, opts ...ProfileOption) *models.Profile {
	t.Helper()

	profile := &models.Profile{
		Username:    username,
		Email:       username + "@campus.test",
		DisplayName: username,
		Role:        models.ProfileRoleStudent,
	}
	// bcrypt at the default cost is slow; fixtures do not need it
	profile.PasswordHash = "$2a$04$" + uuid.NewString()
	for _, opt := range opts {
		opt(profile)
	}

	require.NoError(t, db.Create(profile).Error)
	return profile
}

// CreateOpportunity stores an open listing owned by owner.
func CreateOpportunity(t *testing.T, db *gorm.DB, owner *models.Profile, kind models.OpportunityKind, title string, price decimal.Decimal) *models.Opportunity {
	t.Helper()

	opp := &models.Opportunity{
		OwnerID:             owner.ID,
		Kind:                kind,
		Title:               title,
		DescriptionMarkdown: "A listing used in tests.",
		DescriptionHTML:     "<p>A listing used in tests.</p>",
		Price:               price,
		Currency:            "GHS",
		Location:            "Accra",
		Tags:                datatypes.JSON(`[]`),
		Images:              datatypes.JSON(`[]`),
		Status:              models.OpportunityStatusOpen,
	}
	require.NoError(t, db.Create(opp).Error)
	return opp
}

// CreatePayment stores a payment in the given state.
func CreatePayment(t *testing.T, db *gorm.DB, opp *models.Opportunity, payer *models.Profile, method models.PaymentMethod, status models.PaymentStatus) *models.Payment {
	t.Helper()

	p := &models.Payment{
		OpportunityID: opp.ID,
		PayerID:       payer.ID,
		SellerID:      opp.OwnerID,
		Amount:        opp.Price,
		Currency:      opp.Currency,
		PaymentMethod: method,
		PaymentStatus: status,
	}
	switch method {
	case models.PaymentMethodCard:
		p.CardReference = "card-" + uuid.NewString()
	case models.PaymentMethodMobileMoney:
		p.MomoReference = "momo-" + uuid.NewString()
	}
	require.NoError(t, db.Create(p).Error)
	return p
}
