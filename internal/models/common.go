// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// BeforeCreate assigns the id in the application so that rows can be created
// on databases without a uuid generator.
func (m *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// JSONB type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return nil
	}
}

// Enums
type ProfileRole string

const (
	ProfileRoleStudent ProfileRole = "student"
	ProfileRoleAdmin   ProfileRole = "admin"
)

type OpportunityKind string

const (
	OpportunityKindJob        OpportunityKind = "job"
	OpportunityKindInternship OpportunityKind = "internship"
	OpportunityKindItem       OpportunityKind = "item"
)

func (k OpportunityKind) Valid() bool {
	switch k {
	case OpportunityKindJob, OpportunityKindInternship, OpportunityKindItem:
		return true
	}
	return false
}

type OpportunityStatus string

const (
	OpportunityStatusOpen   OpportunityStatus = "open"
	OpportunityStatusClosed OpportunityStatus = "closed"
	OpportunityStatusSold   OpportunityStatus = "sold"
)

type PaymentMethod string

const (
	PaymentMethodCard        PaymentMethod = "card"
	PaymentMethodMobileMoney PaymentMethod = "mobile-money"
	PaymentMethodCrypto      PaymentMethod = "crypto"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodMobileMoney, PaymentMethodCrypto:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusReleased  PaymentStatus = "released"
	PaymentStatusRefunded  PaymentStatus = "refunded"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Held reports whether funds are still locked and can be released or refunded.
func (s PaymentStatus) Held() bool {
	return s == PaymentStatusPending || s == PaymentStatusCompleted
}

// SettlementMode records whether a provider actually moved money.
type SettlementMode string

const (
	SettlementModeLive    SettlementMode = "live"
	SettlementModeSandbox SettlementMode = "sandbox"
)

type SettlementAction string

const (
	SettlementActionNone    SettlementAction = ""
	SettlementActionRelease SettlementAction = "release"
	SettlementActionRefund  SettlementAction = "refund"
)

type ClaimType string

const (
	ClaimTypeSignup            ClaimType = "signup"
	ClaimTypeEmailVerification ClaimType = "email_verification"
	ClaimTypeProfileCompletion ClaimType = "profile_completion"
	ClaimTypeFirstListing      ClaimType = "first_listing"
	ClaimTypeDaily             ClaimType = "daily"
)

// Repeatable reports whether the claim type can be earned more than once
// (once per calendar day).
func (t ClaimType) Repeatable() bool {
	return t == ClaimTypeDaily
}
