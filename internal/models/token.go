// internal/models/token.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// UserToken is the per-profile reward balance. It is only ever changed in the
// same transaction that inserts the matching TokenClaim.
type UserToken struct {
	ProfileID uuid.UUID `json:"profile_id" gorm:"type:uuid;primaryKey"`
	Balance   int64     `json:"balance" gorm:"not null;default:0;check:balance >= 0"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (UserToken) TableName() string {
	return "user_tokens"
}

// TokenClaim is an append-only reward event. DedupKey is the claim date for
// daily claims and "once" for one-shot claims, so the unique index enforces
// both "once per day" and "once ever".
type TokenClaim struct {
	BaseModel
	ProfileID    uuid.UUID `json:"profile_id" gorm:"type:uuid;not null;uniqueIndex:idx_token_claims_dedup,priority:1"`
	ClaimType    ClaimType `json:"claim_type" gorm:"type:varchar(32);not null;uniqueIndex:idx_token_claims_dedup,priority:2"`
	DedupKey     string    `json:"-" gorm:"size:16;not null;uniqueIndex:idx_token_claims_dedup,priority:3"`
	TokensEarned int64     `json:"tokens_earned" gorm:"not null"`
	ClaimDate    string    `json:"claim_date" gorm:"size:10;not null;index"`
	ClaimedAt    time.Time `json:"claimed_at" gorm:"not null"`
}

const OneShotDedupKey = "once"
