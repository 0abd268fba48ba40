// internal/models/payment.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment is the local record of one purchase attempt. For crypto payments
// ChainReference holds the id of the buyer's confirmed escrow; an escrow id
// is recorded against at most one payment.
type Payment struct {
	BaseModel
	OpportunityID    uuid.UUID        `json:"opportunity_id" gorm:"type:uuid;not null;index"`
	PayerID          uuid.UUID        `json:"payer_id" gorm:"type:uuid;not null;index"`
	SellerID         uuid.UUID        `json:"seller_id" gorm:"type:uuid;not null;index"`
	Amount           decimal.Decimal  `json:"amount" gorm:"type:decimal(20,6);not null"`
	Currency         string           `json:"currency" gorm:"size:10;not null"`
	PaymentMethod    PaymentMethod    `json:"payment_method" gorm:"type:varchar(20);not null;index"`
	PaymentStatus    PaymentStatus    `json:"payment_status" gorm:"type:varchar(20);not null;default:'pending';index"`
	SettlementMode   SettlementMode   `json:"settlement_mode" gorm:"type:varchar(20)"`
	SettlementAction SettlementAction `json:"-" gorm:"type:varchar(20);not null;default:''"`
	ChainReference   *string          `json:"chain_reference,omitempty" gorm:"size:78;uniqueIndex"`
	TransactionHash  string           `json:"transaction_hash,omitempty" gorm:"size:66"`
	SettlementTxHash string           `json:"settlement_tx_hash,omitempty" gorm:"size:66"`
	CardReference    string           `json:"card_reference,omitempty" gorm:"size:255"`
	MomoReference    string           `json:"momo_reference,omitempty" gorm:"size:255"`
	PayerWallet      string           `json:"payer_wallet,omitempty" gorm:"size:42"`
	SellerWallet     string           `json:"seller_wallet,omitempty" gorm:"size:42"`
	FailureReason    string           `json:"failure_reason,omitempty" gorm:"type:text"`
	CompletedAt      *time.Time       `json:"completed_at"`
	ReleasedAt       *time.Time       `json:"released_at"`
	RefundedAt       *time.Time       `json:"refunded_at"`

	// Relationships
	Opportunity *Opportunity `json:"opportunity,omitempty" gorm:"foreignKey:OpportunityID"`
}

// HasChainEscrow reports whether funds are locked in the escrow contract.
func (p *Payment) HasChainEscrow() bool {
	return p.ChainReference != nil && *p.ChainReference != ""
}

// Escrowed reports whether the payment holds funds that a release or refund
// can move: held status plus the provider or chain reference of the method.
func (p *Payment) Escrowed() bool {
	if !p.PaymentStatus.Held() {
		return false
	}
	switch p.PaymentMethod {
	case PaymentMethodCrypto:
		return p.HasChainEscrow()
	case PaymentMethodMobileMoney:
		return p.MomoReference != ""
	default:
		return p.CardReference != ""
	}
}

// PartyRole returns the caller's role on the payment, or "" when the caller is
// neither the buyer nor the seller.
func (p *Payment) PartyRole(profileID uuid.UUID) EscrowRole {
	switch profileID {
	case p.PayerID:
		return EscrowRoleBuyer
	case p.SellerID:
		return EscrowRoleSeller
	}
	return ""
}

type EscrowRole string

const (
	EscrowRoleBuyer  EscrowRole = "buyer"
	EscrowRoleSeller EscrowRole = "seller"
	EscrowRoleAll    EscrowRole = "all"
)
