// internal/services/payment_service.go
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

	"github.com/campushub/backend/internal/config"
	"github.com/campushub/backend/internal/database"
	"github.com/campushub/backend/internal/models"
	"github.com/campushub/backend/internal/utils"
	"github.com/campushub/backend/pkg/blockchain"
	"github.com/campushub/backend/pkg/payment"
)

// AbandonedReason is stored on pending payments closed by the sweep.
const AbandonedReason = "abandoned"

type PaymentService struct {
	db        *gorm.DB
	config    *config.Config
	providers PaymentProviders
	chain     ChainGateway
	notifier  *NotificationService
}

type PurchaseRequest struct {
	OpportunityID uuid.UUID            `json:"opportunity_id" validate:"required"`
	PaymentMethod models.PaymentMethod `json:"payment_method" validate:"required,oneof=card mobile-money crypto"`
	Amount        decimal.Decimal      `json:"amount" validate:"gt=0"`
	// PaymentToken is the provider payment method id for card payments.
	PaymentToken string `json:"payment_token,omitempty" validate:"omitempty,max=255"`
	// PhoneNumber is the mobile money account; defaults to the profile phone.
	PhoneNumber string `json:"phone_number,omitempty" validate:"omitempty,e164"`
	// TxHash is the createEscrow transaction the buyer's wallet submitted.
	// Required for crypto payments.
	TxHash string `json:"tx_hash,omitempty" validate:"omitempty,startswith=0x,len=66,hexadecimal"`
}

type PrepareEscrowRequest struct {
	OpportunityID uuid.UUID `json:"opportunity_id" validate:"required"`
}

type WalletStatus struct {
	Configured      bool   `json:"configured"`
	Connected       bool   `json:"connected"`
	Account         string `json:"account,omitempty"`
	NetworkOK       bool   `json:"network_ok"`
	ChainID         int64  `json:"chain_id,omitempty"`
	ContractAddress string `json:"contract_address,omitempty"`
	Error           string `json:"error,omitempty"`
}

// NewPaymentService wires the provider registry and the escrow gateway. chain
// may be nil when no RPC endpoint is configured; crypto payments then fail
// with blockchain.ErrNotConfigured.
func NewPaymentService(db *gorm.DB, config *config.Config, providers PaymentProviders, chain ChainGateway, notifier *NotificationService) *PaymentService {
	return &PaymentService{
		db:        db,
		config:    config,
		providers: providers,
		chain:     chain,
		notifier:  notifier,
	}
}

// Purchase runs one purchase attempt. The payment row is created pending
// before any provider call; every failure after that point marks it failed
// with the reason, so no attempt is left pending.
func (s *PaymentService) Purchase(ctx context.Context, payerID uuid.UUID, req *PurchaseRequest) (*models.Payment, error) {
	db := s.db.WithContext(ctx)

	var opp models.Opportunity
	if err := db.First(&opp, "id = ?", req.OpportunityID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOpportunityNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if opp.Status != models.OpportunityStatusOpen {
		return nil, ErrOpportunityNotOpen
	}
	if opp.OwnerID == payerID {
		return nil, ErrOwnListing
	}
	if !req.Amount.Equal(opp.Price) {
		return nil, ErrInvalidAmount
	}

	var buyer, seller models.Profile
	if err := db.First(&buyer, "id = ?", payerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	if err := db.First(&seller, "id = ?", opp.OwnerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if req.PaymentMethod == models.PaymentMethodCrypto {
		if err := s.checkCryptoTerms(&opp, &buyer, &seller); err != nil {
			return nil, err
		}
		if req.TxHash == "" {
			return nil, ErrEscrowTxRequired
		}
	}

	p := &models.Payment{
		OpportunityID: opp.ID,
		PayerID:       payerID,
		SellerID:      opp.OwnerID,
		Amount:        opp.Price,
		Currency:      opp.Currency,
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: models.PaymentStatusPending,
	}
	if err := db.Create(p).Error; err != nil {
		return nil, fmt.Errorf("failed to create payment record: %w", err)
	}

	logger := logrus.WithFields(logrus.Fields{
		"payment_id":     p.ID,
		"opportunity_id": opp.ID,
		"method":         p.PaymentMethod,
	})

	var updates map[string]interface{}
	var err error
	if req.PaymentMethod == models.PaymentMethodCrypto {
		updates, err = s.payWithEscrow(ctx, p, &opp, &buyer, &seller, req)
	} else {
		updates, err = s.payWithProvider(ctx, p, &opp, &buyer, req)
	}
	if err != nil {
		logger.WithError(err).Warn("Payment failed")
		s.markFailed(ctx, p, err, nil)
		return p, err
	}

	completedAt := time.Now().UTC()
	updates["payment_status"] = models.PaymentStatusCompleted
	updates["completed_at"] = completedAt

	// The sweep may have failed the row while the provider or chain was busy.
	result := db.Model(&models.Payment{}).
		Where("id = ? AND payment_status = ?", p.ID, models.PaymentStatusPending).
		Updates(updates)
	if result.Error != nil || result.RowsAffected == 0 {
		cause := ErrPaymentNotPending
		switch {
		case database.IsUniqueViolation(result.Error):
			cause = fmt.Errorf("%w: escrow %v already recorded", ErrEscrowMismatch, updates["chain_reference"])
		case result.Error != nil:
			cause = fmt.Errorf("failed to update payment record: %w", result.Error)
		}
		logger.WithError(cause).WithField("updates", updates).Error("Failed to record completed payment")
		s.markFailed(ctx, p, cause, reconciliation(updates))
		return p, cause
	}

	stored, err := s.load(db, p.ID)
	if err != nil {
		return nil, err
	}

	logger.WithField("settlement_mode", stored.SettlementMode).Info("Payment completed")
	s.notifier.SendPaymentCompleted(stored, &opp, &buyer, &seller)

	return stored, nil
}

func (s *PaymentService) payWithProvider(ctx context.Context, p *models.Payment, opp *models.Opportunity, buyer *models.Profile, req *PurchaseRequest) (map[string]interface{}, error) {
	if s.providers == nil {
		return nil, fmt.Errorf("%w: %s", payment.ErrProviderNotIntegrated, p.PaymentMethod)
	}
	provider, err := s.providers.Get(string(p.PaymentMethod))
	if err != nil {
		return nil, err
	}

	phone := req.PhoneNumber
	if phone == "" && buyer.PhoneNumber != nil {
		phone = *buyer.PhoneNumber
	}

	result, err := provider.Charge(ctx, payment.ChargeRequest{
		PaymentID:     p.ID.String(),
		Amount:        p.Amount,
		Currency:      p.Currency,
		Description:   opp.Title,
		PaymentToken:  req.PaymentToken,
		CustomerPhone: phone,
		CustomerEmail: buyer.Email,
		Metadata: map[string]string{
			"opportunity_id": opp.ID.String(),
			"payer_id":       buyer.ID.String(),
		},
		IdempotencyKey: p.ID.String(),
	})
	if err != nil {
		return nil, err
	}
	if !result.Settled {
		return nil, fmt.Errorf("%w: provider status %s", payment.ErrNotSettled, result.Status)
	}

	mode := models.SettlementModeLive
	if !result.Integrated {
		mode = models.SettlementModeSandbox
	}

	updates := map[string]interface{}{"settlement_mode": mode}
	if p.PaymentMethod == models.PaymentMethodMobileMoney {
		updates["momo_reference"] = result.Reference
	} else {
		updates["card_reference"] = result.Reference
	}
	return updates, nil
}

// checkCryptoTerms holds the conditions for paying a listing through the
// escrow contract: the listing is priced in the chain token and both parties
// have a wallet.
func (s *PaymentService) checkCryptoTerms(opp *models.Opportunity, buyer, seller *models.Profile) error {
	if !strings.EqualFold(opp.Currency, s.config.Blockchain.TokenSymbol) {
		return fmt.Errorf("%w: listing is priced in %s, escrow pays in %s", ErrCurrencyMismatch, opp.Currency, s.config.Blockchain.TokenSymbol)
	}
	if seller.WalletAddress == "" {
		return ErrSellerWalletMissing
	}
	if buyer.WalletAddress == "" {
		return ErrBuyerWalletMissing
	}
	return nil
}

// PrepareEscrow returns the unsigned createEscrow call the buyer's wallet
// signs and submits; its hash then goes into a crypto Purchase. The relay
// wallet must be on the target chain, since it alone can later settle.
func (s *PaymentService) PrepareEscrow(ctx context.Context, payerID uuid.UUID, req *PrepareEscrowRequest) (*blockchain.EscrowCall, error) {
	db := s.db.WithContext(ctx)

	var opp models.Opportunity
	if err := db.First(&opp, "id = ?", req.OpportunityID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOpportunityNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	if opp.Status != models.OpportunityStatusOpen {
		return nil, ErrOpportunityNotOpen
	}
	if opp.OwnerID == payerID {
		return nil, ErrOwnListing
	}

	var buyer, seller models.Profile
	if err := db.First(&buyer, "id = ?", payerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	if err := db.First(&seller, "id = ?", opp.OwnerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	if err := s.checkCryptoTerms(&opp, &buyer, &seller); err != nil {
		return nil, err
	}

	if s.chain == nil {
		return nil, blockchain.ErrNotConfigured
	}
	if _, err := s.chain.ConnectWallet(ctx); err != nil {
		return nil, err
	}
	if !s.chain.CheckNetwork(ctx) && !s.chain.SwitchToTargetNetwork(ctx) {
		return nil, fmt.Errorf("%w: chain %d", ErrWrongNetwork, s.chain.TargetChainID())
	}

	return s.chain.PrepareEscrow(opp.ID.String(), opp.Price, seller.WalletAddress)
}

// payWithEscrow records an escrow the buyer's wallet created. The server
// never funds or signs an escrow itself.
func (s *PaymentService) payWithEscrow(ctx context.Context, p *models.Payment, opp *models.Opportunity, buyer, seller *models.Profile, req *PurchaseRequest) (map[string]interface{}, error) {
	if s.chain == nil {
		return nil, blockchain.ErrNotConfigured
	}

	receipt, err := s.chain.ConfirmEscrow(ctx, req.TxHash)
	if err != nil {
		return nil, err
	}
	if err := s.checkSubmittedEscrow(ctx, receipt, p, opp, buyer, seller); err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"chain_reference":  receipt.EscrowID,
		"transaction_hash": receipt.TxHash,
		"payer_wallet":     receipt.Buyer,
		"seller_wallet":    receipt.Seller,
		"settlement_mode":  models.SettlementModeLive,
	}, nil
}

// checkSubmittedEscrow makes sure a wallet-submitted escrow was funded by
// this buyer for this listing and has not been recorded against another
// payment. The unique index on chain_reference catches concurrent
// submissions that pass the lookup.
func (s *PaymentService) checkSubmittedEscrow(ctx context.Context, receipt *blockchain.EscrowReceipt, p *models.Payment, opp *models.Opportunity, buyer, seller *models.Profile) error {
	if receipt.OpportunityID != opp.ID.String() {
		return fmt.Errorf("%w: escrow is for opportunity %s", ErrEscrowMismatch, receipt.OpportunityID)
	}
	if !receipt.Amount.Equal(p.Amount) {
		return fmt.Errorf("%w: escrow amount %s", ErrEscrowMismatch, receipt.Amount)
	}
	if !strings.EqualFold(receipt.Seller, seller.WalletAddress) {
		return fmt.Errorf("%w: escrow seller %s", ErrEscrowMismatch, receipt.Seller)
	}
	if !strings.EqualFold(receipt.Buyer, buyer.WalletAddress) {
		return fmt.Errorf("%w: escrow buyer %s", ErrEscrowMismatch, receipt.Buyer)
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("chain_reference = ? AND id <> ?", receipt.EscrowID, p.ID).
		Count(&count).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%w: escrow %s already recorded", ErrEscrowMismatch, receipt.EscrowID)
	}
	return nil
}

// reconciliation keeps what a failed attempt learned from the provider or
// chain: references, transaction hash and wallets. chain_reference is left
// out so the escrow stays free for a retry.
func reconciliation(updates map[string]interface{}) map[string]interface{} {
	kept := make(map[string]interface{}, len(updates))
	for column, value := range updates {
		switch column {
		case "payment_status", "completed_at", "chain_reference":
		default:
			kept[column] = value
		}
	}
	return kept
}

func (s *PaymentService) markFailed(ctx context.Context, p *models.Payment, cause error, extra map[string]interface{}) {
	// Compensation runs even when the request context is cancelled.
	db := s.db.WithContext(context.WithoutCancel(ctx))

	p.PaymentStatus = models.PaymentStatusFailed
	p.FailureReason = cause.Error()
	updates := map[string]interface{}{
		"payment_status": models.PaymentStatusFailed,
		"failure_reason": p.FailureReason,
	}
	for column, value := range extra {
		updates[column] = value
	}
	if err := db.Model(&models.Payment{}).Where("id = ?", p.ID).Updates(updates).Error; err != nil {
		logrus.WithError(err).WithField("payment_id", p.ID).Error("Failed to mark payment failed")
	}
}

// SweepStalePending fails pending payments older than olderThan. Rows that
// already hold an escrow reference or have a settlement in flight are left
// alone.
func (s *PaymentService) SweepStalePending(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	result := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("payment_status = ? AND created_at < ?", models.PaymentStatusPending, cutoff).
		Where("chain_reference IS NULL AND settlement_action = ?", models.SettlementActionNone).
		Updates(map[string]interface{}{
			"payment_status": models.PaymentStatusFailed,
			"failure_reason": AbandonedReason,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to sweep pending payments: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		logrus.WithFields(logrus.Fields{
			"count":  result.RowsAffected,
			"cutoff": cutoff,
		}).Warn("Marked abandoned pending payments as failed")
	}
	return result.RowsAffected, nil
}

// RunSweeper sweeps every interval until ctx is done.
func (s *PaymentService) RunSweeper(ctx context.Context, interval, olderThan time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepStalePending(ctx, olderThan); err != nil && ctx.Err() == nil {
				logrus.WithError(err).Error("Pending payment sweep failed")
			}
		}
	}
}

// GetPayment returns a payment to its buyer or seller only.
func (s *PaymentService) GetPayment(ctx context.Context, profileID, paymentID uuid.UUID) (*models.Payment, error) {
	p, err := s.load(s.db.WithContext(ctx), paymentID)
	if err != nil {
		return nil, err
	}
	if p.PartyRole(profileID) == "" {
		return nil, ErrNotEscrowParty
	}
	return p, nil
}

func (s *PaymentService) ListPayments(ctx context.Context, profileID uuid.UUID, params utils.PaginationParams) ([]models.Payment, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("(payer_id = ? OR seller_id = ?)", profileID, profileID)

	if params.Status != "" {
		query = query.Where("payment_status = ?", params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count payments: %w", err)
	}

	query = utils.ApplySort(query, params, []string{"created_at", "amount", "payment_status"})
	query = utils.ApplyPagination(query, params)

	var payments []models.Payment
	if err := query.Preload("Opportunity").Find(&payments).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list payments: %w", err)
	}

	return payments, total, nil
}

// WalletStatus reports whether the server wallet can create escrows.
func (s *PaymentService) WalletStatus(ctx context.Context) *WalletStatus {
	if s.chain == nil {
		return &WalletStatus{Error: blockchain.ErrNotConfigured.Error()}
	}

	status := &WalletStatus{
		Configured:      true,
		ChainID:         s.chain.TargetChainID(),
		ContractAddress: s.chain.ContractAddress(),
	}

	account, err := s.chain.ConnectWallet(ctx)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.Connected = true
	status.Account = account
	status.NetworkOK = s.chain.CheckNetwork(ctx) || s.chain.SwitchToTargetNetwork(ctx)
	return status
}

func (s *PaymentService) load(db *gorm.DB, paymentID uuid.UUID) (*models.Payment, error) {
	var p models.Payment
	if err := db.Preload("Opportunity").First(&p, "id = ?", paymentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &p, nil
}
