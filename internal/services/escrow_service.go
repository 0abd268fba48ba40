// internal/services/escrow_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/campushub/backend/internal/models"
	"github.com/campushub/backend/pkg/blockchain"
	"github.com/campushub/backend/pkg/payment"
)

var heldStatuses = []models.PaymentStatus{models.PaymentStatusPending, models.PaymentStatusCompleted}

// EscrowService lists and settles escrow-backed payments. Every operation
// checks the caller against the stored payer and seller ids.
type EscrowService struct {
	db        *gorm.DB
	providers PaymentProviders
	chain     ChainGateway
	notifier  *NotificationService
}

type EscrowView struct {
	models.Payment
	Role       models.EscrowRole       `json:"role"`
	Chain      *blockchain.EscrowState `json:"chain,omitempty"`
	ChainError string                  `json:"chain_error,omitempty"`
}

func NewEscrowService(db *gorm.DB, providers PaymentProviders, chain ChainGateway, notifier *NotificationService) *EscrowService {
	return &EscrowService{
		db:        db,
		providers: providers,
		chain:     chain,
		notifier:  notifier,
	}
}

// ListEscrows returns the caller's non-failed payments. Crypto payments are
// enriched with the contract state; a failed read is reported on the item
// and does not fail the list.
func (s *EscrowService) ListEscrows(ctx context.Context, profileID uuid.UUID, role models.EscrowRole) ([]EscrowView, error) {
	query := s.db.WithContext(ctx).Preload("Opportunity").
		Where("payment_status <> ?", models.PaymentStatusFailed)

	switch role {
	case models.EscrowRoleBuyer:
		query = query.Where("payer_id = ?", profileID)
	case models.EscrowRoleSeller:
		query = query.Where("seller_id = ?", profileID)
	case models.EscrowRoleAll, "":
		query = query.Where("(payer_id = ? OR seller_id = ?)", profileID, profileID)
	default:
		return nil, ErrInvalidEscrowRole
	}

	var payments []models.Payment
	if err := query.Order("created_at DESC").Find(&payments).Error; err != nil {
		return nil, fmt.Errorf("failed to list escrows: %w", err)
	}

	views := make([]EscrowView, 0, len(payments))
	for _, p := range payments {
		view := EscrowView{Payment: p, Role: p.PartyRole(profileID)}
		if p.HasChainEscrow() {
			view.Chain, view.ChainError = s.chainState(ctx, *p.ChainReference)
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *EscrowService) chainState(ctx context.Context, escrowID string) (*blockchain.EscrowState, string) {
	if s.chain == nil {
		return nil, blockchain.ErrNotConfigured.Error()
	}

	state, err := s.chain.GetEscrowDetails(ctx, escrowID)
	if err != nil {
		logrus.WithError(err).WithField("escrow_id", escrowID).Warn("Escrow read failed")
		return nil, "chain read failed"
	}
	if state == nil {
		return nil, "escrow not found on chain"
	}
	return state, ""
}

// Release pays the seller. Only the seller may call it.
func (s *EscrowService) Release(ctx context.Context, profileID, paymentID uuid.UUID) (*models.Payment, error) {
	return s.settle(ctx, profileID, paymentID, models.SettlementActionRelease)
}

// Refund returns the funds to the buyer. Only the buyer may call it.
func (s *EscrowService) Refund(ctx context.Context, profileID, paymentID uuid.UUID) (*models.Payment, error) {
	return s.settle(ctx, profileID, paymentID, models.SettlementActionRefund)
}

func (s *EscrowService) settle(ctx context.Context, profileID, paymentID uuid.UUID, action models.SettlementAction) (*models.Payment, error) {
	db := s.db.WithContext(ctx)

	p, err := s.load(db, paymentID)
	if err != nil {
		return nil, err
	}

	required := models.EscrowRoleSeller
	if action == models.SettlementActionRefund {
		required = models.EscrowRoleBuyer
	}
	if p.PartyRole(profileID) != required {
		return nil, ErrNotEscrowParty
	}

	if err := s.lock(db, p, action); err != nil {
		return nil, err
	}

	logger := logrus.WithFields(logrus.Fields{
		"payment_id": p.ID,
		"action":     action,
		"method":     p.PaymentMethod,
	})

	txHash, err := s.execute(ctx, p, action)
	if err != nil {
		logger.WithError(err).Warn("Escrow settlement failed")
		s.unlock(ctx, p)
		return nil, err
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{"settlement_tx_hash": txHash}
	if action == models.SettlementActionRelease {
		updates["payment_status"] = models.PaymentStatusReleased
		updates["released_at"] = now
	} else {
		updates["payment_status"] = models.PaymentStatusRefunded
		updates["refunded_at"] = now
	}

	if err := db.Model(&models.Payment{}).Where("id = ?", p.ID).Updates(updates).Error; err != nil {
		// Funds moved; settlement_action stays set so the row cannot be
		// settled twice.
		logger.WithError(err).WithField("tx_hash", txHash).Error("Failed to record escrow settlement")
		return nil, fmt.Errorf("failed to update payment record: %w", err)
	}

	stored, err := s.load(db, p.ID)
	if err != nil {
		return nil, err
	}

	logger.WithField("tx_hash", txHash).Info("Escrow settled")
	s.notifyParties(db, stored)

	return stored, nil
}

// lock claims the row for action with a conditional update. Only one caller
// can move settlement_action away from empty.
func (s *EscrowService) lock(db *gorm.DB, p *models.Payment, action models.SettlementAction) error {
	if !p.Escrowed() {
		return ErrEscrowNotHeld
	}
	if p.SettlementAction != models.SettlementActionNone {
		return ErrSettlementInProgress
	}

	result := db.Model(&models.Payment{}).
		Where("id = ? AND settlement_action = ? AND payment_status IN ?", p.ID, models.SettlementActionNone, heldStatuses).
		Update("settlement_action", action)
	if result.Error != nil {
		return fmt.Errorf("failed to lock payment: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		p.SettlementAction = action
		return nil
	}

	// Lost the race; report what the winner left behind
	current, err := s.load(db, p.ID)
	if err != nil {
		return err
	}
	if !current.PaymentStatus.Held() {
		return ErrEscrowNotHeld
	}
	return ErrSettlementInProgress
}

func (s *EscrowService) unlock(ctx context.Context, p *models.Payment) {
	err := s.db.WithContext(context.WithoutCancel(ctx)).Model(&models.Payment{}).
		Where("id = ? AND settlement_action = ?", p.ID, p.SettlementAction).
		Update("settlement_action", models.SettlementActionNone).Error
	if err != nil {
		logrus.WithError(err).WithField("payment_id", p.ID).Error("Failed to clear settlement lock")
	}
}

// execute moves the funds and returns the chain transaction hash, if any.
func (s *EscrowService) execute(ctx context.Context, p *models.Payment, action models.SettlementAction) (string, error) {
	if p.HasChainEscrow() {
		if s.chain == nil {
			return "", blockchain.ErrNotConfigured
		}
		if action == models.SettlementActionRelease {
			return s.chain.ReleaseFunds(ctx, *p.ChainReference)
		}
		return s.chain.RefundBuyer(ctx, *p.ChainReference)
	}

	// Card and mobile money funds sit with the platform; a release needs no
	// provider call.
	if action == models.SettlementActionRelease {
		return "", nil
	}

	reference := p.CardReference
	if p.PaymentMethod == models.PaymentMethodMobileMoney {
		reference = p.MomoReference
	}
	if s.providers == nil {
		return "", nil
	}

	provider, err := s.providers.Get(string(p.PaymentMethod))
	if err != nil {
		return "", err
	}
	if refunder, ok := provider.(payment.Refunder); ok {
		if err := refunder.Refund(ctx, reference); err != nil {
			return "", err
		}
	}
	return "", nil
}

func (s *EscrowService) notifyParties(db *gorm.DB, p *models.Payment) {
	if s.notifier == nil || p.Opportunity == nil {
		return
	}

	var parties []models.Profile
	if err := db.Where("id IN ?", []uuid.UUID{p.PayerID, p.SellerID}).Find(&parties).Error; err != nil {
		logrus.WithError(err).WithField("payment_id", p.ID).Warn("Failed to load escrow parties")
		return
	}

	recipients := make([]*models.Profile, 0, len(parties))
	for i := range parties {
		recipients = append(recipients, &parties[i])
	}
	s.notifier.SendEscrowSettled(p, p.Opportunity, recipients...)
}

func (s *EscrowService) load(db *gorm.DB, paymentID uuid.UUID) (*models.Payment, error) {
	var p models.Payment
	if err := db.Preload("Opportunity").First(&p, "id = ?", paymentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &p, nil
}
