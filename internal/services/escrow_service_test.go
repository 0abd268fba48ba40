package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/campushub/backend/internal/models"
	"github.com/campushub/backend/internal/testutil"
	"github.com/campushub/backend/pkg/blockchain"
	"github.com/campushub/backend/pkg/payment"
)

// newCryptoEscrow stores a pending crypto payment holding escrow escrowID.
func newCryptoEscrow(t *testing.T, f *purchaseFixture, escrowID string) *models.Payment {
	p := testutil.CreatePayment(t, f.db, f.opp, f.buyer, models.PaymentMethodCrypto, models.PaymentStatusPending)
	require.NoError(t, f.db.Model(p).Update("chain_reference", escrowID).Error)
	p.ChainReference = &escrowID
	return p
}

func TestReleaseSettlesOnceBeforeAnyNetworkCall(t *testing.T) {
	f := newPurchaseFixture(t, 100)
	p := newCryptoEscrow(t, f, "42")

	chain := &mockChain{}
	chain.On("ReleaseFunds", mock.Anything, "42").Return(testSettleTxHash, nil).Once()
	svc := NewEscrowService(f.db, nil, chain, nil)
	ctx := context.Background()

	released, err := svc.Release(ctx, f.seller.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusReleased, released.PaymentStatus)
	assert.Equal(t, testSettleTxHash, released.SettlementTxHash)
	assert.NotNil(t, released.ReleasedAt)

	_, err = svc.Release(ctx, f.seller.ID, p.ID)
	assert.ErrorIs(t, err, ErrEscrowNotHeld)

	_, err = svc.Refund(ctx, f.buyer.ID, p.ID)
	assert.ErrorIs(t, err, ErrEscrowNotHeld)

	chain.AssertNumberOfCalls(t, "ReleaseFunds", 1)
	chain.AssertNotCalled(t, "RefundBuyer", mock.Anything, mock.Anything)
}

func TestSettlementRejectsWrongCaller(t *testing.T) {
	f := newPurchaseFixture(t, 100)
	p := newCryptoEscrow(t, f, "5")
	stranger := testutil.CreateProfile(t, f.db, "stranger")

	chain := &mockChain{}
	svc := NewEscrowService(f.db, nil, chain, nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		settle func() (*models.Payment, error)
	}{
		{"stranger releases", func() (*models.Payment, error) { return svc.Release(ctx, stranger.ID, p.ID) }},
		{"stranger refunds", func() (*models.Payment, error) { return svc.Refund(ctx, stranger.ID, p.ID) }},
		{"buyer releases", func() (*models.Payment, error) { return svc.Release(ctx, f.buyer.ID, p.ID) }},
		{"seller refunds", func() (*models.Payment, error) { return svc.Refund(ctx, f.seller.ID, p.ID) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.settle()
			assert.ErrorIs(t, err, ErrNotEscrowParty)
		})
	}

	var stored models.Payment
	require.NoError(t, f.db.First(&stored, "id = ?", p.ID).Error)
	assert.Equal(t, models.PaymentStatusPending, stored.PaymentStatus)
	assert.Equal(t, models.SettlementActionNone, stored.SettlementAction)
	chain.AssertExpectations(t)
}

func TestRefundFailureUnlocksPayment(t *testing.T) {
	f := newPurchaseFixture(t, 100)
	p := newCryptoEscrow(t, f, "8")

	chain := &mockChain{}
	chain.On("RefundBuyer", mock.Anything, "8").Return("", blockchain.ErrTransactionFailed).Once()
	chain.On("RefundBuyer", mock.Anything, "8").Return(testSettleTxHash, nil).Once()
	svc := NewEscrowService(f.db, nil, chain, nil)
	ctx := context.Background()

	_, err := svc.Refund(ctx, f.buyer.ID, p.ID)
	require.ErrorIs(t, err, blockchain.ErrTransactionFailed)

	var stored models.Payment
	require.NoError(t, f.db.First(&stored, "id = ?", p.ID).Error)
	assert.Equal(t, models.PaymentStatusPending, stored.PaymentStatus)
	assert.Equal(t, models.SettlementActionNone, stored.SettlementAction)

	refunded, err := svc.Refund(ctx, f.buyer.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRefunded, refunded.PaymentStatus)
	assert.NotNil(t, refunded.RefundedAt)
	chain.AssertExpectations(t)
}

func TestConcurrentReleaseMovesFundsOnce(t *testing.T) {
	f := newPurchaseFixture(t, 100)
	p := newCryptoEscrow(t, f, "13")

	chain := &mockChain{}
	chain.On("ReleaseFunds", mock.Anything, "13").Return(testSettleTxHash, nil)
	svc := NewEscrowService(f.db, nil, chain, nil)

	const attempts = 4
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Release(context.Background(), f.seller.ID, p.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, ErrEscrowNotHeld) || errors.Is(err, ErrSettlementInProgress), err.Error())
	}
	assert.Equal(t, 1, succeeded)
	chain.AssertNumberOfCalls(t, "ReleaseFunds", 1)
}

func TestProviderEscrowSettlement(t *testing.T) {
	t.Run("release needs no provider call", func(t *testing.T) {
		f := newPurchaseFixture(t, 20)
		card := &fakeProvider{method: payment.MethodCard}
		p := testutil.CreatePayment(t, f.db, f.opp, f.buyer, models.PaymentMethodCard, models.PaymentStatusCompleted)
		svc := NewEscrowService(f.db, payment.NewRegistry(card), nil, nil)

		released, err := svc.Release(context.Background(), f.seller.ID, p.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusReleased, released.PaymentStatus)
		assert.Empty(t, released.SettlementTxHash)
		assert.Empty(t, card.refunds)
	})

	t.Run("refund goes back through the provider", func(t *testing.T) {
		f := newPurchaseFixture(t, 20)
		momo := &fakeProvider{method: payment.MethodMobileMoney}
		p := testutil.CreatePayment(t, f.db, f.opp, f.buyer, models.PaymentMethodMobileMoney, models.PaymentStatusCompleted)
		svc := NewEscrowService(f.db, payment.NewRegistry(momo), nil, nil)

		refunded, err := svc.Refund(context.Background(), f.buyer.ID, p.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusRefunded, refunded.PaymentStatus)
		assert.Equal(t, []string{p.MomoReference}, momo.refunds)
	})

	t.Run("pending without provider reference is not held", func(t *testing.T) {
		f := newPurchaseFixture(t, 20)
		p := testutil.CreatePayment(t, f.db, f.opp, f.buyer, models.PaymentMethodCard, models.PaymentStatusPending)
		require.NoError(t, f.db.Model(p).Update("card_reference", "").Error)
		svc := NewEscrowService(f.db, nil, nil, nil)

		_, err := svc.Release(context.Background(), f.seller.ID, p.ID)
		assert.ErrorIs(t, err, ErrEscrowNotHeld)
	})

	t.Run("failed payments cannot be settled", func(t *testing.T) {
		f := newPurchaseFixture(t, 20)
		p := testutil.CreatePayment(t, f.db, f.opp, f.buyer, models.PaymentMethodCard, models.PaymentStatusFailed)
		svc := NewEscrowService(f.db, nil, nil, nil)

		_, err := svc.Refund(context.Background(), f.buyer.ID, p.ID)
		assert.ErrorIs(t, err, ErrEscrowNotHeld)
	})
}

func TestSettlementNotifiesParties(t *testing.T) {
	f := newPurchaseFixture(t, 20)
	p := testutil.CreatePayment(t, f.db, f.opp, f.buyer, models.PaymentMethodCard, models.PaymentStatusCompleted)
	mailer := newRecordingMailer()
	svc := NewEscrowService(f.db, nil, nil, NewNotificationService(testutil.TestConfig(), mailer))

	_, err := svc.Release(context.Background(), f.seller.ID, p.ID)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		select {
		case email := <-mailer.sent:
			assert.Contains(t, email.Text, "released to the seller")
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for settlement emails")
		}
	}
}

func TestListEscrows(t *testing.T) {
	f := newPurchaseFixture(t, 100)
	held := newCryptoEscrow(t, f, "21")
	missing := newCryptoEscrow(t, f, "22")
	card := testutil.CreatePayment(t, f.db, f.opp, f.buyer, models.PaymentMethodCard, models.PaymentStatusCompleted)
	testutil.CreatePayment(t, f.db, f.opp, f.buyer, models.PaymentMethodCard, models.PaymentStatusFailed)

	other := testutil.CreateProfile(t, f.db, "other")
	otherOpp := testutil.CreateOpportunity(t, f.db, other, models.OpportunityKindItem, "Bike", decimal.NewFromInt(5))
	testutil.CreatePayment(t, f.db, otherOpp, f.seller, models.PaymentMethodCard, models.PaymentStatusCompleted)

	chain := &mockChain{}
	chain.On("GetEscrowDetails", mock.Anything, "21").Return(&blockchain.EscrowState{
		EscrowID: "21",
		Buyer:    testBuyerWallet,
		Seller:   testSellerWallet,
		Amount:   decimal.NewFromInt(100),
	}, nil)
	chain.On("GetEscrowDetails", mock.Anything, "22").Return(nil, nil)
	svc := NewEscrowService(f.db, nil, chain, nil)
	ctx := context.Background()

	views, err := svc.ListEscrows(ctx, f.buyer.ID, models.EscrowRoleBuyer)
	require.NoError(t, err)
	require.Len(t, views, 3)

	byID := map[string]EscrowView{}
	for _, v := range views {
		assert.Equal(t, models.EscrowRoleBuyer, v.Role)
		require.NotNil(t, v.Opportunity)
		byID[v.ID.String()] = v
	}
	require.NotNil(t, byID[held.ID.String()].Chain)
	assert.Equal(t, "held", byID[held.ID.String()].Chain.Status())
	assert.Nil(t, byID[missing.ID.String()].Chain)
	assert.Equal(t, "escrow not found on chain", byID[missing.ID.String()].ChainError)
	assert.Nil(t, byID[card.ID.String()].Chain)
	assert.Empty(t, byID[card.ID.String()].ChainError)

	// The seller sees the three sales as seller and one purchase as buyer
	views, err = svc.ListEscrows(ctx, f.seller.ID, models.EscrowRoleAll)
	require.NoError(t, err)
	assert.Len(t, views, 4)

	views, err = svc.ListEscrows(ctx, f.seller.ID, models.EscrowRoleSeller)
	require.NoError(t, err)
	assert.Len(t, views, 3)

	_, err = svc.ListEscrows(ctx, f.seller.ID, models.EscrowRole("admin"))
	assert.ErrorIs(t, err, ErrInvalidEscrowRole)
}

func TestListEscrowsReportsChainErrorsPerItem(t *testing.T) {
	f := newPurchaseFixture(t, 100)
	newCryptoEscrow(t, f, "31")

	chain := &mockChain{}
	chain.On("GetEscrowDetails", mock.Anything, "31").Return(nil, errors.New("rpc timeout"))
	svc := NewEscrowService(f.db, nil, chain, nil)

	views, err := svc.ListEscrows(context.Background(), f.buyer.ID, models.EscrowRoleAll)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "chain read failed", views[0].ChainError)

	views, err = NewEscrowService(f.db, nil, nil, nil).ListEscrows(context.Background(), f.buyer.ID, "")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, blockchain.ErrNotConfigured.Error(), views[0].ChainError)
}
