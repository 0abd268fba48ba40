package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v74"
)

func TestRegistry(t *testing.T) {
	registry := NewRegistry(NewSandboxProvider(MethodMobileMoney))

	p, err := registry.Get(MethodMobileMoney)
	require.NoError(t, err)
	assert.Equal(t, MethodMobileMoney, p.Method())

	_, err = registry.Get("bank-transfer")
	assert.ErrorIs(t, err, ErrProviderNotIntegrated)
}

func TestSandboxProviderFlagsFabricatedSettlement(t *testing.T) {
	provider := NewSandboxProvider(MethodMobileMoney)

	result, err := provider.Charge(context.Background(), ChargeRequest{
		Amount:   decimal.NewFromInt(50),
		Currency: "GHS",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.Reference, "momo_sandbox_"))
	assert.True(t, result.Settled)
	assert.False(t, result.Integrated)

	_, err = provider.Charge(context.Background(), ChargeRequest{Amount: decimal.Zero, Currency: "GHS"})
	assert.ErrorIs(t, err, ErrDeclined)
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(5000), MinorUnits(decimal.NewFromInt(50)))
	assert.Equal(t, int64(1999), MinorUnits(decimal.RequireFromString("19.99")))
	assert.Equal(t, int64(1), MinorUnits(decimal.RequireFromString("0.005")))
}

func newStripeTestProvider(t *testing.T, handler http.HandlerFunc) *StripeCardProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(server.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	return NewStripeCardProviderWithBackend("sk_test_123", backend)
}

func TestStripeCardProvider(t *testing.T) {
	t.Run("succeeded", func(t *testing.T) {
		provider := newStripeTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/v1/payment_intents", r.URL.Path)
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "5000", r.PostForm.Get("amount"))
			assert.Equal(t, "ghs", r.PostForm.Get("currency"))
			assert.Equal(t, "pm_card_visa", r.PostForm.Get("payment_method"))
			assert.Equal(t, "true", r.PostForm.Get("confirm"))
			assert.Equal(t, "pay-1", r.PostForm.Get("metadata[payment_id]"))

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id":"pi_123","object":"payment_intent","status":"succeeded","amount":5000,"currency":"ghs"}`))
		})

		result, err := provider.Charge(context.Background(), ChargeRequest{
			PaymentID:    "pay-1",
			Amount:       decimal.NewFromInt(50),
			Currency:     "GHS",
			PaymentToken: "pm_card_visa",
		})
		require.NoError(t, err)
		assert.Equal(t, "pi_123", result.Reference)
		assert.True(t, result.Settled)
		assert.True(t, result.Integrated)
	})

	t.Run("requires action", func(t *testing.T) {
		provider := newStripeTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id":"pi_456","object":"payment_intent","status":"requires_action"}`))
		})

		result, err := provider.Charge(context.Background(), ChargeRequest{
			Amount:       decimal.NewFromInt(50),
			Currency:     "GHS",
			PaymentToken: "pm_card_threeDSecure2Required",
		})
		assert.ErrorIs(t, err, ErrNotSettled)
		require.NotNil(t, result)
		assert.Equal(t, "pi_456", result.Reference)
		assert.False(t, result.Settled)
	})

	t.Run("declined", func(t *testing.T) {
		provider := newStripeTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusPaymentRequired)
			w.Write([]byte(`{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`))
		})

		_, err := provider.Charge(context.Background(), ChargeRequest{
			Amount:       decimal.NewFromInt(50),
			Currency:     "GHS",
			PaymentToken: "pm_card_chargeDeclined",
		})
		assert.ErrorIs(t, err, ErrDeclined)
	})

	t.Run("missing token", func(t *testing.T) {
		provider := NewStripeCardProvider("sk_test_123")
		_, err := provider.Charge(context.Background(), ChargeRequest{Amount: decimal.NewFromInt(1), Currency: "GHS"})
		assert.ErrorIs(t, err, ErrDeclined)
	})

	t.Run("refund", func(t *testing.T) {
		provider := newStripeTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/v1/refunds", r.URL.Path)
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "pi_123", r.PostForm.Get("payment_intent"))

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id":"re_1","object":"refund","status":"succeeded"}`))
		})

		require.NoError(t, provider.Refund(context.Background(), "pi_123"))
	})
}
