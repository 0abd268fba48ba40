package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
	"github.com/stripe/stripe-go/v74/refund"
)

// StripeCardProvider charges cards with a confirmed PaymentIntent.
type StripeCardProvider struct {
	intents paymentintent.Client
	refunds refund.Client
}

func NewStripeCardProvider(secretKey string) *StripeCardProvider {
	return NewStripeCardProviderWithBackend(secretKey, stripe.GetBackend(stripe.APIBackend))
}

func NewStripeCardProviderWithBackend(secretKey string, backend stripe.Backend) *StripeCardProvider {
	return &StripeCardProvider{
		intents: paymentintent.Client{B: backend, Key: secretKey},
		refunds: refund.Client{B: backend, Key: secretKey},
	}
}

func (p *StripeCardProvider) Method() string {
	return MethodCard
}

func (p *StripeCardProvider) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if req.PaymentToken == "" {
		return nil, fmt.Errorf("%w: missing card payment method", ErrDeclined)
	}

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(MinorUnits(req.Amount)),
		Currency:           stripe.String(strings.ToLower(req.Currency)),
		PaymentMethod:      stripe.String(req.PaymentToken),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Confirm:            stripe.Bool(true),
		Description:        stripe.String(req.Description),
	}
	params.Context = ctx
	if req.CustomerEmail != "" {
		params.ReceiptEmail = stripe.String(req.CustomerEmail)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	params.AddMetadata("payment_id", req.PaymentID)
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := p.intents.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			return nil, fmt.Errorf("%w: %s", ErrDeclined, stripeErr.Msg)
		}
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	result := &ChargeResult{
		Reference:  pi.ID,
		Status:     string(pi.Status),
		Settled:    pi.Status == stripe.PaymentIntentStatusSucceeded,
		Integrated: true,
	}
	if !result.Settled {
		return result, fmt.Errorf("%w: payment intent %s is %s", ErrNotSettled, pi.ID, pi.Status)
	}
	return result, nil
}

func (p *StripeCardProvider) Refund(ctx context.Context, reference string) error {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(reference),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx

	if _, err := p.refunds.New(params); err != nil {
		return fmt.Errorf("failed to process refund: %w", err)
	}
	return nil
}
