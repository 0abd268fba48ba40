// Package payment adapts card and mobile money providers to one charge
// interface.
package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	MethodCard        = "card"
	MethodMobileMoney = "mobile-money"
)

var (
	// ErrProviderNotIntegrated means no provider is registered for a method.
	ErrProviderNotIntegrated = errors.New("payment provider not integrated")
	// ErrNotSettled means the provider accepted the charge but did not
	// settle it synchronously.
	ErrNotSettled = errors.New("charge not settled")
	ErrDeclined   = errors.New("charge declined")
)

type ChargeRequest struct {
	PaymentID      string
	Amount         decimal.Decimal
	Currency       string
	Description    string
	PaymentToken   string // card: provider payment method id
	CustomerPhone  string // mobile money: E.164 number
	CustomerEmail  string
	Metadata       map[string]string
	IdempotencyKey string
}

// ChargeResult is the provider's answer. Integrated is false for sandbox
// providers, whose Settled flag is fabricated.
type ChargeResult struct {
	Reference  string
	Status     string
	Settled    bool
	Integrated bool
}

type Provider interface {
	Method() string
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

// Refunder is implemented by providers that can return a settled charge.
type Refunder interface {
	Refund(ctx context.Context, reference string) error
}

type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Method()] = p
	}
	return r
}

func (r *Registry) Get(method string) (Provider, error) {
	p, ok := r.providers[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotIntegrated, method)
	}
	return p, nil
}

// MinorUnits converts an amount to the smallest currency unit (cents,
// pesewas).
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
