package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// SandboxProvider stands in for a provider that is not wired up yet. It
// reports success without moving money and says so via Integrated=false.
type SandboxProvider struct {
	method string
}

func NewSandboxProvider(method string) *SandboxProvider {
	return &SandboxProvider{method: method}
}

func (p *SandboxProvider) Method() string {
	return p.method
}

func (p *SandboxProvider) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrDeclined)
	}

	prefix := "card"
	if p.method == MethodMobileMoney {
		prefix = "momo"
	}
	return &ChargeResult{
		Reference:  fmt.Sprintf("%s_sandbox_%s", prefix, strings.ReplaceAll(uuid.NewString(), "-", "")),
		Status:     "succeeded",
		Settled:    true,
		Integrated: false,
	}, nil
}

func (p *SandboxProvider) Refund(ctx context.Context, reference string) error {
	return ctx.Err()
}
