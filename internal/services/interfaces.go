// internal/services/interfaces.go
package services

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/campushub/backend/pkg/assistant"
	"github.com/campushub/backend/pkg/blockchain"
	"github.com/campushub/backend/pkg/payment"
)

// ChainGateway is the escrow contract as seen by the payment and escrow
// services. Escrows are funded by the buyer's wallet; the gateway's own
// wallet only relays releases and refunds. *blockchain.Gateway implements it.
type ChainGateway interface {
	TargetChainID() int64
	ContractAddress() string
	ConnectWallet(ctx context.Context) (string, error)
	CheckNetwork(ctx context.Context) bool
	SwitchToTargetNetwork(ctx context.Context) bool
	PrepareEscrow(opportunityID string, amount decimal.Decimal, seller string) (*blockchain.EscrowCall, error)
	ConfirmEscrow(ctx context.Context, txHash string) (*blockchain.EscrowReceipt, error)
	ReleaseFunds(ctx context.Context, escrowID string) (string, error)
	RefundBuyer(ctx context.Context, escrowID string) (string, error)
	GetEscrowDetails(ctx context.Context, escrowID string) (*blockchain.EscrowState, error)
}

// PaymentProviders resolves a card or mobile money provider by method.
// *payment.Registry implements it.
type PaymentProviders interface {
	Get(method string) (payment.Provider, error)
}

// MessageSender delivers bot replies. *whatsapp.Client implements it.
type MessageSender interface {
	SendText(ctx context.Context, to, body string) (string, error)
}

// AssistantClient is the chat completion backend. *assistant.Client
// implements it.
type AssistantClient interface {
	Complete(ctx context.Context, system string, messages []assistant.Message) (string, error)
}
