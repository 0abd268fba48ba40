// Package blockchain is the gateway to the marketplace escrow contract on a
// single EVM network.
package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
)

// Backend is the RPC surface the gateway needs. *ethclient.Client
// satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
}

type Config struct {
	RPCURL          string
	ContractAddress string
	PrivateKey      string
	ChainID         int64
	TokenDecimals   int32
	TxTimeout       time.Duration
}

// EscrowReceipt is the outcome of a mined createEscrow transaction.
type EscrowReceipt struct {
	EscrowID      string
	TxHash        string
	Buyer         string
	Seller        string
	Amount        decimal.Decimal
	OpportunityID string
}

// EscrowState is a cached read of an escrow held by the contract.
type EscrowState struct {
	EscrowID      string          `json:"escrow_id"`
	Buyer         string          `json:"buyer"`
	Seller        string          `json:"seller"`
	Amount        decimal.Decimal `json:"amount"`
	Released      bool            `json:"released"`
	Refunded      bool            `json:"refunded"`
	CreatedAt     time.Time       `json:"created_at"`
	OpportunityID string          `json:"opportunity_id"`
}

func (s *EscrowState) Status() string {
	switch {
	case s.Released:
		return "released"
	case s.Refunded:
		return "refunded"
	default:
		return "held"
	}
}

type Gateway struct {
	backend      Backend
	contract     *bind.BoundContract
	address      common.Address
	wallet       Wallet
	chainID      *big.Int
	decimals     int32
	timeout      time.Duration
	pollInterval time.Duration
}

var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

var errEventNotFound = errors.New("event not found in receipt")

// Dial connects to the configured RPC node. Without a private key the
// gateway is read-only and every write fails with ErrWalletUnavailable.
func Dial(ctx context.Context, cfg Config) (*Gateway, error) {
	if cfg.RPCURL == "" || !common.IsHexAddress(cfg.ContractAddress) {
		return nil, ErrNotConfigured
	}

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc: %w", err)
	}

	var wallet Wallet = NoWallet{}
	if cfg.PrivateKey != "" {
		keyed, err := NewKeyedWallet(cfg.PrivateKey, client)
		if err != nil {
			client.Close()
			return nil, err
		}
		wallet = keyed
	}

	return NewGateway(client, common.HexToAddress(cfg.ContractAddress), wallet, cfg), nil
}

func NewGateway(backend Backend, contract common.Address, wallet Wallet, cfg Config) *Gateway {
	timeout := cfg.TxTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if wallet == nil {
		wallet = NoWallet{}
	}
	return &Gateway{
		backend:      backend,
		contract:     bind.NewBoundContract(contract, escrowABI, backend, backend, backend),
		address:      contract,
		wallet:       wallet,
		chainID:      big.NewInt(cfg.ChainID),
		decimals:     cfg.TokenDecimals,
		timeout:      timeout,
		pollInterval: time.Second,
	}
}

func (g *Gateway) TargetChainID() int64 {
	return g.chainID.Int64()
}

func (g *Gateway) ContractAddress() string {
	return g.address.Hex()
}

// ConnectWallet returns the wallet's first account.
func (g *Gateway) ConnectWallet(ctx context.Context) (string, error) {
	account, err := g.wallet.Account(ctx)
	if err != nil {
		return "", err
	}
	return account.Hex(), nil
}

// CheckNetwork reports whether the wallet is on the target chain. A missing
// wallet or an RPC error reads as false.
func (g *Gateway) CheckNetwork(ctx context.Context) bool {
	current, err := g.wallet.ChainID(ctx)
	if err != nil {
		return false
	}
	return current.Cmp(g.chainID) == 0
}

func (g *Gateway) SwitchToTargetNetwork(ctx context.Context) bool {
	return g.wallet.SwitchChain(ctx, g.chainID) == nil
}

// EscrowCall is an unsigned createEscrow transaction for the buyer's wallet
// to sign and submit.
type EscrowCall struct {
	ChainID int64  `json:"chain_id"`
	To      string `json:"to"`
	Data    string `json:"data"`
	Value   string `json:"value"`
}

// PrepareEscrow encodes createEscrow for seller with amount as the attached
// value. Nothing is signed or sent.
func (g *Gateway) PrepareEscrow(opportunityID string, amount decimal.Decimal, seller string) (*EscrowCall, error) {
	if !common.IsHexAddress(seller) {
		return nil, fmt.Errorf("%w: invalid seller address %q", ErrEscrowCreationFailed, seller)
	}
	value := ToBaseUnits(amount, g.decimals)
	if value.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount %s", ErrEscrowCreationFailed, amount)
	}

	data, err := escrowABI.Pack(methodCreateEscrow, opportunityID, common.HexToAddress(seller))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEscrowCreationFailed, err)
	}

	return &EscrowCall{
		ChainID: g.chainID.Int64(),
		To:      g.address.Hex(),
		Data:    hexutil.Encode(data),
		Value:   value.String(),
	}, nil
}

// ConfirmEscrow reads the outcome of a createEscrow transaction that the
// buyer's own wallet submitted.
func (g *Gateway) ConfirmEscrow(ctx context.Context, txHash string) (*EscrowReceipt, error) {
	if !txHashPattern.MatchString(txHash) {
		return nil, fmt.Errorf("%w: malformed transaction hash", ErrEscrowCreationFailed)
	}

	receipt, err := g.waitReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		return nil, fmt.Errorf("%w: waiting for %s: %w", ErrEscrowCreationFailed, txHash, err)
	}

	return g.escrowFromReceipt(receipt)
}

func (g *Gateway) escrowFromReceipt(receipt *types.Receipt) (*EscrowReceipt, error) {
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: transaction %s reverted", ErrEscrowCreationFailed, receipt.TxHash.Hex())
	}

	var event EscrowCreated
	if err := g.findEvent(receipt, eventEscrowCreated, &event); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEscrowCreationFailed, err)
	}

	return &EscrowReceipt{
		EscrowID:      event.EscrowId.String(),
		TxHash:        receipt.TxHash.Hex(),
		Buyer:         event.Buyer.Hex(),
		Seller:        event.Seller.Hex(),
		Amount:        FromBaseUnits(event.Amount, g.decimals),
		OpportunityID: event.OpportunityId,
	}, nil
}

// ReleaseFunds pays the escrowed amount to the seller and returns the
// transaction hash. Failures are not retried.
func (g *Gateway) ReleaseFunds(ctx context.Context, escrowID string) (string, error) {
	return g.settle(ctx, methodReleaseFunds, eventFundsReleased, escrowID, &FundsReleased{})
}

// RefundBuyer returns the escrowed amount to the buyer.
func (g *Gateway) RefundBuyer(ctx context.Context, escrowID string) (string, error) {
	return g.settle(ctx, methodRefundBuyer, eventBuyerRefunded, escrowID, &BuyerRefunded{})
}

func (g *Gateway) settle(ctx context.Context, method, event, escrowID string, out interface{}) (string, error) {
	id, err := ParseEscrowID(escrowID)
	if err != nil {
		return "", err
	}

	opts, err := g.wallet.Transactor(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTransactionFailed, err)
	}

	tx, err := g.contract.Transact(opts, method, id)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrTransactionFailed, method, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, g.backend, tx)
	if err != nil {
		return "", fmt.Errorf("%w: waiting for %s: %w", ErrTransactionFailed, tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("%w: %s reverted", ErrTransactionFailed, tx.Hash().Hex())
	}
	if err := g.findEvent(receipt, event, out); err != nil {
		return "", fmt.Errorf("%w: %w", ErrTransactionFailed, err)
	}

	return tx.Hash().Hex(), nil
}

// GetEscrowDetails reads an escrow. An id the contract does not know, or
// one that is not an id at all, yields (nil, nil). Only transport failures
// are returned as errors.
func (g *Gateway) GetEscrowDetails(ctx context.Context, escrowID string) (*EscrowState, error) {
	id, err := ParseEscrowID(escrowID)
	if err != nil {
		return nil, nil
	}

	var out []interface{}
	if err := g.contract.Call(&bind.CallOpts{Context: ctx}, &out, methodGetEscrow, id); err != nil {
		if isRevert(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("getEscrow(%s): %w", escrowID, err)
	}

	return decodeEscrow(escrowID, out, g.decimals)
}

func decodeEscrow(escrowID string, out []interface{}, decimals int32) (*EscrowState, error) {
	if len(out) != 7 {
		return nil, fmt.Errorf("getEscrow(%s): unexpected output length %d", escrowID, len(out))
	}

	buyer, ok1 := out[0].(common.Address)
	seller, ok2 := out[1].(common.Address)
	amount, ok3 := out[2].(*big.Int)
	released, ok4 := out[3].(bool)
	refunded, ok5 := out[4].(bool)
	createdAt, ok6 := out[5].(*big.Int)
	opportunityID, ok7 := out[6].(string)
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6 && ok7) {
		return nil, fmt.Errorf("getEscrow(%s): unexpected output types", escrowID)
	}

	// Unset storage slots read back as a zero buyer.
	if buyer == (common.Address{}) {
		return nil, nil
	}

	return &EscrowState{
		EscrowID:      escrowID,
		Buyer:         buyer.Hex(),
		Seller:        seller.Hex(),
		Amount:        FromBaseUnits(amount, decimals),
		Released:      released,
		Refunded:      refunded,
		CreatedAt:     time.Unix(createdAt.Int64(), 0).UTC(),
		OpportunityID: opportunityID,
	}, nil
}

func (g *Gateway) findEvent(receipt *types.Receipt, name string, out interface{}) error {
	event := escrowABI.Events[name]
	for _, log := range receipt.Logs {
		if log == nil || log.Address != g.address || len(log.Topics) == 0 || log.Topics[0] != event.ID {
			continue
		}
		return g.contract.UnpackLog(out, name, *log)
	}
	return fmt.Errorf("%s: %w", name, errEventNotFound)
}

func (g *Gateway) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := g.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func isRevert(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}
