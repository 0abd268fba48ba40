package blockchain

import "errors"

var (
	// ErrWalletUnavailable means no signing wallet is configured.
	ErrWalletUnavailable = errors.New("wallet unavailable")
	// ErrEscrowCreationFailed covers an unencodable escrow call, a reverted
	// transaction and a receipt without an EscrowCreated event.
	ErrEscrowCreationFailed = errors.New("escrow creation failed")
	// ErrTransactionFailed means a release or refund was dropped or reverted.
	ErrTransactionFailed = errors.New("transaction failed")
	ErrInvalidEscrowID   = errors.New("invalid escrow id")
	ErrNotConfigured     = errors.New("chain gateway not configured")
)
