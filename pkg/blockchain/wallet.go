package blockchain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Wallet signs settlement transactions. It stands in for a browser extension:
// account access, the current chain and a signer for transactions.
type Wallet interface {
	Account(ctx context.Context) (common.Address, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SwitchChain(ctx context.Context, chainID *big.Int) error
	Transactor(ctx context.Context) (*bind.TransactOpts, error)
}

// ChainReader reports the chain id of the connected RPC node.
type ChainReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
}

// KeyedWallet signs with a private key held by the server. Its chain is the
// chain of the RPC node it is attached to.
type KeyedWallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chain   ChainReader
}

func NewKeyedWallet(hexKey string, chain ChainReader) (*KeyedWallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid wallet key: %w", err)
	}
	return &KeyedWallet{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chain:   chain,
	}, nil
}

func (w *KeyedWallet) Account(ctx context.Context) (common.Address, error) {
	return w.address, nil
}

func (w *KeyedWallet) ChainID(ctx context.Context) (*big.Int, error) {
	return w.chain.ChainID(ctx)
}

// SwitchChain succeeds only when the node already serves chainID; a keyed
// wallet cannot move to another network.
func (w *KeyedWallet) SwitchChain(ctx context.Context, chainID *big.Int) error {
	current, err := w.chain.ChainID(ctx)
	if err != nil {
		return err
	}
	if current.Cmp(chainID) != 0 {
		return fmt.Errorf("node serves chain %s, not %s", current, chainID)
	}
	return nil
}

func (w *KeyedWallet) Transactor(ctx context.Context) (*bind.TransactOpts, error) {
	chainID, err := w.chain.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	opts, err := bind.NewKeyedTransactorWithChainID(w.key, chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	return opts, nil
}

// NoWallet is the state where no wallet is installed.
type NoWallet struct{}

func (NoWallet) Account(context.Context) (common.Address, error) {
	return common.Address{}, ErrWalletUnavailable
}

func (NoWallet) ChainID(context.Context) (*big.Int, error) {
	return nil, ErrWalletUnavailable
}

func (NoWallet) SwitchChain(context.Context, *big.Int) error {
	return ErrWalletUnavailable
}

func (NoWallet) Transactor(context.Context) (*bind.TransactOpts, error) {
	return nil, ErrWalletUnavailable
}
