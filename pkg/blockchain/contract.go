package blockchain

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// EscrowABI is the interface of the marketplace escrow contract.
const EscrowABI = `[
  {"type":"function","name":"createEscrow","stateMutability":"payable",
   "inputs":[{"name":"opportunityId","type":"string"},{"name":"seller","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"releaseFunds","stateMutability":"nonpayable",
   "inputs":[{"name":"escrowId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"refundBuyer","stateMutability":"nonpayable",
   "inputs":[{"name":"escrowId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"getEscrow","stateMutability":"view",
   "inputs":[{"name":"escrowId","type":"uint256"}],
   "outputs":[{"name":"buyer","type":"address"},{"name":"seller","type":"address"},
              {"name":"amount","type":"uint256"},{"name":"released","type":"bool"},
              {"name":"refunded","type":"bool"},{"name":"createdAt","type":"uint256"},
              {"name":"opportunityId","type":"string"}]},
  {"type":"event","name":"EscrowCreated","anonymous":false,
   "inputs":[{"name":"escrowId","type":"uint256","indexed":true},
             {"name":"buyer","type":"address","indexed":true},
             {"name":"seller","type":"address","indexed":true},
             {"name":"amount","type":"uint256","indexed":false},
             {"name":"opportunityId","type":"string","indexed":false}]},
  {"type":"event","name":"FundsReleased","anonymous":false,
   "inputs":[{"name":"escrowId","type":"uint256","indexed":true},
             {"name":"seller","type":"address","indexed":true},
             {"name":"amount","type":"uint256","indexed":false}]},
  {"type":"event","name":"BuyerRefunded","anonymous":false,
   "inputs":[{"name":"escrowId","type":"uint256","indexed":true},
             {"name":"buyer","type":"address","indexed":true},
             {"name":"amount","type":"uint256","indexed":false}]}
]`

const (
	methodCreateEscrow = "createEscrow"
	methodReleaseFunds = "releaseFunds"
	methodRefundBuyer  = "refundBuyer"
	methodGetEscrow    = "getEscrow"

	eventEscrowCreated = "EscrowCreated"
	eventFundsReleased = "FundsReleased"
	eventBuyerRefunded = "BuyerRefunded"
)

var escrowABI = mustParseABI(EscrowABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("blockchain: invalid escrow ABI: " + err.Error())
	}
	return parsed
}

// EscrowCreated mirrors the EscrowCreated event. Field names follow the ABI
// argument names so that UnpackLog can fill them.
type EscrowCreated struct {
	EscrowId      *big.Int
	Buyer         common.Address
	Seller        common.Address
	Amount        *big.Int
	OpportunityId string
}

type FundsReleased struct {
	EscrowId *big.Int
	Seller   common.Address
	Amount   *big.Int
}

type BuyerRefunded struct {
	EscrowId *big.Int
	Buyer    common.Address
	Amount   *big.Int
}
