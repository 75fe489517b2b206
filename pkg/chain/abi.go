package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Trimmed ABIs: only the view functions the keeper reads

const vaultTuple = `{"name": "vault", "type": "tuple", "components": [
	{"name": "shortOtokens", "type": "address[]"},
	{"name": "longOtokens", "type": "address[]"},
	{"name": "collateralAssets", "type": "address[]"},
	{"name": "shortAmounts", "type": "uint256[]"},
	{"name": "longAmounts", "type": "uint256[]"},
	{"name": "collateralAmounts", "type": "uint256[]"}
]}`

const controllerJSON = `[
	{"type": "function", "name": "getAccountVaultCounter", "stateMutability": "view",
		"inputs": [{"name": "owner", "type": "address"}],
		"outputs": [{"name": "", "type": "uint256"}]},
	{"type": "function", "name": "isOperator", "stateMutability": "view",
		"inputs": [{"name": "owner", "type": "address"}, {"name": "operator", "type": "address"}],
		"outputs": [{"name": "", "type": "bool"}]},
	{"type": "function", "name": "getVaultWithDetails", "stateMutability": "view",
		"inputs": [{"name": "owner", "type": "address"}, {"name": "vaultId", "type": "uint256"}],
		"outputs": [` + vaultTuple + `, {"name": "typeVault", "type": "uint256"}, {"name": "latestUpdate", "type": "uint256"}]},
	{"type": "function", "name": "hasExpired", "stateMutability": "view",
		"inputs": [{"name": "otoken", "type": "address"}],
		"outputs": [{"name": "", "type": "bool"}]},
	{"type": "function", "name": "isSettlementAllowed", "stateMutability": "view",
		"inputs": [{"name": "otoken", "type": "address"}],
		"outputs": [{"name": "", "type": "bool"}]}
]`

const calculatorJSON = `[
	{"type": "function", "name": "getExcessCollateral", "stateMutability": "view",
		"inputs": [` + vaultTuple + `, {"name": "vaultType", "type": "uint256"}],
		"outputs": [{"name": "", "type": "uint256"}, {"name": "", "type": "bool"}]},
	{"type": "function", "name": "getExpiredPayoutRate", "stateMutability": "view",
		"inputs": [{"name": "otoken", "type": "address"}],
		"outputs": [{"name": "", "type": "uint256"}]}
]`

const otokenJSON = `[
	{"type": "function", "name": "getOtokenDetails", "stateMutability": "view",
		"inputs": [],
		"outputs": [
			{"name": "collateral", "type": "address"},
			{"name": "underlying", "type": "address"},
			{"name": "strike", "type": "address"},
			{"name": "strikePrice", "type": "uint256"},
			{"name": "expiry", "type": "uint256"},
			{"name": "isPut", "type": "bool"}
		]}
]`

const erc20JSON = `[
	{"type": "function", "name": "balanceOf", "stateMutability": "view",
		"inputs": [{"name": "account", "type": "address"}],
		"outputs": [{"name": "", "type": "uint256"}]},
	{"type": "function", "name": "allowance", "stateMutability": "view",
		"inputs": [{"name": "owner", "type": "address"}, {"name": "spender", "type": "address"}],
		"outputs": [{"name": "", "type": "uint256"}]}
]`

const routerJSON = `[
	{"type": "function", "name": "getAmountsOut", "stateMutability": "view",
		"inputs": [{"name": "amountIn", "type": "uint256"}, {"name": "path", "type": "address[]"}],
		"outputs": [{"name": "amounts", "type": "uint256[]"}]}
]`

const orderTupleJSON = `{"name": "order", "type": "tuple", "components": [
	{"name": "owner", "type": "address"},
	{"name": "otoken", "type": "address"},
	{"name": "amount", "type": "uint256"},
	{"name": "vaultId", "type": "uint256"},
	{"name": "isSeller", "type": "bool"},
	{"name": "toToken", "type": "address"},
	{"name": "fee", "type": "uint256"},
	{"name": "finished", "type": "bool"}
]}`

const redeemerJSON = `[
	{"type": "function", "name": "getOrders", "stateMutability": "view",
		"inputs": [],
		"outputs": [{"name": "", "type": "tuple[]", "components": [
			{"name": "owner", "type": "address"},
			{"name": "otoken", "type": "address"},
			{"name": "amount", "type": "uint256"},
			{"name": "vaultId", "type": "uint256"},
			{"name": "isSeller", "type": "bool"},
			{"name": "toToken", "type": "address"},
			{"name": "fee", "type": "uint256"},
			{"name": "finished", "type": "bool"}
		]}]},
	{"type": "function", "name": "getOrder", "stateMutability": "view",
		"inputs": [{"name": "orderId", "type": "uint256"}],
		"outputs": [` + orderTupleJSON + `]},
	{"type": "function", "name": "shouldProcessOrder", "stateMutability": "view",
		"inputs": [{"name": "orderId", "type": "uint256"}],
		"outputs": [{"name": "", "type": "bool"}]}
]`

var (
	controllerABI = mustABI("controller", controllerJSON)
	calculatorABI = mustABI("margin calculator", calculatorJSON)
	otokenABI     = mustABI("otoken", otokenJSON)
	erc20ABI      = mustABI("erc20", erc20JSON)
	routerABI     = mustABI("router", routerJSON)
	redeemerABI   = mustABI("redeemer", redeemerJSON)
)

func mustABI(name, def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse %s abi: %v", name, err))
	}
	return parsed
}
