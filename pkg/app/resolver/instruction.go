package resolver

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const processOrdersABI = `[{
	"type": "function",
	"name": "processOrders",
	"stateMutability": "nonpayable",
	"inputs": [
		{"name": "_orderIds", "type": "uint256[]"},
		{"name": "_orderArgs", "type": "tuple[]", "components": [
			{"name": "swapAmountOutMin", "type": "uint256"},
			{"name": "swapPath", "type": "address[]"}
		]}
	],
	"outputs": []
}]`

const processOrdersMethod = "processOrders"

var (
	ErrShortInstruction = errors.New("instruction shorter than selector")
	ErrUnknownSelector  = errors.New("instruction selector is not processOrders")
	ErrArgsMismatch     = errors.New("order ids and args differ in length")
)

var redeemerABI = mustParseABI(processOrdersABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse processOrders abi: %v", err))
	}
	return parsed
}

// OrderArgs is the per-order argument of processOrders
type OrderArgs struct {
	SwapAmountOutMin *big.Int
	SwapPath         []common.Address
}

// Instruction is the decoded form of the execution payload
type Instruction struct {
	OrderIDs []*big.Int
	Args     []OrderArgs
}

// Selector returns the 4-byte method id of processOrders
func Selector() []byte {
	return redeemerABI.Methods[processOrdersMethod].ID
}

// EncodeInstruction packs the batch as a processOrders call.
// Orders without a swap get zero args.
func EncodeInstruction(b Batch) ([]byte, error) {
	ids := make([]*big.Int, 0, len(b.Orders))
	args := make([]OrderArgs, 0, len(b.Orders))
	for _, p := range b.Orders {
		ids = append(ids, new(big.Int).SetUint64(p.OrderID))
		a := OrderArgs{SwapAmountOutMin: new(big.Int), SwapPath: []common.Address{}}
		if p.Swap != nil {
			if p.Swap.MinOutput != nil {
				a.SwapAmountOutMin = new(big.Int).Set(p.Swap.MinOutput)
			}
			a.SwapPath = append(a.SwapPath, p.Swap.Path...)
		}
		args = append(args, a)
	}
	data, err := redeemerABI.Pack(processOrdersMethod, ids, args)
	if err != nil {
		return nil, fmt.Errorf("pack processOrders: %w", err)
	}
	return data, nil
}

// DecodeInstruction reverses EncodeInstruction
func DecodeInstruction(data []byte) (Instruction, error) {
	if len(data) < 4 {
		return Instruction{}, ErrShortInstruction
	}
	method, err := redeemerABI.MethodById(data[:4])
	if err != nil || method.Name != processOrdersMethod {
		return Instruction{}, ErrUnknownSelector
	}
	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return Instruction{}, fmt.Errorf("unpack processOrders: %w", err)
	}
	if len(values) != 2 {
		return Instruction{}, fmt.Errorf("unpack processOrders: got %d values", len(values))
	}

	ids, ok := values[0].([]*big.Int)
	if !ok {
		return Instruction{}, fmt.Errorf("unpack processOrders: order ids have type %T", values[0])
	}
	args := *abi.ConvertType(values[1], new([]OrderArgs)).(*[]OrderArgs)
	if len(ids) != len(args) {
		return Instruction{}, ErrArgsMismatch
	}
	return Instruction{OrderIDs: ids, Args: args}, nil
}

// emptyInstruction is the payload for a batch with nothing to execute
func emptyInstruction() []byte {
	data, err := EncodeInstruction(Batch{})
	if err != nil {
		panic(fmt.Sprintf("encode empty instruction: %v", err))
	}
	return data
}
