package chain

import (
	"context"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/autoredeem/pkg/app/order"
)

// orderTuple matches the redeemer's Order struct field for field
type orderTuple struct {
	Owner    common.Address
	Otoken   common.Address
	Amount   *big.Int
	VaultId  *big.Int
	IsSeller bool
	ToToken  common.Address
	Fee      *big.Int
	Finished bool
}

func (t orderTuple) toOrder(id uint64) order.Order {
	o := order.Order{
		ID:       id,
		Owner:    t.Owner,
		ToToken:  t.ToToken,
		FeeBps:   math.MaxUint64,
		Finished: t.Finished,
	}
	if t.Fee != nil && t.Fee.IsUint64() {
		o.FeeBps = t.Fee.Uint64()
	}
	if t.IsSeller {
		o.Role = order.Seller
		o.VaultID = t.VaultId
		return o
	}
	o.Role = order.Buyer
	o.Otoken = t.Otoken
	o.Amount = t.Amount
	return o
}

// Redeemer reads the on-chain order book
type Redeemer struct {
	redeemer contract
}

func NewRedeemer(caller Caller, address common.Address) *Redeemer {
	return &Redeemer{redeemer: contract{address: address, abi: redeemerABI, caller: caller}}
}

// Address returns the redeemer contract address
func (r *Redeemer) Address() common.Address { return r.redeemer.address }

func (r *Redeemer) GetOrders(ctx context.Context) ([]order.Order, error) {
	values, err := r.redeemer.call(ctx, "getOrders")
	if err != nil {
		return nil, err
	}
	tuples := *abi.ConvertType(values[0], new([]orderTuple)).(*[]orderTuple)
	orders := make([]order.Order, len(tuples))
	for i, t := range tuples {
		orders[i] = t.toOrder(uint64(i))
	}
	return orders, nil
}

func (r *Redeemer) GetOrder(ctx context.Context, id uint64) (order.Order, error) {
	values, err := r.redeemer.call(ctx, "getOrder", new(big.Int).SetUint64(id))
	if err != nil {
		return order.Order{}, fmt.Errorf("order %d: %w", id, err)
	}
	t := *abi.ConvertType(values[0], new(orderTuple)).(*orderTuple)
	if t.Owner == (common.Address{}) {
		return order.Order{}, fmt.Errorf("%w: %d", order.ErrNotFound, id)
	}
	return t.toOrder(id), nil
}

func (r *Redeemer) ShouldAttempt(ctx context.Context, id uint64) (bool, error) {
	return r.redeemer.callBool(ctx, "shouldProcessOrder", new(big.Int).SetUint64(id))
}

var _ order.Store = (*Redeemer)(nil)
