package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/autoredeem/pkg/app/quote"
)

// Router quotes conversions through a Uniswap V2 style router
type Router struct {
	router contract
}

func NewRouter(caller Caller, address common.Address) *Router {
	return &Router{router: contract{address: address, abi: routerABI, caller: caller}}
}

func (r *Router) AmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	values, err := r.router.call(ctx, "getAmountsOut", amountIn, path)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(values[0], new([]*big.Int)).(*[]*big.Int), nil
}

var _ quote.Provider = (*Router)(nil)
