package quote

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Provider quotes a conversion along a token path.
// amounts[0] is amountIn and amounts[len(path)-1] is the expected output.
type Provider interface {
	AmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error)
}

// Path builds the direct two-hop path used for payout conversions
func Path(from, to common.Address) []common.Address {
	return []common.Address{from, to}
}
