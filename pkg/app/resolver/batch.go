package resolver

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/autoredeem/pkg/app/order"
)

// SwapHint carries the conversion bound for an order that asked for ToToken
type SwapHint struct {
	PayoutAsset common.Address
	AmountIn    *big.Int // payout after fee
	MinOutput   *big.Int
	Path        []common.Address
}

// Planned is one order admitted into a batch
type Planned struct {
	OrderID uint64
	Key     order.Key
	Swap    *SwapHint // nil when no conversion was requested
}

// Rejection records why an order was left out of a batch
type Rejection struct {
	OrderID uint64
	Outcome Outcome
}

// Batch is the result of one evaluation. It is rebuilt from scratch every time.
type Batch struct {
	CanExecute bool
	Orders     []Planned
	Rejections []Rejection
	Evaluated  int
}

// OrderIDs returns the admitted ids in execution order
func (b Batch) OrderIDs() []uint64 {
	ids := make([]uint64, len(b.Orders))
	for i, p := range b.Orders {
		ids[i] = p.OrderID
	}
	return ids
}

// Transient counts rejections caused by failed reads rather than unmet conditions
func (b Batch) Transient() int {
	n := 0
	for _, r := range b.Rejections {
		if r.Outcome.Transient() {
			n++
		}
	}
	return n
}

func (b *Batch) reject(id uint64, out Outcome) {
	b.Rejections = append(b.Rejections, Rejection{OrderID: id, Outcome: out})
}

func (b *Batch) seal() {
	sort.Slice(b.Rejections, func(i, j int) bool {
		return b.Rejections[i].OrderID < b.Rejections[j].OrderID
	})
	b.CanExecute = len(b.Orders) > 0
}
