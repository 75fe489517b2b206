package resolver

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/autoredeem/pkg/app/order"
	"github.com/uhyunpark/autoredeem/pkg/app/protocol"
)

var (
	bpsDenominator = big.NewInt(order.MaxFeeBps)
	otokenUnit     = new(big.Int).Exp(big.NewInt(10), big.NewInt(protocol.OtokenDecimals), nil)
)

// ApplyFee deducts feeBps from amount with integer truncation
// Formula: amount - amount × feeBps / 10000
func ApplyFee(amount *big.Int, feeBps uint64) *big.Int {
	if amount == nil {
		return new(big.Int)
	}
	fee := new(big.Int).Mul(amount, new(big.Int).SetUint64(feeBps))
	fee.Quo(fee, bpsDenominator)
	return new(big.Int).Sub(amount, fee)
}

// RedeemableAmount is the most the redeemer can move for the owner:
// min(requested, owner balance, allowance granted to the redeemer)
func RedeemableAmount(requested, balance, allowance *big.Int) *big.Int {
	out := new(big.Int).Set(requested)
	for _, v := range []*big.Int{balance, allowance} {
		if v.Cmp(out) < 0 {
			out.Set(v)
		}
	}
	return out
}

// RedeemPayout converts an otoken amount into collateral at the expired payout rate
// Formula: rate × amount / 1e8
func RedeemPayout(rate, amount *big.Int) *big.Int {
	out := new(big.Int).Mul(rate, amount)
	return out.Quo(out, otokenUnit)
}

// payout returns the asset and amount the order pays out at this instant.
// Callers only reach here after the order passed eligibility.
func (e *evaluation) payout(ctx context.Context, o order.Order) (common.Address, *big.Int, error) {
	if o.IsSeller() {
		snap, err := e.oracle.Vault(ctx, o.Owner, o.VaultID)
		if err != nil {
			return common.Address{}, nil, fmt.Errorf("read vault: %w", err)
		}
		asset, err := snap.Collateral()
		if err != nil {
			return common.Address{}, nil, err
		}
		excess, _, err := e.oracle.ExcessCollateral(ctx, snap)
		if err != nil {
			return common.Address{}, nil, fmt.Errorf("excess collateral: %w", err)
		}
		return asset, excess, nil
	}

	details, err := e.oracle.OtokenDetails(ctx, o.Otoken)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("otoken details: %w", err)
	}
	amount, err := e.redeemable(ctx, o.Owner, o.Otoken, o.RequestedAmount())
	if err != nil {
		return common.Address{}, nil, err
	}
	rate, err := e.oracle.ExpiredPayoutRate(ctx, o.Otoken)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("payout rate: %w", err)
	}
	return details.Collateral, RedeemPayout(rate, amount), nil
}

func (e *evaluation) redeemable(ctx context.Context, owner, otoken common.Address, requested *big.Int) (*big.Int, error) {
	balance, err := e.oracle.BalanceOf(ctx, otoken, owner)
	if err != nil {
		return nil, fmt.Errorf("balance: %w", err)
	}
	allowance, err := e.oracle.Allowance(ctx, otoken, owner, e.redeemer)
	if err != nil {
		return nil, fmt.Errorf("allowance: %w", err)
	}
	return RedeemableAmount(requested, balance, allowance), nil
}
