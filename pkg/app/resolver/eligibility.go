package resolver

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/autoredeem/pkg/app/order"
)

// eligibility decides whether executing o right now would go through.
// Every oracle failure is folded into the Outcome; nothing escapes as an error.
func (e *evaluation) eligibility(ctx context.Context, o order.Order) Outcome {
	if err := o.Validate(); err != nil {
		return Outcome{Verdict: Ineligible, Reason: ReasonMalformed, Err: err}
	}
	if o.IsSeller() {
		return e.sellerEligibility(ctx, o)
	}
	// Buyers only need a settled otoken. A zero redeemable amount is a payout
	// size question and does not block the order.
	return e.settleable(ctx, o.Otoken)
}

func (e *evaluation) sellerEligibility(ctx context.Context, o order.Order) Outcome {
	valid, err := e.oracle.IsValidVault(ctx, o.Owner, o.VaultID)
	if err != nil {
		return failed(ReasonInvalidVault, err)
	}
	if !valid {
		return ineligible(ReasonInvalidVault)
	}

	isOperator, err := e.oracle.IsOperator(ctx, o.Owner, e.redeemer)
	if err != nil {
		return failed(ReasonNotOperator, err)
	}
	if !isOperator {
		return ineligible(ReasonNotOperator)
	}

	snap, err := e.oracle.Vault(ctx, o.Owner, o.VaultID)
	if err != nil {
		return failed(ReasonVaultRead, err)
	}
	otoken, err := snap.Otoken()
	if err != nil {
		return Outcome{Verdict: Ineligible, Reason: ReasonEmptyVault, Err: err}
	}

	if out := e.settleable(ctx, otoken); !out.OK() {
		return out
	}

	excess, isValid, err := e.oracle.ExcessCollateral(ctx, snap)
	if err != nil {
		return failed(ReasonCollateralRead, err)
	}
	if !isValid {
		return ineligible(ReasonInvalidMargin)
	}
	if excess == nil || excess.Sign() <= 0 {
		return ineligible(ReasonNoExcessCollateral)
	}
	return eligible()
}

// settleable requires the otoken to be past expiry with a final price available
func (e *evaluation) settleable(ctx context.Context, otoken common.Address) Outcome {
	expired, err := e.oracle.HasExpired(ctx, otoken)
	if err != nil {
		return failed(ReasonExpiryRead, err)
	}
	if !expired {
		return ineligible(ReasonNotExpired)
	}
	allowed, err := e.oracle.IsSettlementAllowed(ctx, otoken)
	if err != nil {
		return failed(ReasonSettlementBlocked, err)
	}
	if !allowed {
		return ineligible(ReasonSettlementBlocked)
	}
	return eligible()
}
