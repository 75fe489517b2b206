package resolver

import (
	"fmt"

	"github.com/uhyunpark/autoredeem/pkg/app/protocol"
)

// Verdict is the result class of an eligibility check
type Verdict int8

const (
	Eligible    Verdict = iota
	Ineligible          // a condition is not met or the protocol rejected the read
	Unavailable         // the read itself failed (timeout, network); retried next evaluation
)

func (v Verdict) String() string {
	switch v {
	case Eligible:
		return "eligible"
	case Ineligible:
		return "ineligible"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Rejection reasons, stable strings for logs and the diagnostics API
const (
	ReasonMalformed          = "malformed_order"
	ReasonNotAttempted       = "not_attempted"
	ReasonStore              = "store_read_failed"
	ReasonInvalidVault       = "invalid_vault"
	ReasonNotOperator        = "operator_not_authorized"
	ReasonVaultRead          = "vault_read_failed"
	ReasonEmptyVault         = "empty_vault"
	ReasonNotExpired         = "not_expired"
	ReasonSettlementBlocked  = "settlement_not_allowed"
	ReasonExpiryRead         = "expiry_read_failed"
	ReasonInvalidMargin      = "invalid_vault_margin"
	ReasonNoExcessCollateral = "no_excess_collateral"
	ReasonCollateralRead     = "excess_collateral_read_failed"
	ReasonDuplicate          = "duplicate_position"
	ReasonConversion         = "conversion_quote_failed"
	ReasonInternal           = "internal_error"
)

// Outcome is what the eligibility boundary hands back instead of an error.
// Only Eligible admits an order; Err keeps the cause for logs.
type Outcome struct {
	Verdict Verdict
	Reason  string
	Err     error
}

func eligible() Outcome { return Outcome{Verdict: Eligible} }

func ineligible(reason string) Outcome {
	return Outcome{Verdict: Ineligible, Reason: reason}
}

// failed classifies an error from a collaborator read
func failed(reason string, err error) Outcome {
	v := Ineligible
	if protocol.IsTransient(err) {
		v = Unavailable
	}
	return Outcome{Verdict: v, Reason: reason, Err: err}
}

// OK returns true if the order may be executed
func (o Outcome) OK() bool { return o.Verdict == Eligible }

// Transient returns true if the outcome came from an I/O failure
func (o Outcome) Transient() bool { return o.Verdict == Unavailable }

func (o Outcome) String() string {
	if o.OK() {
		return o.Verdict.String()
	}
	if o.Err != nil {
		return fmt.Sprintf("%s(%s: %v)", o.Verdict, o.Reason, o.Err)
	}
	return fmt.Sprintf("%s(%s)", o.Verdict, o.Reason)
}
