package order

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MaxFeeBps is 100% expressed in basis points
const MaxFeeBps = 10000

var (
	ErrInvalidFee    = errors.New("fee exceeds 10000 bps")
	ErrMissingVault  = errors.New("seller order without vault id")
	ErrMissingOtoken = errors.New("buyer order without otoken")
	ErrMissingOwner  = errors.New("order without owner")
	ErrNotFound      = errors.New("order not found")
)

// Role tells which side of an expired option the order settles
type Role int8

const (
	Buyer  Role = iota // holder redeeming oTokens for a payout
	Seller             // writer settling a vault for its excess collateral
)

func (r Role) String() string {
	switch r {
	case Buyer:
		return "buyer"
	case Seller:
		return "seller"
	default:
		return "unknown"
	}
}

// Order is a standing redemption/settlement request read from the order book.
// The resolver never mutates it; Finished is flipped by the execution path.
type Order struct {
	ID    uint64         // insertion index in the book, never reused
	Owner common.Address // account the payout belongs to
	Role  Role

	// Seller only: vault to settle. The otoken is derived from the vault.
	VaultID *big.Int

	// Buyer only: otoken to redeem and how many (8 decimals)
	Otoken common.Address
	Amount *big.Int

	// Optional conversion target; zero address means deliver the payout asset as is
	ToToken common.Address
	FeeBps  uint64 // deducted from the payout before conversion

	Finished bool
}

// IsSeller mirrors the on-chain isSeller flag
func (o *Order) IsSeller() bool {
	return o.Role == Seller
}

// WantsSwap returns true if the payout must be converted before delivery
func (o *Order) WantsSwap() bool {
	return o.ToToken != (common.Address{})
}

// Validate checks the invariants the resolver relies on.
// An order failing validation is never eligible.
func (o *Order) Validate() error {
	if o.Owner == (common.Address{}) {
		return ErrMissingOwner
	}
	if o.FeeBps > MaxFeeBps {
		return fmt.Errorf("%w: %d", ErrInvalidFee, o.FeeBps)
	}
	switch o.Role {
	case Seller:
		if o.VaultID == nil || o.VaultID.Sign() <= 0 {
			return ErrMissingVault
		}
	case Buyer:
		if o.Otoken == (common.Address{}) {
			return ErrMissingOtoken
		}
	default:
		return fmt.Errorf("unknown role %d", o.Role)
	}
	return nil
}

// RequestedAmount returns the buyer's requested amount, zero when unset
func (o *Order) RequestedAmount() *big.Int {
	if o.Amount == nil {
		return new(big.Int)
	}
	return o.Amount
}

func (o *Order) String() string {
	if o.Role == Seller {
		return fmt.Sprintf("order#%d(seller owner=%s vault=%v)", o.ID, o.Owner.Hex(), o.VaultID)
	}
	return fmt.Sprintf("order#%d(buyer owner=%s otoken=%s)", o.ID, o.Owner.Hex(), o.Otoken.Hex())
}
