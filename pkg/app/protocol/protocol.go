package protocol

import (
	"context"
	"errors"
	"math/big"
	"net"

	"github.com/ethereum/go-ethereum/common"
)

// OtokenDecimals is the fixed precision of every oToken
const OtokenDecimals = 8

var (
	// ErrEmptyVault is returned when a vault has neither a short nor a long leg
	ErrEmptyVault = errors.New("vault has no short or long otoken")
	// ErrNoCollateral is returned when a vault lists no collateral asset
	ErrNoCollateral = errors.New("vault has no collateral asset")
)

// Vault mirrors the margin vault layout of the protocol
type Vault struct {
	ShortOtokens      []common.Address
	LongOtokens       []common.Address
	CollateralAssets  []common.Address
	ShortAmounts      []*big.Int
	LongAmounts       []*big.Int
	CollateralAmounts []*big.Int
}

// VaultSnapshot is a vault as read at one evaluation instant.
// VaultType classifies the vault for the margin calculator (0 = fully collateralized).
type VaultSnapshot struct {
	Vault
	VaultType    *big.Int
	LatestUpdate *big.Int
}

// Otoken resolves which option the vault is exposed to: the short leg first,
// then the long leg. An empty vault is malformed, not "no otoken".
func (v Vault) Otoken() (common.Address, error) {
	if len(v.ShortOtokens) > 0 {
		return v.ShortOtokens[0], nil
	}
	if len(v.LongOtokens) > 0 {
		return v.LongOtokens[0], nil
	}
	return common.Address{}, ErrEmptyVault
}

// Collateral returns the asset the vault settles in
func (v Vault) Collateral() (common.Address, error) {
	if len(v.CollateralAssets) == 0 {
		return common.Address{}, ErrNoCollateral
	}
	return v.CollateralAssets[0], nil
}

// OtokenDetails holds the static terms of an oToken
type OtokenDetails struct {
	Collateral  common.Address
	Underlying  common.Address
	Strike      common.Address
	StrikePrice *big.Int
	Expiry      *big.Int // unix seconds
	IsPut       bool
}

// Oracle is the read-only view of the options protocol.
// Implementations must not mutate protocol state.
type Oracle interface {
	// IsValidVault reports whether vaultID exists for owner
	IsValidVault(ctx context.Context, owner common.Address, vaultID *big.Int) (bool, error)
	// IsOperator reports whether owner authorized operator over its vaults
	IsOperator(ctx context.Context, owner, operator common.Address) (bool, error)
	Vault(ctx context.Context, owner common.Address, vaultID *big.Int) (VaultSnapshot, error)

	OtokenDetails(ctx context.Context, otoken common.Address) (OtokenDetails, error)
	HasExpired(ctx context.Context, otoken common.Address) (bool, error)
	// IsSettlementAllowed is true once a final price exists for the otoken
	IsSettlementAllowed(ctx context.Context, otoken common.Address) (bool, error)

	// ExcessCollateral returns the collateral returnable after settlement and
	// whether the vault is valid under the margin rules
	ExcessCollateral(ctx context.Context, vault VaultSnapshot) (*big.Int, bool, error)
	// ExpiredPayoutRate is collateral paid per 1e8 otoken units
	ExpiredPayoutRate(ctx context.Context, otoken common.Address) (*big.Int, error)

	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
}

// IsTransient separates I/O trouble (timeouts, cancelled evaluations, network
// failures) from answers the protocol actually gave, such as a revert.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
