package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/autoredeem/pkg/app/protocol"
)

// Addresses of the protocol contracts the oracle reads
type Addresses struct {
	Controller common.Address
	Calculator common.Address
}

// Oracle reads protocol state over JSON-RPC
type Oracle struct {
	caller     Caller
	controller contract
	calculator contract
}

func NewOracle(caller Caller, addrs Addresses) *Oracle {
	return &Oracle{
		caller:     caller,
		controller: contract{address: addrs.Controller, abi: controllerABI, caller: caller},
		calculator: contract{address: addrs.Calculator, abi: calculatorABI, caller: caller},
	}
}

// IsValidVault: vault ids are 1-based and allocated sequentially per owner
func (o *Oracle) IsValidVault(ctx context.Context, owner common.Address, vaultID *big.Int) (bool, error) {
	if vaultID == nil || vaultID.Sign() <= 0 {
		return false, nil
	}
	counter, err := o.controller.callUint(ctx, "getAccountVaultCounter", owner)
	if err != nil {
		return false, err
	}
	return vaultID.Cmp(counter) <= 0, nil
}

func (o *Oracle) IsOperator(ctx context.Context, owner, operator common.Address) (bool, error) {
	return o.controller.callBool(ctx, "isOperator", owner, operator)
}

func (o *Oracle) Vault(ctx context.Context, owner common.Address, vaultID *big.Int) (protocol.VaultSnapshot, error) {
	values, err := o.controller.call(ctx, "getVaultWithDetails", owner, vaultID)
	if err != nil {
		return protocol.VaultSnapshot{}, err
	}
	vault := *abi.ConvertType(values[0], new(protocol.Vault)).(*protocol.Vault)
	return protocol.VaultSnapshot{
		Vault:        vault,
		VaultType:    abi.ConvertType(values[1], new(big.Int)).(*big.Int),
		LatestUpdate: abi.ConvertType(values[2], new(big.Int)).(*big.Int),
	}, nil
}

func (o *Oracle) OtokenDetails(ctx context.Context, otoken common.Address) (protocol.OtokenDetails, error) {
	c := contract{address: otoken, abi: otokenABI, caller: o.caller}
	values, err := c.call(ctx, "getOtokenDetails")
	if err != nil {
		return protocol.OtokenDetails{}, err
	}
	return protocol.OtokenDetails{
		Collateral:  *abi.ConvertType(values[0], new(common.Address)).(*common.Address),
		Underlying:  *abi.ConvertType(values[1], new(common.Address)).(*common.Address),
		Strike:      *abi.ConvertType(values[2], new(common.Address)).(*common.Address),
		StrikePrice: abi.ConvertType(values[3], new(big.Int)).(*big.Int),
		Expiry:      abi.ConvertType(values[4], new(big.Int)).(*big.Int),
		IsPut:       *abi.ConvertType(values[5], new(bool)).(*bool),
	}, nil
}

func (o *Oracle) HasExpired(ctx context.Context, otoken common.Address) (bool, error) {
	return o.controller.callBool(ctx, "hasExpired", otoken)
}

func (o *Oracle) IsSettlementAllowed(ctx context.Context, otoken common.Address) (bool, error) {
	return o.controller.callBool(ctx, "isSettlementAllowed", otoken)
}

func (o *Oracle) ExcessCollateral(ctx context.Context, snap protocol.VaultSnapshot) (*big.Int, bool, error) {
	vaultType := snap.VaultType
	if vaultType == nil {
		vaultType = new(big.Int)
	}
	values, err := o.calculator.call(ctx, "getExcessCollateral", packable(snap.Vault), vaultType)
	if err != nil {
		return nil, false, err
	}
	excess := abi.ConvertType(values[0], new(big.Int)).(*big.Int)
	isValid := *abi.ConvertType(values[1], new(bool)).(*bool)
	return excess, isValid, nil
}

func (o *Oracle) ExpiredPayoutRate(ctx context.Context, otoken common.Address) (*big.Int, error) {
	return o.calculator.callUint(ctx, "getExpiredPayoutRate", otoken)
}

func (o *Oracle) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	c := contract{address: token, abi: erc20ABI, caller: o.caller}
	return c.callUint(ctx, "balanceOf", owner)
}

func (o *Oracle) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	c := contract{address: token, abi: erc20ABI, caller: o.caller}
	return c.callUint(ctx, "allowance", owner, spender)
}

// packable replaces nil slices and nil amounts so the vault encodes cleanly
func packable(v protocol.Vault) protocol.Vault {
	fixAddrs := func(s []common.Address) []common.Address {
		if s == nil {
			return []common.Address{}
		}
		return s
	}
	fixAmounts := func(s []*big.Int) []*big.Int {
		out := make([]*big.Int, len(s))
		for i, a := range s {
			if a == nil {
				a = new(big.Int)
			}
			out[i] = a
		}
		return out
	}
	return protocol.Vault{
		ShortOtokens:      fixAddrs(v.ShortOtokens),
		LongOtokens:       fixAddrs(v.LongOtokens),
		CollateralAssets:  fixAddrs(v.CollateralAssets),
		ShortAmounts:      fixAmounts(v.ShortAmounts),
		LongAmounts:       fixAmounts(v.LongAmounts),
		CollateralAmounts: fixAmounts(v.CollateralAmounts),
	}
}

var _ protocol.Oracle = (*Oracle)(nil)
