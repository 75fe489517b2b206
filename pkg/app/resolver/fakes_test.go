package resolver

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/autoredeem/pkg/app/protocol"
)

var errReverted = errors.New("execution reverted")

type vaultRef struct {
	owner common.Address
	id    string
}

func ref(owner common.Address, id *big.Int) vaultRef {
	return vaultRef{owner: owner, id: id.String()}
}

type allowanceRef struct {
	token, owner, spender common.Address
}

type balanceRef struct {
	token, owner common.Address
}

// fakeOracle answers from maps. Missing entries read as false/zero.
type fakeOracle struct {
	mu sync.Mutex

	vaults    map[vaultRef]protocol.VaultSnapshot
	operators map[common.Address]common.Address // owner -> operator
	excess    map[vaultRef]*big.Int
	invalid   map[vaultRef]bool // vault fails margin validation
	byUpdate  map[string]vaultRef

	expired    map[common.Address]bool
	settleable map[common.Address]bool
	details    map[common.Address]protocol.OtokenDetails
	rates      map[common.Address]*big.Int
	balances   map[balanceRef]*big.Int
	allowances map[allowanceRef]*big.Int

	// failures keyed by owner, returned from IsValidVault
	vaultErr map[common.Address]error
	// failures keyed by otoken, returned from HasExpired
	expiryErr map[common.Address]error
	panicOn   map[common.Address]bool

	calls int
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{
		vaults:     map[vaultRef]protocol.VaultSnapshot{},
		operators:  map[common.Address]common.Address{},
		excess:     map[vaultRef]*big.Int{},
		invalid:    map[vaultRef]bool{},
		byUpdate:   map[string]vaultRef{},
		expired:    map[common.Address]bool{},
		settleable: map[common.Address]bool{},
		details:    map[common.Address]protocol.OtokenDetails{},
		rates:      map[common.Address]*big.Int{},
		balances:   map[balanceRef]*big.Int{},
		allowances: map[allowanceRef]*big.Int{},
		vaultErr:   map[common.Address]error{},
		expiryErr:  map[common.Address]error{},
		panicOn:    map[common.Address]bool{},
	}
}

func (f *fakeOracle) touch() {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
}

// settle marks an otoken as expired with a final price
func (f *fakeOracle) settle(otoken common.Address) {
	f.expired[otoken] = true
	f.settleable[otoken] = true
}

// addVault registers a healthy vault with an authorized operator
func (f *fakeOracle) addVault(owner common.Address, id int64, operator common.Address, v protocol.Vault, excess int64) {
	r := ref(owner, big.NewInt(id))
	// LatestUpdate doubles as the vault identity for ExcessCollateral lookups
	update := big.NewInt(int64(len(f.vaults) + 1))
	f.vaults[r] = protocol.VaultSnapshot{Vault: v, VaultType: big.NewInt(0), LatestUpdate: update}
	f.byUpdate[update.String()] = r
	f.excess[r] = big.NewInt(excess)
	f.operators[owner] = operator
}

func (f *fakeOracle) IsValidVault(_ context.Context, owner common.Address, vaultID *big.Int) (bool, error) {
	f.touch()
	if f.panicOn[owner] {
		panic("boom")
	}
	if err := f.vaultErr[owner]; err != nil {
		return false, err
	}
	_, ok := f.vaults[ref(owner, vaultID)]
	return ok, nil
}

func (f *fakeOracle) IsOperator(_ context.Context, owner, operator common.Address) (bool, error) {
	f.touch()
	return f.operators[owner] == operator, nil
}

func (f *fakeOracle) Vault(_ context.Context, owner common.Address, vaultID *big.Int) (protocol.VaultSnapshot, error) {
	f.touch()
	v, ok := f.vaults[ref(owner, vaultID)]
	if !ok {
		return protocol.VaultSnapshot{}, errReverted
	}
	return v, nil
}

func (f *fakeOracle) OtokenDetails(_ context.Context, otoken common.Address) (protocol.OtokenDetails, error) {
	f.touch()
	d, ok := f.details[otoken]
	if !ok {
		return protocol.OtokenDetails{}, errReverted
	}
	return d, nil
}

func (f *fakeOracle) HasExpired(ctx context.Context, otoken common.Address) (bool, error) {
	f.touch()
	if err := f.expiryErr[otoken]; err != nil {
		return false, err
	}
	return f.expired[otoken], nil
}

func (f *fakeOracle) IsSettlementAllowed(_ context.Context, otoken common.Address) (bool, error) {
	f.touch()
	return f.settleable[otoken], nil
}

func (f *fakeOracle) ExcessCollateral(_ context.Context, snap protocol.VaultSnapshot) (*big.Int, bool, error) {
	f.touch()
	r, ok := f.byUpdate[snap.LatestUpdate.String()]
	if !ok {
		return nil, false, errReverted
	}
	return f.excess[r], !f.invalid[r], nil
}

func (f *fakeOracle) ExpiredPayoutRate(_ context.Context, otoken common.Address) (*big.Int, error) {
	f.touch()
	r, ok := f.rates[otoken]
	if !ok {
		return nil, errReverted
	}
	return r, nil
}

func (f *fakeOracle) BalanceOf(_ context.Context, token, owner common.Address) (*big.Int, error) {
	f.touch()
	if b, ok := f.balances[balanceRef{token, owner}]; ok {
		return b, nil
	}
	return new(big.Int), nil
}

func (f *fakeOracle) Allowance(_ context.Context, token, owner, spender common.Address) (*big.Int, error) {
	f.touch()
	if a, ok := f.allowances[allowanceRef{token, owner, spender}]; ok {
		return a, nil
	}
	return new(big.Int), nil
}

var _ protocol.Oracle = (*fakeOracle)(nil)

type quoteCall struct {
	amountIn *big.Int
	path     []common.Address
}

// fakeQuoter multiplies the input by rate/100 and records every call
type fakeQuoter struct {
	mu    sync.Mutex
	rate  int64
	fail  map[common.Address]error // keyed by path[0]
	calls []quoteCall
}

func newFakeQuoter(rate int64) *fakeQuoter {
	return &fakeQuoter{rate: rate, fail: map[common.Address]error{}}
}

func (q *fakeQuoter) AmountsOut(_ context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls = append(q.calls, quoteCall{amountIn: new(big.Int).Set(amountIn), path: path})
	if err := q.fail[path[0]]; err != nil {
		return nil, err
	}
	out := new(big.Int).Mul(amountIn, big.NewInt(q.rate))
	out.Quo(out, big.NewInt(100))
	return []*big.Int{new(big.Int).Set(amountIn), out}, nil
}

// netTimeout satisfies net.Error so it classifies as transient
type netTimeout struct{}

func (netTimeout) Error() string   { return "i/o timeout" }
func (netTimeout) Timeout() bool   { return true }
func (netTimeout) Temporary() bool { return true }
