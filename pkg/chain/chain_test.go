package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/autoredeem/pkg/app/order"
	"github.com/uhyunpark/autoredeem/pkg/app/protocol"
)

type handler func(args []interface{}) ([]interface{}, error)

type endpoint struct {
	abi      abi.ABI
	handlers map[string]handler
}

// fakeNode answers eth_call by decoding the input with the contract ABI
// and encoding whatever the registered handler returns
type fakeNode struct {
	mu        sync.Mutex
	contracts map[common.Address]*endpoint
	blocks    []*big.Int
	head      uint64
}

func newFakeNode() *fakeNode {
	return &fakeNode{contracts: map[common.Address]*endpoint{}}
}

func (n *fakeNode) on(addr common.Address, a abi.ABI, method string, h handler) {
	ep, ok := n.contracts[addr]
	if !ok {
		ep = &endpoint{abi: a, handlers: map[string]handler{}}
		n.contracts[addr] = ep
	}
	ep.handlers[method] = h
}

func (n *fakeNode) CallContract(_ context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	n.mu.Lock()
	n.blocks = append(n.blocks, block)
	n.mu.Unlock()

	ep, ok := n.contracts[*msg.To]
	if !ok {
		return nil, nil
	}
	method, err := ep.abi.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	h, ok := ep.handlers[method.Name]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}
	out, err := h(args)
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(out...)
}

func (n *fakeNode) BlockNumber(context.Context) (uint64, error) { return n.head, nil }

func returns(values ...interface{}) handler {
	return func([]interface{}) ([]interface{}, error) { return values, nil }
}

var (
	controller = common.HexToAddress("0x4ccc2339f87f6c59c6893e1a678c2266ca58dc72")
	calculator = common.HexToAddress("0xcfa6fc4ac1fc2c1b7d1bb5a4c14fb1f4a5e4a1c4")
	router     = common.HexToAddress("0x7a250d5630b4cf539739df2c5dacb4c659f2488d")
	redeemer   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	owner      = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	otoken     = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	usdc       = common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	weth       = common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
)

func TestOracle_Vault(t *testing.T) {
	node := newFakeNode()
	vault := protocol.Vault{
		ShortOtokens:      []common.Address{otoken},
		LongOtokens:       []common.Address{},
		CollateralAssets:  []common.Address{usdc},
		ShortAmounts:      []*big.Int{big.NewInt(100)},
		LongAmounts:       []*big.Int{},
		CollateralAmounts: []*big.Int{big.NewInt(5_000)},
	}
	node.on(controller, controllerABI, "getVaultWithDetails", func(args []interface{}) ([]interface{}, error) {
		assert.Equal(t, owner, args[0])
		assert.Equal(t, int64(3), args[1].(*big.Int).Int64())
		return []interface{}{vault, big.NewInt(1), big.NewInt(1_700_000_000)}, nil
	})
	node.on(calculator, calculatorABI, "getExcessCollateral", func(args []interface{}) ([]interface{}, error) {
		got := *abi.ConvertType(args[0], new(protocol.Vault)).(*protocol.Vault)
		assert.Equal(t, vault.ShortOtokens, got.ShortOtokens)
		assert.Equal(t, int64(1), args[1].(*big.Int).Int64())
		return []interface{}{big.NewInt(4_200), true}, nil
	})

	o := NewOracle(node, Addresses{Controller: controller, Calculator: calculator})
	ctx := context.Background()

	snap, err := o.Vault(ctx, owner, big.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, []common.Address{otoken}, snap.ShortOtokens)
	assert.Equal(t, []common.Address{usdc}, snap.CollateralAssets)
	assert.Equal(t, int64(1), snap.VaultType.Int64())
	assert.Equal(t, int64(1_700_000_000), snap.LatestUpdate.Int64())

	excess, valid, err := o.ExcessCollateral(ctx, snap)
	require.NoError(t, err)
	assert.True(t, valid)
	assert.Equal(t, int64(4_200), excess.Int64())
}

func TestOracle_IsValidVault(t *testing.T) {
	node := newFakeNode()
	node.on(controller, controllerABI, "getAccountVaultCounter", returns(big.NewInt(2)))
	o := NewOracle(node, Addresses{Controller: controller, Calculator: calculator})
	ctx := context.Background()

	tests := []struct {
		id   int64
		want bool
	}{
		{0, false},
		{1, true},
		{2, true},
		{3, false},
	}
	for _, tt := range tests {
		got, err := o.IsValidVault(ctx, owner, big.NewInt(tt.id))
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "vault %d", tt.id)
	}
}

func TestOracle_Otoken(t *testing.T) {
	node := newFakeNode()
	node.on(otoken, otokenABI, "getOtokenDetails", returns(usdc, weth, usdc, big.NewInt(2_000_00000000), big.NewInt(1_700_000_000), true))
	node.on(controller, controllerABI, "hasExpired", returns(true))
	node.on(controller, controllerABI, "isSettlementAllowed", returns(false))
	node.on(calculator, calculatorABI, "getExpiredPayoutRate", returns(big.NewInt(150_000_000)))

	o := NewOracle(node, Addresses{Controller: controller, Calculator: calculator})
	ctx := context.Background()

	details, err := o.OtokenDetails(ctx, otoken)
	require.NoError(t, err)
	assert.Equal(t, usdc, details.Collateral)
	assert.Equal(t, weth, details.Underlying)
	assert.True(t, details.IsPut)

	expired, err := o.HasExpired(ctx, otoken)
	require.NoError(t, err)
	assert.True(t, expired)

	allowed, err := o.IsSettlementAllowed(ctx, otoken)
	require.NoError(t, err)
	assert.False(t, allowed)

	rate, err := o.ExpiredPayoutRate(ctx, otoken)
	require.NoError(t, err)
	assert.Equal(t, int64(150_000_000), rate.Int64())
}

func TestOracle_ERC20(t *testing.T) {
	node := newFakeNode()
	node.on(usdc, erc20ABI, "balanceOf", returns(big.NewInt(500)))
	node.on(usdc, erc20ABI, "allowance", func(args []interface{}) ([]interface{}, error) {
		assert.Equal(t, redeemer, args[1])
		return []interface{}{big.NewInt(50)}, nil
	})

	o := NewOracle(node, Addresses{Controller: controller, Calculator: calculator})
	ctx := context.Background()

	bal, err := o.BalanceOf(ctx, usdc, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(500), bal.Int64())

	allowance, err := o.Allowance(ctx, usdc, owner, redeemer)
	require.NoError(t, err)
	assert.Equal(t, int64(50), allowance.Int64())
}

func TestOracle_NoCode(t *testing.T) {
	o := NewOracle(newFakeNode(), Addresses{Controller: controller, Calculator: calculator})
	_, err := o.HasExpired(context.Background(), otoken)
	assert.ErrorIs(t, err, ErrNoCode)
}

func TestRouter_AmountsOut(t *testing.T) {
	node := newFakeNode()
	node.on(router, routerABI, "getAmountsOut", func(args []interface{}) ([]interface{}, error) {
		in := args[0].(*big.Int)
		path := args[1].([]common.Address)
		require.Len(t, path, 2)
		return []interface{}{[]*big.Int{in, new(big.Int).Mul(in, big.NewInt(2))}}, nil
	})

	amounts, err := NewRouter(node, router).AmountsOut(context.Background(), big.NewInt(495), []common.Address{usdc, weth})
	require.NoError(t, err)
	require.Len(t, amounts, 2)
	assert.Equal(t, int64(990), amounts[1].Int64())
}

func TestRedeemer_Orders(t *testing.T) {
	node := newFakeNode()
	book := []orderTuple{
		{Owner: owner, Otoken: otoken, Amount: big.NewInt(0), VaultId: big.NewInt(3), IsSeller: true, Fee: big.NewInt(0)},
		{Owner: owner, Otoken: otoken, Amount: big.NewInt(500), VaultId: big.NewInt(0), ToToken: weth, Fee: big.NewInt(100), Finished: true},
	}
	node.on(redeemer, redeemerABI, "getOrders", returns(book))
	node.on(redeemer, redeemerABI, "getOrder", func(args []interface{}) ([]interface{}, error) {
		id := args[0].(*big.Int).Int64()
		if id >= int64(len(book)) {
			return []interface{}{orderTuple{Amount: new(big.Int), VaultId: new(big.Int), Fee: new(big.Int)}}, nil
		}
		return []interface{}{book[id]}, nil
	})
	node.on(redeemer, redeemerABI, "shouldProcessOrder", func(args []interface{}) ([]interface{}, error) {
		return []interface{}{!book[args[0].(*big.Int).Int64()].Finished}, nil
	})

	r := NewRedeemer(node, redeemer)
	ctx := context.Background()

	orders, err := r.GetOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 2)

	assert.Equal(t, uint64(0), orders[0].ID)
	assert.Equal(t, order.Seller, orders[0].Role)
	assert.Equal(t, int64(3), orders[0].VaultID.Int64())
	assert.NoError(t, orders[0].Validate())

	assert.Equal(t, uint64(1), orders[1].ID)
	assert.Equal(t, order.Buyer, orders[1].Role)
	assert.Equal(t, otoken, orders[1].Otoken)
	assert.Equal(t, uint64(100), orders[1].FeeBps)
	assert.True(t, orders[1].WantsSwap())

	one, err := r.GetOrder(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, orders[1], one)

	_, err = r.GetOrder(ctx, 5)
	assert.ErrorIs(t, err, order.ErrNotFound)

	attempt, err := r.ShouldAttempt(ctx, 0)
	require.NoError(t, err)
	assert.True(t, attempt)
	attempt, err = r.ShouldAttempt(ctx, 1)
	require.NoError(t, err)
	assert.False(t, attempt)
}

func TestOrderTuple_OversizedFee(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 80)
	o := orderTuple{Owner: owner, Otoken: otoken, Fee: huge}.toOrder(0)
	assert.ErrorIs(t, o.Validate(), order.ErrInvalidFee)
}

func TestWithBlock(t *testing.T) {
	assert.Nil(t, BlockFrom(context.Background()))

	node := newFakeNode()
	node.head = 19_000_000
	node.on(controller, controllerABI, "hasExpired", returns(true))

	ctx, n, err := PinHead(context.Background(), node)
	require.NoError(t, err)
	assert.Equal(t, uint64(19_000_000), n)

	o := NewOracle(node, Addresses{Controller: controller, Calculator: calculator})
	_, err = o.HasExpired(ctx, otoken)
	require.NoError(t, err)
	_, err = o.HasExpired(context.Background(), otoken)
	require.NoError(t, err)

	require.Len(t, node.blocks, 2)
	assert.Equal(t, int64(19_000_000), node.blocks[0].Int64())
	assert.Nil(t, node.blocks[1])
}

func TestRedeemerABI_OrderTuple(t *testing.T) {
	for _, method := range []string{"getOrder", "getOrders"} {
		m, ok := redeemerABI.Methods[method]
		require.True(t, ok, method)
		require.Len(t, m.Outputs, 1)
		elem := m.Outputs[0].Type
		if elem.Elem != nil {
			elem = *elem.Elem
		}
		assert.Len(t, elem.TupleElems, 8, method)
	}
}

// blockingCaller returns only when ctx is done
type blockingCaller struct{}

func (blockingCaller) CallContract(ctx context.Context, _ ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestWithCallTimeout(t *testing.T) {
	assert.Equal(t, Caller(blockingCaller{}), WithCallTimeout(blockingCaller{}, 0))

	o := NewOracle(WithCallTimeout(blockingCaller{}, 20*time.Millisecond), Addresses{Controller: controller})
	start := time.Now()
	_, err := o.HasExpired(context.Background(), otoken)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.True(t, protocol.IsTransient(err))
}
