package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

var ErrNoCode = errors.New("empty call result (no contract at address?)")

// Caller executes read-only contract calls. *ethclient.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// HeadReader returns the latest block number
type HeadReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// Backend is what Dial returns
type Backend interface {
	Caller
	HeadReader
	Close()
}

// Dial connects to a JSON-RPC endpoint
func Dial(ctx context.Context, url string) (Backend, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return client, nil
}

// WithCallTimeout bounds every CallContract made through c by d.
// A zero d returns c unchanged.
func WithCallTimeout(c Caller, d time.Duration) Caller {
	if d <= 0 {
		return c
	}
	return timeoutCaller{Caller: c, timeout: d}
}

type timeoutCaller struct {
	Caller
	timeout time.Duration
}

func (t timeoutCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.Caller.CallContract(ctx, msg, blockNumber)
}

type blockKey struct{}

// WithBlock pins every read made with ctx to block n
func WithBlock(ctx context.Context, n uint64) context.Context {
	return context.WithValue(ctx, blockKey{}, new(big.Int).SetUint64(n))
}

// BlockFrom returns the pinned block, or nil for latest
func BlockFrom(ctx context.Context) *big.Int {
	if n, ok := ctx.Value(blockKey{}).(*big.Int); ok {
		return new(big.Int).Set(n)
	}
	return nil
}

// PinHead pins ctx to the current head so one evaluation sees one chain state
func PinHead(ctx context.Context, head HeadReader) (context.Context, uint64, error) {
	n, err := head.BlockNumber(ctx)
	if err != nil {
		return ctx, 0, fmt.Errorf("block number: %w", err)
	}
	return WithBlock(ctx, n), n, nil
}

// contract binds an ABI to an address for view calls
type contract struct {
	address common.Address
	abi     abi.ABI
	caller  Caller
}

func (c contract) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	to := c.address
	out, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, BlockFrom(ctx))
	if err != nil {
		return nil, fmt.Errorf("%s on %s: %w", method, c.address.Hex(), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s on %s: %w", method, c.address.Hex(), ErrNoCode)
	}
	values, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

func (c contract) callBool(ctx context.Context, method string, args ...interface{}) (bool, error) {
	values, err := c.call(ctx, method, args...)
	if err != nil {
		return false, err
	}
	return *abi.ConvertType(values[0], new(bool)).(*bool), nil
}

func (c contract) callUint(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	values, err := c.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(values[0], new(big.Int)).(*big.Int), nil
}
