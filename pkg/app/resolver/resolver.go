package resolver

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/uhyunpark/autoredeem/pkg/app/order"
	"github.com/uhyunpark/autoredeem/pkg/app/protocol"
	"github.com/uhyunpark/autoredeem/pkg/app/quote"
)

const DefaultWorkers = 8

var (
	ErrBadQuote    = errors.New("quote returned wrong number of amounts")
	ErrOrderPanic  = errors.New("order evaluation panicked")
	ErrNoOracle    = errors.New("resolver has no oracle")
	ErrNoQuoteSrc  = errors.New("resolver has no quote provider")
	ErrNilStore    = errors.New("resolver has no order store")
	ErrZeroAddress = errors.New("redeemer address is zero")
)

// Options tunes a Resolver
type Options struct {
	// Redeemer is the contract the orders authorize (operator and otoken spender)
	Redeemer common.Address
	// Workers bounds concurrent per-order evaluations
	Workers int
	// OrderTimeout bounds the reads of a single order; zero means no bound
	OrderTimeout time.Duration
	Logger       *zap.SugaredLogger
}

// Resolver turns the current order book into the next executable batch.
// It holds no state between evaluations except its collaborators.
type Resolver struct {
	store order.Store
	opts  Options
	log   *zap.SugaredLogger

	mu     sync.RWMutex
	oracle protocol.Oracle
	quoter quote.Provider
}

// New creates a resolver over the given collaborators
func New(store order.Store, oracle protocol.Oracle, quoter quote.Provider, opts Options) (*Resolver, error) {
	switch {
	case store == nil:
		return nil, ErrNilStore
	case oracle == nil:
		return nil, ErrNoOracle
	case quoter == nil:
		return nil, ErrNoQuoteSrc
	case opts.Redeemer == (common.Address{}):
		return nil, ErrZeroAddress
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Resolver{
		store:  store,
		opts:   opts,
		log:    log,
		oracle: oracle,
		quoter: quoter,
	}, nil
}

// Reconfigure swaps the oracle and quote provider. A nil argument keeps the
// current one. Evaluations already running finish with what they started with.
func (r *Resolver) Reconfigure(oracle protocol.Oracle, quoter quote.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if oracle != nil {
		r.oracle = oracle
	}
	if quoter != nil {
		r.quoter = quoter
	}
	r.log.Infow("resolver_reconfigured",
		"oracle_replaced", oracle != nil,
		"quoter_replaced", quoter != nil,
	)
}

// Redeemer returns the contract address the resolver evaluates against
func (r *Resolver) Redeemer() common.Address { return r.opts.Redeemer }

// Store returns the order source
func (r *Resolver) Store() order.Store { return r.store }

// evaluation pins one set of collaborators for the duration of a call
type evaluation struct {
	store    order.Store
	oracle   protocol.Oracle
	quoter   quote.Provider
	redeemer common.Address
	workers  int
	timeout  time.Duration
}

func (r *Resolver) snapshot() *evaluation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return &evaluation{
		store:    r.store,
		oracle:   r.oracle,
		quoter:   r.quoter,
		redeemer: r.opts.Redeemer,
		workers:  r.opts.Workers,
		timeout:  r.opts.OrderTimeout,
	}
}

// Resolve evaluates the whole order book and returns whether there is work
// plus the encoded processOrders call. It always returns a decodable payload.
func (r *Resolver) Resolve(ctx context.Context) (bool, []byte) {
	batch := r.Evaluate(ctx)
	payload, err := EncodeInstruction(batch)
	if err != nil {
		r.log.Errorw("instruction_encode_failed", "orders", len(batch.Orders), "err", err)
		return false, emptyInstruction()
	}
	return batch.CanExecute, payload
}

// Evaluate reads all orders from the store and plans a batch.
// A failed store read yields an empty batch.
func (r *Resolver) Evaluate(ctx context.Context) Batch {
	orders, err := r.store.GetOrders(ctx)
	if err != nil {
		r.log.Warnw("order_fetch_failed", "err", err, "transient", protocol.IsTransient(err))
		return Batch{}
	}
	return r.Plan(ctx, orders)
}

// Plan builds a batch from orders. The earliest order id wins a position
// when several orders target the same key.
func (r *Resolver) Plan(ctx context.Context, orders []order.Order) Batch {
	ev := r.snapshot()
	start := time.Now()

	sorted := make([]order.Order, len(orders))
	copy(sorted, orders)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	checks := make([]Outcome, len(sorted))
	errs := ev.each(ctx, len(sorted), func(ctx context.Context, i int) error {
		checks[i] = ev.check(ctx, sorted[i])
		return nil
	})

	batch := Batch{Evaluated: len(sorted)}
	keys := order.NewKeySet()
	accepted := make([]order.Order, 0, len(sorted))
	for i, o := range sorted {
		out := checks[i]
		if errs[i] != nil {
			out = Outcome{Verdict: Ineligible, Reason: ReasonInternal, Err: errs[i]}
		}
		if !out.OK() {
			batch.reject(o.ID, out)
			continue
		}
		if HasConflict(o, keys) {
			batch.reject(o.ID, ineligible(ReasonDuplicate))
			continue
		}
		keys.Add(order.KeyOf(o))
		accepted = append(accepted, o)
	}

	hints := make([]*SwapHint, len(accepted))
	quoteErrs := ev.each(ctx, len(accepted), func(ctx context.Context, i int) error {
		if !accepted[i].WantsSwap() {
			return nil
		}
		hint, err := ev.swapHint(ctx, accepted[i])
		hints[i] = hint
		return err
	})
	for i, o := range accepted {
		if quoteErrs[i] != nil {
			batch.reject(o.ID, failed(ReasonConversion, quoteErrs[i]))
			continue
		}
		batch.Orders = append(batch.Orders, Planned{OrderID: o.ID, Key: order.KeyOf(o), Swap: hints[i]})
	}
	batch.seal()

	for _, rej := range batch.Rejections {
		r.log.Debugw("order_rejected",
			"order_id", rej.OrderID,
			"verdict", rej.Outcome.Verdict.String(),
			"reason", rej.Outcome.Reason,
			"transient", rej.Outcome.Transient(),
			"err", rej.Outcome.Err,
		)
	}
	r.log.Debugw("batch_planned",
		"evaluated", batch.Evaluated,
		"accepted", len(batch.Orders),
		"rejected", len(batch.Rejections),
		"transient", batch.Transient(),
		"elapsed", time.Since(start),
	)
	return batch
}

// Eligibility checks a single order with the current collaborators
func (r *Resolver) Eligibility(ctx context.Context, o order.Order) Outcome {
	ev := r.snapshot()
	var out Outcome
	if err := ev.isolate(ctx, func(ctx context.Context) error {
		out = ev.eligibility(ctx, o)
		return nil
	}); err != nil {
		return Outcome{Verdict: Ineligible, Reason: ReasonInternal, Err: err}
	}
	return out
}

// Payout returns the asset and amount o would pay out right now, before fees
func (r *Resolver) Payout(ctx context.Context, o order.Order) (common.Address, *big.Int, error) {
	if err := o.Validate(); err != nil {
		return common.Address{}, nil, err
	}
	return r.snapshot().payout(ctx, o)
}

// CanProcess returns true if the stored order id is eligible right now
func (r *Resolver) CanProcess(ctx context.Context, id uint64) bool {
	o, err := r.store.GetOrder(ctx, id)
	if err != nil {
		r.log.Debugw("order_lookup_failed", "order_id", id, "err", err)
		return false
	}
	return r.Eligibility(ctx, o).OK()
}

// PayoutOf is Payout for a stored order id
func (r *Resolver) PayoutOf(ctx context.Context, id uint64) (common.Address, *big.Int, error) {
	o, err := r.store.GetOrder(ctx, id)
	if err != nil {
		return common.Address{}, nil, err
	}
	return r.Payout(ctx, o)
}

// check runs the attempt gate then the eligibility rules for one order
func (e *evaluation) check(ctx context.Context, o order.Order) Outcome {
	attempt, err := e.store.ShouldAttempt(ctx, o.ID)
	if err != nil {
		return failed(ReasonStore, err)
	}
	if !attempt {
		return ineligible(ReasonNotAttempted)
	}
	return e.eligibility(ctx, o)
}

func (e *evaluation) swapHint(ctx context.Context, o order.Order) (*SwapHint, error) {
	asset, amount, err := e.payout(ctx, o)
	if err != nil {
		return nil, err
	}
	adjusted := ApplyFee(amount, o.FeeBps)
	path := quote.Path(asset, o.ToToken)
	amounts, err := e.quoter.AmountsOut(ctx, adjusted, path)
	if err != nil {
		return nil, fmt.Errorf("amounts out: %w", err)
	}
	if len(amounts) != len(path) || amounts[len(amounts)-1] == nil {
		return nil, fmt.Errorf("%w: got %d for path of %d", ErrBadQuote, len(amounts), len(path))
	}
	return &SwapHint{
		PayoutAsset: asset,
		AmountIn:    adjusted,
		MinOutput:   new(big.Int).Set(amounts[len(amounts)-1]),
		Path:        path,
	}, nil
}

// each runs fn for every index in [0, n) on the bounded worker pool and
// returns the per-index error. Work for one index never cancels another.
func (e *evaluation) each(ctx context.Context, n int, fn func(ctx context.Context, i int) error) []error {
	errs := make([]error, n)
	var g errgroup.Group
	g.SetLimit(e.workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			errs[i] = e.isolate(ctx, func(ctx context.Context) error { return fn(ctx, i) })
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// isolate applies the per-order timeout and turns a panic into an error
func (e *evaluation) isolate(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrOrderPanic, p)
		}
	}()
	return fn(ctx)
}
