package keeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/autoredeem/pkg/app/resolver"
)

// Evaluator plans the next batch from the live order book
type Evaluator interface {
	Evaluate(ctx context.Context) resolver.Batch
}

// Signer signs batch envelopes
type Signer interface {
	SignBatch(seq, block uint64, instructionHash common.Hash) ([]byte, error)
	Address() common.Address
}

// Publisher delivers envelopes to executors
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

// History stores published envelopes
type History interface {
	SaveBatch(env Envelope) error
	LoadRecentBatches(limit int) ([]Envelope, error)
	LastBatchSeq() (uint64, bool, error)
	PruneBatches(keep int) error
}

// Journal receives one line per published envelope
type Journal interface {
	Append(line string)
}

// PinFunc pins ctx to a block so all reads of one evaluation see one state
type PinFunc func(ctx context.Context) (context.Context, uint64, error)

type Config struct {
	Interval     time.Duration // time between evaluations
	EvalTimeout  time.Duration // bound on one whole evaluation; zero means none
	HistoryLimit int           // envelopes kept in history; zero keeps all
}

func DefaultConfig() Config {
	return Config{
		Interval:     15 * time.Second,
		EvalTimeout:  10 * time.Second,
		HistoryLimit: 1000,
	}
}

// Options carries the optional collaborators of a Keeper
type Options struct {
	Signer     Signer
	History    History
	Journal    Journal
	Pin        PinFunc
	Publishers []Publisher
	Logger     *zap.SugaredLogger
	Now        func() time.Time
}

// Keeper re-evaluates the order book on a timer and publishes every batch
// whose instruction differs from the last one published.
type Keeper struct {
	cfg  Config
	eval Evaluator
	opts Options
	log  *zap.SugaredLogger

	mu        sync.Mutex
	seq       uint64
	last      *Envelope // last published
	latest    resolver.Batch
	hooks     []func(Envelope)
	evaluated uint64
}

func New(cfg Config, eval Evaluator, opts Options) (*Keeper, error) {
	if eval == nil {
		return nil, errors.New("keeper needs an evaluator")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	k := &Keeper{cfg: cfg, eval: eval, opts: opts, log: opts.Logger}
	if opts.History != nil {
		seq, ok, err := opts.History.LastBatchSeq()
		if err != nil {
			return nil, fmt.Errorf("read batch history: %w", err)
		}
		if ok {
			k.seq = seq
			if recent, err := opts.History.LoadRecentBatches(1); err == nil && len(recent) == 1 {
				k.last = &recent[0]
			}
		}
	}
	return k, nil
}

// OnBatch registers a hook called after each publication
func (k *Keeper) OnBatch(fn func(Envelope)) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.hooks = append(k.hooks, fn)
}

// Last returns the last published envelope
func (k *Keeper) Last() (Envelope, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.last == nil {
		return Envelope{}, false
	}
	return *k.last, true
}

// Latest returns the most recent evaluation, published or not
func (k *Keeper) Latest() resolver.Batch {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.latest
}

// Run evaluates immediately, then every Interval until ctx is done
func (k *Keeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(k.cfg.Interval)
	defer ticker.Stop()

	k.log.Infow("keeper_started", "interval", k.cfg.Interval, "eval_timeout", k.cfg.EvalTimeout, "seq", k.seq)
	for {
		if _, _, err := k.Tick(ctx); err != nil && ctx.Err() == nil {
			k.log.Warnw("tick_failed", "err", err)
		}
		select {
		case <-ctx.Done():
			k.log.Infow("keeper_stopped", "evaluations", k.evaluations(), "seq", k.currentSeq())
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs one evaluation. It returns the envelope for the current
// instruction and whether this call published it.
func (k *Keeper) Tick(ctx context.Context) (Envelope, bool, error) {
	if k.cfg.EvalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, k.cfg.EvalTimeout)
		defer cancel()
	}

	var block uint64
	if k.opts.Pin != nil {
		pinned, n, err := k.opts.Pin(ctx)
		if err != nil {
			k.log.Warnw("block_pin_failed", "err", err)
		} else {
			ctx, block = pinned, n
		}
	}

	start := k.opts.Now()
	batch := k.eval.Evaluate(ctx)
	instruction, err := resolver.EncodeInstruction(batch)
	if err != nil {
		return Envelope{}, false, fmt.Errorf("encode instruction: %w", err)
	}
	digest := Digest(instruction)

	k.mu.Lock()
	k.latest = batch
	k.evaluated++
	if k.last != nil && k.last.Digest == digest {
		env := *k.last
		k.mu.Unlock()
		k.log.Debugw("batch_unchanged", "seq", env.Seq, "orders", len(batch.Orders), "rejected", len(batch.Rejections))
		return env, false, nil
	}
	seq := k.seq + 1
	k.mu.Unlock()

	env := Envelope{
		Seq:         seq,
		Timestamp:   start.UnixMilli(),
		Block:       block,
		CanExecute:  batch.CanExecute,
		OrderIDs:    batch.OrderIDs(),
		Rejected:    len(batch.Rejections),
		Instruction: instruction,
		Digest:      digest,
	}
	if s := k.opts.Signer; s != nil {
		sig, err := s.SignBatch(env.Seq, env.Block, env.Digest)
		if err != nil {
			return Envelope{}, false, fmt.Errorf("sign batch %d: %w", seq, err)
		}
		env.Signature = sig
		env.Signer = s.Address()
	}

	if err := k.publish(ctx, env); err != nil {
		return env, false, err
	}

	k.mu.Lock()
	k.seq = seq
	k.last = &env
	hooks := append([]func(Envelope){}, k.hooks...)
	k.mu.Unlock()

	k.record(env)
	for _, fn := range hooks {
		fn(env)
	}
	k.log.Infow("batch_published",
		"seq", env.Seq,
		"can_execute", env.CanExecute,
		"orders", len(env.OrderIDs),
		"rejected", env.Rejected,
		"transient", batch.Transient(),
		"block", env.Block,
		"digest", env.Digest.Hex(),
	)
	return env, true, nil
}

// publish sends env to every sink. The batch counts as published only when
// all sinks accepted it; otherwise the next tick retries.
func (k *Keeper) publish(ctx context.Context, env Envelope) error {
	var errs []error
	for i, p := range k.opts.Publishers {
		if err := p.Publish(ctx, env); err != nil {
			k.log.Warnw("publish_failed", "sink", i, "seq", env.Seq, "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (k *Keeper) record(env Envelope) {
	if h := k.opts.History; h != nil {
		if err := h.SaveBatch(env); err != nil {
			k.log.Warnw("history_save_failed", "seq", env.Seq, "err", err)
		} else if k.cfg.HistoryLimit > 0 {
			if err := h.PruneBatches(k.cfg.HistoryLimit); err != nil {
				k.log.Warnw("history_prune_failed", "err", err)
			}
		}
	}
	if j := k.opts.Journal; j != nil {
		j.Append(fmt.Sprintf("%s %s %s", time.UnixMilli(env.Timestamp).UTC().Format(time.RFC3339), env, env.Instruction))
	}
}

// Close closes every publisher
func (k *Keeper) Close() error {
	var errs []error
	for _, p := range k.opts.Publishers {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}

func (k *Keeper) evaluations() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.evaluated
}

func (k *Keeper) currentSeq() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.seq
}
