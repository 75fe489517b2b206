package stream

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/uhyunpark/autoredeem/pkg/keeper"
)

const DefaultStream = "autoredeem:batches"

var ErrNoAddr = errors.New("redis address is empty")

type Config struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	MaxLen   int64 // approximate cap on stream length; zero keeps everything
	Logger   *zap.SugaredLogger
}

// writer is the subset of the redis client the publisher needs
type writer interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// Publisher appends batch envelopes to a Redis stream
type Publisher struct {
	rdb    writer
	stream string
	maxLen int64
	log    *zap.SugaredLogger
}

func NewPublisher(ctx context.Context, cfg Config) (*Publisher, error) {
	if cfg.Addr == "" {
		return nil, ErrNoAddr
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	p := newPublisher(rdb, cfg)
	p.log.Infow("redis_ready", "addr", cfg.Addr, "stream", p.stream)
	return p, nil
}

func newPublisher(w writer, cfg Config) *Publisher {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.Stream == "" {
		cfg.Stream = DefaultStream
	}
	return &Publisher{rdb: w, stream: cfg.Stream, maxLen: cfg.MaxLen, log: cfg.Logger}
}

// Publish implements keeper.Publisher
func (p *Publisher) Publish(ctx context.Context, env keeper.Envelope) error {
	values, err := fields(env)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{Stream: p.stream, Values: values}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	id, err := p.rdb.XAdd(ctx, args).Result()
	if err != nil {
		return err
	}
	p.log.Debugw("stream_appended", "stream", p.stream, "id", id, "seq", env.Seq)
	return nil
}

func (p *Publisher) Close() error { return p.rdb.Close() }

// fields flattens an envelope into stream entry fields. The full envelope
// rides along as JSON so consumers need not rebuild it.
func fields(env keeper.Envelope) (map[string]any, error) {
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"seq":         strconv.FormatUint(env.Seq, 10),
		"block":       strconv.FormatUint(env.Block, 10),
		"can_execute": strconv.FormatBool(env.CanExecute),
		"digest":      env.Digest.Hex(),
		"instruction": env.Instruction.String(),
		"envelope":    string(raw),
	}, nil
}

var _ keeper.Publisher = (*Publisher)(nil)
