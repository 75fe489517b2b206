package main

import (
	"context"
	"flag"
	"log"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/autoredeem/params"
	"github.com/uhyunpark/autoredeem/pkg/api"
	"github.com/uhyunpark/autoredeem/pkg/app/order"
	"github.com/uhyunpark/autoredeem/pkg/app/resolver"
	"github.com/uhyunpark/autoredeem/pkg/chain"
	"github.com/uhyunpark/autoredeem/pkg/crypto"
	"github.com/uhyunpark/autoredeem/pkg/keeper"
	"github.com/uhyunpark/autoredeem/pkg/p2p"
	"github.com/uhyunpark/autoredeem/pkg/storage"
	"github.com/uhyunpark/autoredeem/pkg/stream"
	"github.com/uhyunpark/autoredeem/pkg/util"
)

func main() {
	envPath := flag.String("env", "", "path to .env file (default: ./.env)")
	flag.Parse()

	cfg, err := params.LoadFromEnv(*envPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var logger *zap.Logger
	if cfg.Log.File != "" {
		logger, err = util.NewLoggerWithFile(cfg.Log.File, cfg.Log.Level)
	} else {
		logger, err = util.NewLogger(cfg.Log.Level)
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	if err := cfg.Validate(); err != nil {
		sugar.Fatalw("config_invalid", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *envPath, sugar); err != nil {
		sugar.Errorw("keeper_exit", "err", err)
		logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg params.Config, envPath string, sugar *zap.SugaredLogger) error {
	backend, err := chain.Dial(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return err
	}
	defer backend.Close()

	db, err := storage.NewPebbleStore(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	var store order.Store
	switch cfg.Storage.OrderSource {
	case params.SourceLocal:
		store = storage.NewLocal(db)
	default:
		caller := chain.WithCallTimeout(backend, cfg.Chain.CallTimeout)
		store = storage.NewMirror(chain.NewRedeemer(caller, cfg.Chain.Redeemer), db, sugar)
	}

	oracle, router := collaborators(backend, cfg)
	res, err := resolver.New(store, oracle, router, resolver.Options{
		Redeemer:     cfg.Chain.Redeemer,
		Workers:      cfg.Resolver.Workers,
		OrderTimeout: cfg.Resolver.OrderTimeout,
		Logger:       sugar,
	})
	if err != nil {
		return err
	}

	publishers, err := sinks(ctx, cfg, sugar)
	if err != nil {
		return err
	}

	var journal keeper.Journal = storage.NewNopJournal()
	if cfg.Storage.Journal != "" {
		fj, err := storage.NewFileJournal(cfg.Storage.Journal)
		if err != nil {
			return err
		}
		defer fj.Close()
		journal = fj
	}

	opts := keeper.Options{
		History:    db,
		Journal:    journal,
		Publishers: publishers,
		Logger:     sugar,
	}
	if cfg.Keeper.PinHead {
		opts.Pin = func(ctx context.Context) (context.Context, uint64, error) {
			return chain.PinHead(ctx, backend)
		}
	}
	if cfg.Signer.PrivateKey != "" {
		key, err := crypto.FromPrivateKeyHex(cfg.Signer.PrivateKey)
		if err != nil {
			return err
		}
		domain := crypto.DefaultDomain(big.NewInt(cfg.Chain.ChainID), cfg.Chain.Redeemer)
		opts.Signer = crypto.NewBatchSigner(key, domain)
		sugar.Infow("signer_loaded", "address", key.Address().Hex())
	} else {
		sugar.Warn("signer_missing - publishing unsigned envelopes")
	}

	k, err := keeper.New(keeper.Config{
		Interval:     cfg.Keeper.Interval,
		EvalTimeout:  cfg.Keeper.EvalTimeout,
		HistoryLimit: cfg.Storage.HistoryLimit,
	}, res, opts)
	if err != nil {
		return err
	}
	defer k.Close()

	if cfg.API.Enabled {
		srv := api.NewServer(res, db, api.Options{
			AllowedOrigins: cfg.API.AllowedOrigins,
			RequestTimeout: cfg.API.RequestTimeout,
			Logger:         sugar,
		})
		k.OnBatch(srv.BroadcastBatch)
		go func() {
			if err := srv.Start(ctx, cfg.API.Addr); err != nil {
				sugar.Errorw("api_failed", "err", err)
			}
		}()
	}

	go reloadOnHangup(ctx, envPath, cfg, res, sugar)

	sugar.Infow("keeper_config",
		"redeemer", cfg.Chain.Redeemer.Hex(),
		"order_source", cfg.Storage.OrderSource,
		"workers", cfg.Resolver.Workers,
		"sinks", len(publishers),
		"pin_head", cfg.Keeper.PinHead,
	)
	return k.Run(ctx)
}

func collaborators(backend chain.Caller, cfg params.Config) (*chain.Oracle, *chain.Router) {
	backend = chain.WithCallTimeout(backend, cfg.Chain.CallTimeout)
	oracle := chain.NewOracle(backend, chain.Addresses{
		Controller: cfg.Chain.Controller,
		Calculator: cfg.Chain.Calculator,
	})
	return oracle, chain.NewRouter(backend, cfg.Chain.Router)
}

func sinks(ctx context.Context, cfg params.Config, sugar *zap.SugaredLogger) ([]keeper.Publisher, error) {
	var out []keeper.Publisher
	if cfg.P2P.Enabled {
		net, err := p2p.NewLibp2pNet(ctx, p2p.Libp2pConfig{
			ListenAddr: cfg.P2P.ListenAddr,
			Bootstrap:  cfg.P2P.Bootstrap,
			Topic:      cfg.P2P.Topic,
			Logger:     sugar,
		})
		if err != nil {
			return nil, err
		}
		net.OnEnvelope(func(env keeper.Envelope) {
			sugar.Debugw("peer_batch", "seq", env.Seq, "signer", env.Signer.Hex(), "digest", env.Digest.Hex())
		})
		out = append(out, net)
	}
	if cfg.Redis.Enabled {
		pub, err := stream.NewPublisher(ctx, stream.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Stream:   cfg.Redis.Stream,
			MaxLen:   cfg.Redis.MaxLen,
			Logger:   sugar,
		})
		if err != nil {
			for _, p := range out {
				p.Close()
			}
			return nil, err
		}
		out = append(out, pub)
	}
	return out, nil
}

// reloadOnHangup re-reads the config on SIGHUP and swaps in chain
// collaborators for the new contract addresses. The order source, redeemer,
// sinks and head pinning keep the startup settings.
func reloadOnHangup(ctx context.Context, envPath string, current params.Config, res *resolver.Resolver, sugar *zap.SugaredLogger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	var dialed chain.Backend
	defer func() {
		if dialed != nil {
			dialed.Close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
		}

		cfg, err := params.LoadFromEnv(envPath)
		if err == nil {
			err = cfg.Validate()
		}
		if err != nil {
			sugar.Warnw("config_reload_failed", "err", err)
			continue
		}
		if cfg.Chain.Redeemer != current.Chain.Redeemer || cfg.Storage.OrderSource != current.Storage.OrderSource {
			sugar.Warnw("config_reload_partial", "reason", "redeemer and order source need a restart")
		}

		backend, err := chain.Dial(ctx, cfg.Chain.RPCURL)
		if err != nil {
			sugar.Warnw("config_reload_failed", "err", err)
			continue
		}
		oracle, router := collaborators(backend, cfg)
		res.Reconfigure(oracle, router)
		if dialed != nil {
			// evaluations started before Reconfigure still read through it
			time.AfterFunc(retireAfter(current), dialed.Close)
		}
		dialed = backend
		current = cfg
		sugar.Infow("config_reloaded",
			"rpc", cfg.Chain.RPCURL,
			"controller", cfg.Chain.Controller.Hex(),
			"calculator", cfg.Chain.Calculator.Hex(),
			"router", cfg.Chain.Router.Hex(),
		)
	}
}

// retireAfter is how long a replaced backend stays open: twice the longest
// bound on work that may still hold it. Unbounded work gets a fixed minute
// or one keeper interval, whichever is longer.
func retireAfter(cfg params.Config) time.Duration {
	if cfg.Keeper.EvalTimeout <= 0 || (cfg.API.Enabled && cfg.API.RequestTimeout <= 0) {
		return max(time.Minute, cfg.Keeper.Interval)
	}
	longest := cfg.Keeper.EvalTimeout
	if cfg.API.Enabled {
		longest = max(longest, cfg.API.RequestTimeout)
	}
	return 2 * longest
}
