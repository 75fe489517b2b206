package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/uhyunpark/autoredeem/params"
	"github.com/uhyunpark/autoredeem/pkg/api"
	"github.com/uhyunpark/autoredeem/pkg/app/resolver"
	"github.com/uhyunpark/autoredeem/pkg/chain"
	"github.com/uhyunpark/autoredeem/pkg/util"
)

// orderReport is the single-order output
type orderReport struct {
	Block       uint64              `json:"block"`
	Order       api.OrderInfo       `json:"order"`
	Eligibility api.EligibilityInfo `json:"eligibility"`
	Key         string              `json:"key"`
	Payout      *api.PayoutInfo     `json:"payout,omitempty"`
	PayoutError string              `json:"payoutError,omitempty"`
}

type batchReport struct {
	Block uint64 `json:"block"`
	api.ResolveResponse
}

func main() {
	envPath := flag.String("env", "", "path to .env file (default: ./.env)")
	orderID := flag.Int64("order", -1, "inspect a single order id instead of the whole book")
	timeout := flag.Duration("timeout", 30*time.Second, "overall timeout")
	flag.Parse()

	cfg, err := params.LoadFromEnv(*envPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	// NewLogger writes to stderr; stdout carries the report
	logger, err := util.NewLogger(cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	backend, err := chain.Dial(ctx, cfg.Chain.RPCURL)
	if err != nil {
		log.Fatal(err)
	}
	defer backend.Close()

	caller := chain.WithCallTimeout(backend, cfg.Chain.CallTimeout)
	oracle := chain.NewOracle(caller, chain.Addresses{Controller: cfg.Chain.Controller, Calculator: cfg.Chain.Calculator})
	res, err := resolver.New(chain.NewRedeemer(caller, cfg.Chain.Redeemer), oracle, chain.NewRouter(caller, cfg.Chain.Router), resolver.Options{
		Redeemer:     cfg.Chain.Redeemer,
		Workers:      cfg.Resolver.Workers,
		OrderTimeout: cfg.Resolver.OrderTimeout,
		Logger:       logger.Sugar(),
	})
	if err != nil {
		log.Fatal(err)
	}

	ctx, block, err := chain.PinHead(ctx, backend)
	if err != nil {
		log.Fatal(err)
	}

	var report interface{}
	if *orderID >= 0 {
		report, err = inspectOrder(ctx, res, uint64(*orderID), block)
		if err != nil {
			log.Fatal(err)
		}
	} else {
		batch := res.Evaluate(ctx)
		instruction, err := resolver.EncodeInstruction(batch)
		if err != nil {
			log.Fatal(err)
		}
		report = batchReport{Block: block, ResolveResponse: api.NewResolveResponse(batch, instruction)}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		log.Fatal(err)
	}
}

func inspectOrder(ctx context.Context, res *resolver.Resolver, id, block uint64) (orderReport, error) {
	o, err := res.Store().GetOrder(ctx, id)
	if err != nil {
		return orderReport{}, fmt.Errorf("order %d: %w", id, err)
	}
	r := orderReport{
		Block:       block,
		Order:       api.NewOrderInfo(o),
		Eligibility: api.NewEligibilityInfo(id, res.Eligibility(ctx, o)),
		Key:         resolver.KeyOf(o).Hex(),
	}
	asset, amount, err := res.Payout(ctx, o)
	if err != nil {
		r.PayoutError = err.Error()
	} else {
		r.Payout = &api.PayoutInfo{OrderID: id, Asset: asset, Amount: amount.String()}
	}
	return r, nil
}
