package params

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// Order sources
const (
	SourceChain = "chain" // redeemer contract, mirrored into pebble
	SourceLocal = "local" // pebble only
)

type Chain struct {
	RPCURL      string         `env:"RPC_URL" envDefault:"http://localhost:8545"`
	ChainID     int64          `env:"ID" envDefault:"1"`
	Redeemer    common.Address `env:"REDEEMER"`
	Controller  common.Address `env:"CONTROLLER"`
	Calculator  common.Address `env:"CALCULATOR"`
	Router      common.Address `env:"ROUTER"`
	CallTimeout time.Duration  `env:"CALL_TIMEOUT" envDefault:"5s"`
}

type Resolver struct {
	Workers      int           `env:"WORKERS" envDefault:"8"`
	OrderTimeout time.Duration `env:"ORDER_TIMEOUT" envDefault:"3s"` // per order, all reads included
}

type Keeper struct {
	Interval    time.Duration `env:"INTERVAL" envDefault:"15s"`
	EvalTimeout time.Duration `env:"EVAL_TIMEOUT" envDefault:"10s"`
	// PinHead evaluates every tick against a single block
	PinHead bool `env:"PIN_HEAD" envDefault:"true"`
}

type API struct {
	Enabled        bool          `env:"ENABLED" envDefault:"true"`
	Addr           string        `env:"ADDR" envDefault:":8080"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
}

type Storage struct {
	Path         string `env:"PATH" envDefault:"data/autoredeem"`
	HistoryLimit int    `env:"HISTORY_LIMIT" envDefault:"1000"`
	Journal      string `env:"JOURNAL" envDefault:"data/batches.log"` // empty disables
	OrderSource  string `env:"ORDER_SOURCE" envDefault:"chain"`
}

type P2P struct {
	Enabled    bool     `env:"ENABLED" envDefault:"false"`
	ListenAddr string   `env:"LISTEN_ADDR" envDefault:"/ip4/0.0.0.0/tcp/9000"`
	Bootstrap  []string `env:"BOOTSTRAP" envSeparator:","`
	Topic      string   `env:"TOPIC" envDefault:"autoredeem-batches"`
}

type Redis struct {
	Enabled  bool   `env:"ENABLED" envDefault:"false"`
	Addr     string `env:"ADDR" envDefault:"localhost:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
	Stream   string `env:"STREAM" envDefault:"autoredeem:batches"`
	MaxLen   int64  `env:"MAX_LEN" envDefault:"10000"`
}

type Signer struct {
	// PrivateKey signs published envelopes. Empty publishes unsigned.
	PrivateKey string `env:"PRIVATE_KEY"`
}

type Log struct {
	File  string `env:"FILE" envDefault:"logs/keeper.log"` // empty logs to stdout only
	Level string `env:"LEVEL" envDefault:"info"`
}

type Config struct {
	Chain    Chain    `envPrefix:"CHAIN_"`
	Resolver Resolver `envPrefix:"RESOLVER_"`
	Keeper   Keeper   `envPrefix:"KEEPER_"`
	API      API      `envPrefix:"API_"`
	Storage  Storage  `envPrefix:"STORAGE_"`
	P2P      P2P      `envPrefix:"P2P_"`
	Redis    Redis    `envPrefix:"REDIS_"`
	Signer   Signer   `envPrefix:"SIGNER_"`
	Log      Log      `envPrefix:"LOG_"`
}

var parsers = map[reflect.Type]env.ParserFunc{
	reflect.TypeOf(common.Address{}): parseAddress,
}

func parseAddress(v string) (interface{}, error) {
	if !common.IsHexAddress(v) {
		return nil, fmt.Errorf("invalid address %q", v)
	}
	return common.HexToAddress(v), nil
}

// Default returns the built-in defaults, ignoring the process environment
func Default() Config {
	var cfg Config
	// envDefault tags are constants; parsing them cannot fail
	if err := env.ParseWithOptions(&cfg, env.Options{
		Environment: map[string]string{},
		FuncMap:     parsers,
	}); err != nil {
		panic(err)
	}
	return cfg
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) (Config, error) {
	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{FuncMap: parsers}); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings a keeper cannot start without
func (c Config) Validate() error {
	var errs []error
	if c.Chain.RPCURL == "" && c.Storage.OrderSource == SourceChain {
		errs = append(errs, errors.New("CHAIN_RPC_URL is required"))
	}
	if c.Chain.Redeemer == (common.Address{}) {
		errs = append(errs, errors.New("CHAIN_REDEEMER is required"))
	}
	if c.Chain.Controller == (common.Address{}) {
		errs = append(errs, errors.New("CHAIN_CONTROLLER is required"))
	}
	if c.Chain.Calculator == (common.Address{}) {
		errs = append(errs, errors.New("CHAIN_CALCULATOR is required"))
	}
	if c.Chain.Router == (common.Address{}) {
		errs = append(errs, errors.New("CHAIN_ROUTER is required"))
	}
	if c.Storage.OrderSource != SourceChain && c.Storage.OrderSource != SourceLocal {
		errs = append(errs, fmt.Errorf("unknown STORAGE_ORDER_SOURCE %q", c.Storage.OrderSource))
	}
	if c.Resolver.Workers < 0 {
		errs = append(errs, errors.New("RESOLVER_WORKERS must not be negative"))
	}
	return errors.Join(errs...)
}
