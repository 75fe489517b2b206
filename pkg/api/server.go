package api

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/autoredeem/pkg/app/order"
	"github.com/uhyunpark/autoredeem/pkg/app/protocol"
	"github.com/uhyunpark/autoredeem/pkg/app/resolver"
	"github.com/uhyunpark/autoredeem/pkg/keeper"
)

const (
	defaultBatchLimit = 20
	maxBatchLimit     = 1000
)

// Resolver is the part of *resolver.Resolver the API reads from
type Resolver interface {
	Evaluate(ctx context.Context) resolver.Batch
	Eligibility(ctx context.Context, o order.Order) resolver.Outcome
	Payout(ctx context.Context, o order.Order) (common.Address, *big.Int, error)
	Store() order.Store
}

type Options struct {
	AllowedOrigins []string
	RequestTimeout time.Duration // bound on handlers that hit the chain; zero means none
	Logger         *zap.SugaredLogger
}

// Server exposes read-only diagnostics over REST and pushes new batches
// over WebSocket.
type Server struct {
	res    Resolver
	hist   keeper.History // nil disables /batches
	router *mux.Router
	hub    *Hub
	opts   Options
	log    *zap.SugaredLogger
}

func NewServer(res Resolver, hist keeper.History, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"http://localhost:3000"}
	}
	s := &Server{
		res:    res,
		hist:   hist,
		router: mux.NewRouter(),
		hub:    NewHub(opts.Logger),
		opts:   opts,
		log:    opts.Logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/resolve", s.handleResolve).Methods("GET")

	api.HandleFunc("/orders", s.handleGetOrders).Methods("GET")
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/orders/{id}/eligibility", s.handleGetEligibility).Methods("GET")
	api.HandleFunc("/orders/{id}/payout", s.handleGetPayout).Methods("GET")
	api.HandleFunc("/orders/{id}/key", s.handleGetKey).Methods("GET")

	api.HandleFunc("/batches", s.handleGetBatches).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped in CORS handling
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(s.router)
}

// Start serves on addr until ctx is done
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.log.Infow("api_started", "addr", addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// BroadcastBatch pushes env to WebSocket clients on the batches channel.
// Registered as a keeper OnBatch hook.
func (s *Server) BroadcastBatch(env keeper.Envelope) {
	s.hub.BroadcastToChannel(ChannelBatches, BatchUpdate{Type: "batch", Envelope: env})
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	batch := s.res.Evaluate(ctx)
	instruction, err := resolver.EncodeInstruction(batch)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "encode failed", err.Error())
		return
	}
	respondJSON(w, NewResolveResponse(batch, instruction))
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	orders, err := s.res.Store().GetOrders(ctx)
	if err != nil {
		respondError(w, http.StatusBadGateway, "order book unavailable", err.Error())
		return
	}
	response := make([]OrderInfo, len(orders))
	for i, o := range orders {
		response[i] = NewOrderInfo(o)
	}
	respondJSON(w, response)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	o, ok := s.lookup(ctx, w, r)
	if !ok {
		return
	}
	respondJSON(w, NewOrderInfo(o))
}

func (s *Server) handleGetEligibility(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	o, ok := s.lookup(ctx, w, r)
	if !ok {
		return
	}
	respondJSON(w, NewEligibilityInfo(o.ID, s.res.Eligibility(ctx, o)))
}

func (s *Server) handleGetPayout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	o, ok := s.lookup(ctx, w, r)
	if !ok {
		return
	}
	asset, amount, err := s.res.Payout(ctx, o)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if protocol.IsTransient(err) {
			status = http.StatusBadGateway
		}
		respondError(w, status, "payout unavailable", err.Error())
		return
	}
	respondJSON(w, PayoutInfo{OrderID: o.ID, Asset: asset, Amount: amount.String()})
}

func (s *Server) handleGetKey(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	o, ok := s.lookup(ctx, w, r)
	if !ok {
		return
	}
	respondJSON(w, KeyInfo{OrderID: o.ID, Key: resolver.KeyOf(o).Hex()})
}

func (s *Server) handleGetBatches(w http.ResponseWriter, r *http.Request) {
	limit := defaultBatchLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit", v)
			return
		}
		limit = min(n, maxBatchLimit)
	}
	if s.hist == nil {
		respondJSON(w, []keeper.Envelope{})
		return
	}
	envs, err := s.hist.LoadRecentBatches(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "history unavailable", err.Error())
		return
	}
	if envs == nil {
		envs = []keeper.Envelope{}
	}
	respondJSON(w, envs)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]interface{}{"status": "ok", "ws_clients": s.hub.Clients()})
}

// ==============================
// Helper Functions
// ==============================

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.opts.RequestTimeout > 0 {
		return context.WithTimeout(r.Context(), s.opts.RequestTimeout)
	}
	return context.WithCancel(r.Context())
}

// lookup resolves the {id} path variable to a stored order, writing the
// error response itself when it fails.
func (s *Server) lookup(ctx context.Context, w http.ResponseWriter, r *http.Request) (order.Order, bool) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id", raw)
		return order.Order{}, false
	}
	o, err := s.res.Store().GetOrder(ctx, id)
	switch {
	case errors.Is(err, order.ErrNotFound):
		respondError(w, http.StatusNotFound, "order not found", raw)
		return order.Order{}, false
	case err != nil:
		respondError(w, http.StatusBadGateway, "order book unavailable", err.Error())
		return order.Order{}, false
	}
	return o, true
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
