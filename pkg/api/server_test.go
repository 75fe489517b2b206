package api

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"github.com/uhyunpark/autoredeem/pkg/app/order"
	"github.com/uhyunpark/autoredeem/pkg/app/resolver"
	"github.com/uhyunpark/autoredeem/pkg/keeper"
)

var (
	owner = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	usdc  = common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	weth  = common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
)

type stubResolver struct {
	store   *order.MemStore
	batch   resolver.Batch
	outcome resolver.Outcome
	payErr  error
}

func (s *stubResolver) Evaluate(context.Context) resolver.Batch { return s.batch }

func (s *stubResolver) Eligibility(context.Context, order.Order) resolver.Outcome { return s.outcome }

func (s *stubResolver) Payout(_ context.Context, o order.Order) (common.Address, *big.Int, error) {
	if s.payErr != nil {
		return common.Address{}, nil, s.payErr
	}
	return usdc, big.NewInt(990), nil
}

func (s *stubResolver) Store() order.Store { return s.store }

type stubHistory struct {
	envs []keeper.Envelope
}

func (h *stubHistory) SaveBatch(env keeper.Envelope) error { return nil }
func (h *stubHistory) LastBatchSeq() (uint64, bool, error) { return 0, false, nil }
func (h *stubHistory) PruneBatches(int) error              { return nil }
func (h *stubHistory) LoadRecentBatches(limit int) ([]keeper.Envelope, error) {
	if limit > len(h.envs) {
		limit = len(h.envs)
	}
	return h.envs[:limit], nil
}

func newTestServer() (*Server, *stubResolver) {
	res := &stubResolver{
		store: order.NewMemStore(
			order.Order{ID: 0, Owner: owner, Role: order.Seller, VaultID: big.NewInt(1)},
			order.Order{ID: 1, Owner: owner, Role: order.Buyer, Otoken: usdc, Amount: big.NewInt(500), ToToken: weth, FeeBps: 100},
		),
		outcome: resolver.Outcome{Verdict: resolver.Eligible},
	}
	hist := &stubHistory{envs: []keeper.Envelope{{Seq: 3}, {Seq: 2}, {Seq: 1}}}
	return NewServer(res, hist, Options{}), res
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer()
	rec := get(t, s, "/health")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("health = %d %s", rec.Code, rec.Body)
	}
}

func TestGetOrders(t *testing.T) {
	s, _ := newTestServer()

	var orders []OrderInfo
	rec := get(t, s, "/api/v1/orders")
	decode(t, rec, &orders)
	if len(orders) != 2 || orders[0].Role != "seller" || orders[0].VaultID != "1" {
		t.Fatalf("orders = %+v", orders)
	}

	var o OrderInfo
	decode(t, get(t, s, "/api/v1/orders/1"), &o)
	if o.Amount != "500" || o.ToToken != weth || o.FeeBps != 100 {
		t.Errorf("order 1 = %+v", o)
	}
}

func TestOrderLookupErrors(t *testing.T) {
	s, _ := newTestServer()
	tests := []struct {
		path string
		code int
	}{
		{"/api/v1/orders/abc", http.StatusBadRequest},
		{"/api/v1/orders/-1", http.StatusBadRequest},
		{"/api/v1/orders/9", http.StatusNotFound},
		{"/api/v1/orders/9/eligibility", http.StatusNotFound},
		{"/api/v1/batches?limit=0", http.StatusBadRequest},
		{"/api/v1/batches?limit=x", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if rec := get(t, s, tt.path); rec.Code != tt.code {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.code, rec.Body)
			}
		})
	}
}

func TestEligibility(t *testing.T) {
	s, res := newTestServer()

	var info EligibilityInfo
	decode(t, get(t, s, "/api/v1/orders/0/eligibility"), &info)
	if !info.Eligible || info.Verdict != "eligible" {
		t.Errorf("eligibility = %+v", info)
	}

	res.outcome = resolver.Outcome{Verdict: resolver.Unavailable, Reason: resolver.ReasonVaultRead, Err: context.DeadlineExceeded}
	decode(t, get(t, s, "/api/v1/orders/0/eligibility"), &info)
	if info.Eligible || info.Verdict != "unavailable" || info.Reason != resolver.ReasonVaultRead || info.Error == "" {
		t.Errorf("eligibility = %+v", info)
	}
}

func TestPayoutAndKey(t *testing.T) {
	s, res := newTestServer()

	var p PayoutInfo
	decode(t, get(t, s, "/api/v1/orders/1/payout"), &p)
	if p.Asset != usdc || p.Amount != "990" {
		t.Errorf("payout = %+v", p)
	}

	res.payErr = errors.New("execution reverted")
	if rec := get(t, s, "/api/v1/orders/1/payout"); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("reverted payout status = %d", rec.Code)
	}
	res.payErr = context.DeadlineExceeded
	if rec := get(t, s, "/api/v1/orders/1/payout"); rec.Code != http.StatusBadGateway {
		t.Errorf("timed out payout status = %d", rec.Code)
	}

	var k KeyInfo
	decode(t, get(t, s, "/api/v1/orders/1/key"), &k)
	o, _ := res.store.GetOrder(context.Background(), 1)
	if k.Key != resolver.KeyOf(o).Hex() {
		t.Errorf("key = %s", k.Key)
	}
}

func TestResolve(t *testing.T) {
	s, res := newTestServer()
	res.batch = resolver.Batch{
		CanExecute: true,
		Orders: []resolver.Planned{{
			OrderID: 1,
			Swap: &resolver.SwapHint{
				PayoutAsset: usdc,
				AmountIn:    big.NewInt(495),
				MinOutput:   big.NewInt(990),
				Path:        []common.Address{usdc, weth},
			},
		}},
		Rejections: []resolver.Rejection{
			{OrderID: 0, Outcome: resolver.Outcome{Verdict: resolver.Ineligible, Reason: resolver.ReasonNotExpired}},
		},
		Evaluated: 2,
	}

	var resp ResolveResponse
	decode(t, get(t, s, "/api/v1/resolve"), &resp)
	if !resp.CanExecute || resp.Evaluated != 2 || len(resp.Orders) != 1 || len(resp.Rejections) != 1 {
		t.Fatalf("resolve = %+v", resp)
	}
	if sw := resp.Orders[0].Swap; sw == nil || sw.MinOutput != "990" || len(sw.Path) != 2 {
		t.Errorf("swap = %+v", sw)
	}
	if resp.Rejections[0].Reason != resolver.ReasonNotExpired {
		t.Errorf("rejection = %+v", resp.Rejections[0])
	}

	ins, err := resolver.DecodeInstruction(resp.Instruction)
	if err != nil || len(ins.OrderIDs) != 1 || ins.Args[0].SwapAmountOutMin.Int64() != 990 {
		t.Errorf("instruction: %+v, %v", ins, err)
	}
}

func TestGetBatches(t *testing.T) {
	s, _ := newTestServer()

	var envs []keeper.Envelope
	decode(t, get(t, s, "/api/v1/batches?limit=2"), &envs)
	if len(envs) != 2 || envs[0].Seq != 3 {
		t.Errorf("batches = %+v", envs)
	}
	decode(t, get(t, s, "/api/v1/batches"), &envs)
	if len(envs) != 3 {
		t.Errorf("default limit returned %d", len(envs))
	}

	bare := NewServer(&stubResolver{store: order.NewMemStore()}, nil, Options{})
	rec := get(t, bare, "/api/v1/batches")
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("no history = %s", rec.Body)
	}
}

func TestWebSocketBatches(t *testing.T) {
	s, _ := newTestServer()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.hub.Run(ctx)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if err := conn.WriteJSON(WSSubscribeRequest{Op: "subscribe", Channels: []string{ChannelBatches}}); err != nil {
		t.Fatal(err)
	}
	var ack WSMessage
	if err := conn.ReadJSON(&ack); err != nil || ack.Type != "subscribed" {
		t.Fatalf("ack = %+v, %v", ack, err)
	}

	s.BroadcastBatch(keeper.Envelope{Seq: 5, CanExecute: true, OrderIDs: []uint64{1}})

	var update BatchUpdate
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatal(err)
	}
	if update.Type != "batch" || update.Envelope.Seq != 5 {
		t.Errorf("update = %+v", update)
	}
}
