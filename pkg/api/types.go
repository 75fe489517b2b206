package api

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/uhyunpark/autoredeem/pkg/app/order"
	"github.com/uhyunpark/autoredeem/pkg/app/resolver"
	"github.com/uhyunpark/autoredeem/pkg/keeper"
)

// API response types for REST endpoints and WebSocket messages.
// Token amounts are decimal strings; they do not fit a JSON number.

// ==============================
// REST Response Types
// ==============================

// OrderInfo represents a standing order as read from the order book
type OrderInfo struct {
	ID       uint64         `json:"id"`
	Owner    common.Address `json:"owner"`
	Role     string         `json:"role"`              // "buyer" or "seller"
	VaultID  string         `json:"vaultId,omitempty"` // seller only
	Otoken   common.Address `json:"otoken"`
	Amount   string         `json:"amount,omitempty"` // buyer only, 8 decimals
	ToToken  common.Address `json:"toToken"`
	FeeBps   uint64         `json:"feeBps"`
	Finished bool           `json:"finished"`
}

// EligibilityInfo is the verdict for one order
type EligibilityInfo struct {
	OrderID  uint64 `json:"orderId"`
	Eligible bool   `json:"eligible"`
	Verdict  string `json:"verdict"` // "eligible", "ineligible", "unavailable"
	Reason   string `json:"reason,omitempty"`
	Error    string `json:"error,omitempty"`
}

// PayoutInfo is what an order would pay out right now, before fees
type PayoutInfo struct {
	OrderID uint64         `json:"orderId"`
	Asset   common.Address `json:"asset"`
	Amount  string         `json:"amount"`
}

// KeyInfo is the dedup key of an order's position
type KeyInfo struct {
	OrderID uint64 `json:"orderId"`
	Key     string `json:"key"`
}

// SwapInfo is the conversion bound attached to a planned order
type SwapInfo struct {
	PayoutAsset common.Address   `json:"payoutAsset"`
	AmountIn    string           `json:"amountIn"`
	MinOutput   string           `json:"minOutput"`
	Path        []common.Address `json:"path"`
}

// PlannedInfo is one order admitted into a batch
type PlannedInfo struct {
	OrderID uint64    `json:"orderId"`
	Key     string    `json:"key"`
	Swap    *SwapInfo `json:"swap,omitempty"`
}

// ResolveResponse is a fresh evaluation of the whole order book
type ResolveResponse struct {
	CanExecute  bool              `json:"canExecute"`
	Instruction hexutil.Bytes     `json:"instruction"` // processOrders calldata
	Orders      []PlannedInfo     `json:"orders"`
	Rejections  []EligibilityInfo `json:"rejections"`
	Evaluated   int               `json:"evaluated"`
	Transient   int               `json:"transient"` // rejections caused by failed reads
}

// ==============================
// WebSocket Message Types
// ==============================

// WSMessage is the base structure for all WebSocket messages
type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["batches"]
}

// BatchUpdate is broadcast on every published batch
type BatchUpdate struct {
	Type     string          `json:"type"` // "batch"
	Envelope keeper.Envelope `json:"envelope"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ==============================
// Conversions
// ==============================

func NewOrderInfo(o order.Order) OrderInfo {
	info := OrderInfo{
		ID:       o.ID,
		Owner:    o.Owner,
		Role:     o.Role.String(),
		Otoken:   o.Otoken,
		ToToken:  o.ToToken,
		FeeBps:   o.FeeBps,
		Finished: o.Finished,
	}
	if o.VaultID != nil {
		info.VaultID = o.VaultID.String()
	}
	if o.Amount != nil {
		info.Amount = o.Amount.String()
	}
	return info
}

// NewEligibilityInfo flattens an outcome; Error keeps the cause text
func NewEligibilityInfo(id uint64, out resolver.Outcome) EligibilityInfo {
	info := EligibilityInfo{
		OrderID:  id,
		Eligible: out.OK(),
		Verdict:  out.Verdict.String(),
		Reason:   out.Reason,
	}
	if out.Err != nil {
		info.Error = out.Err.Error()
	}
	return info
}

// NewResolveResponse renders a batch with its encoded instruction
func NewResolveResponse(b resolver.Batch, instruction []byte) ResolveResponse {
	resp := ResolveResponse{
		CanExecute:  b.CanExecute,
		Instruction: instruction,
		Orders:      make([]PlannedInfo, len(b.Orders)),
		Rejections:  make([]EligibilityInfo, len(b.Rejections)),
		Evaluated:   b.Evaluated,
		Transient:   b.Transient(),
	}
	for i, p := range b.Orders {
		resp.Orders[i] = PlannedInfo{OrderID: p.OrderID, Key: p.Key.Hex()}
		if s := p.Swap; s != nil {
			resp.Orders[i].Swap = &SwapInfo{
				PayoutAsset: s.PayoutAsset,
				AmountIn:    s.AmountIn.String(),
				MinOutput:   s.MinOutput.String(),
				Path:        s.Path,
			}
		}
	}
	for i, r := range b.Rejections {
		resp.Rejections[i] = NewEligibilityInfo(r.OrderID, r.Outcome)
	}
	return resp
}
