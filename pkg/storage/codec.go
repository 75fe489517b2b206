package storage

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/autoredeem/pkg/app/order"
)

// orderRecord is the persisted form of an order
type orderRecord struct {
	ID       uint64         `json:"id"`
	Owner    common.Address `json:"owner"`
	Role     string         `json:"role"`
	VaultID  *big.Int       `json:"vault_id,omitempty"`
	Otoken   common.Address `json:"otoken"`
	Amount   *big.Int       `json:"amount,omitempty"`
	ToToken  common.Address `json:"to_token"`
	FeeBps   uint64         `json:"fee_bps"`
	Finished bool           `json:"finished"`
}

func encodeOrder(o order.Order) ([]byte, error) {
	return json.Marshal(orderRecord{
		ID:       o.ID,
		Owner:    o.Owner,
		Role:     o.Role.String(),
		VaultID:  o.VaultID,
		Otoken:   o.Otoken,
		Amount:   o.Amount,
		ToToken:  o.ToToken,
		FeeBps:   o.FeeBps,
		Finished: o.Finished,
	})
}

func decodeOrder(b []byte) (order.Order, error) {
	var rec orderRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return order.Order{}, err
	}
	role := order.Buyer
	if rec.Role == order.Seller.String() {
		role = order.Seller
	}
	return order.Order{
		ID:       rec.ID,
		Owner:    rec.Owner,
		Role:     role,
		VaultID:  rec.VaultID,
		Otoken:   rec.Otoken,
		Amount:   rec.Amount,
		ToToken:  rec.ToToken,
		FeeBps:   rec.FeeBps,
		Finished: rec.Finished,
	}, nil
}
