package keeper

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Envelope is one published batch: the processOrders calldata plus enough
// metadata for an executor to check freshness and provenance.
type Envelope struct {
	Seq         uint64         `json:"seq"`
	Timestamp   int64          `json:"timestamp"` // unix millis
	Block       uint64         `json:"block,omitempty"`
	CanExecute  bool           `json:"can_execute"`
	OrderIDs    []uint64       `json:"order_ids"`
	Rejected    int            `json:"rejected"`
	Instruction hexutil.Bytes  `json:"instruction"`
	Digest      common.Hash    `json:"digest"`
	Signature   hexutil.Bytes  `json:"signature,omitempty"`
	Signer      common.Address `json:"signer"`
}

// Digest is the keccak256 of the instruction bytes, what the signer signs
func Digest(instruction []byte) common.Hash {
	return crypto.Keccak256Hash(instruction)
}

func (e Envelope) String() string {
	return fmt.Sprintf("batch#%d(orders=%d exec=%v digest=%s)", e.Seq, len(e.OrderIDs), e.CanExecute, e.Digest.TerminalString())
}
