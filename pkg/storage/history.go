package storage

import (
	"sync"

	"github.com/uhyunpark/autoredeem/pkg/keeper"
)

// InMemoryHistory keeps published envelopes in memory, for runs without a data dir
type InMemoryHistory struct {
	mu      sync.Mutex
	batches []keeper.Envelope // ascending seq
}

func NewInMemoryHistory() *InMemoryHistory {
	return &InMemoryHistory{}
}

func (h *InMemoryHistory) SaveBatch(env keeper.Envelope) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n := len(h.batches); n > 0 && h.batches[n-1].Seq == env.Seq {
		h.batches[n-1] = env
		return nil
	}
	h.batches = append(h.batches, env)
	return nil
}

func (h *InMemoryHistory) LoadRecentBatches(limit int) ([]keeper.Envelope, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []keeper.Envelope
	for i := len(h.batches) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, h.batches[i])
	}
	return out, nil
}

func (h *InMemoryHistory) LastBatchSeq() (uint64, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.batches) == 0 {
		return 0, false, nil
	}
	return h.batches[len(h.batches)-1].Seq, true, nil
}

func (h *InMemoryHistory) PruneBatches(keep int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if keep > 0 && len(h.batches) > keep {
		h.batches = append([]keeper.Envelope(nil), h.batches[len(h.batches)-keep:]...)
	}
	return nil
}

var _ keeper.History = (*InMemoryHistory)(nil)
