package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/uhyunpark/autoredeem/pkg/app/order"
	"github.com/uhyunpark/autoredeem/pkg/keeper"
)

type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}
func (s *PebbleStore) Close() error { return s.db.Close() }

// ============================================================================
// Order Persistence Methods
// ============================================================================

// SaveOrder persists an order to Pebble
func (s *PebbleStore) SaveOrder(o order.Order) error {
	data, err := encodeOrder(o)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}
	if err := s.db.Set(orderKey(o.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

// SaveOrders persists many orders in one atomic write
func (s *PebbleStore) SaveOrders(orders []order.Order) error {
	b := s.db.NewBatch()
	defer b.Close()
	for _, o := range orders {
		data, err := encodeOrder(o)
		if err != nil {
			return fmt.Errorf("failed to marshal order %d: %w", o.ID, err)
		}
		if err := b.Set(orderKey(o.ID), data, nil); err != nil {
			return fmt.Errorf("failed to stage order %d: %w", o.ID, err)
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to save orders: %w", err)
	}
	return nil
}

// LoadOrder loads an order from Pebble
// Returns order.ErrNotFound if the order was never stored
func (s *PebbleStore) LoadOrder(id uint64) (order.Order, error) {
	data, closer, err := s.db.Get(orderKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return order.Order{}, fmt.Errorf("%w: %d", order.ErrNotFound, id)
	}
	if err != nil {
		return order.Order{}, fmt.Errorf("failed to get order: %w", err)
	}
	defer closer.Close()

	o, err := decodeOrder(data)
	if err != nil {
		return order.Order{}, fmt.Errorf("failed to unmarshal order: %w", err)
	}
	return o, nil
}

// LoadOrders loads every stored order in ascending id order
func (s *PebbleStore) LoadOrders() ([]order.Order, error) {
	prefix := []byte(prefixOrder)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open order iterator: %w", err)
	}
	defer iter.Close()

	var orders []order.Order
	for iter.First(); iter.Valid(); iter.Next() {
		o, err := decodeOrder(iter.Value())
		if err != nil {
			continue // Skip invalid entries
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// ============================================================================
// Batch History Methods
// ============================================================================

// SaveBatch persists a published envelope under its sequence number
func (s *PebbleStore) SaveBatch(env keeper.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal batch: %w", err)
	}
	if err := s.db.Set(batchKey(env.Seq), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save batch: %w", err)
	}
	return nil
}

// LoadRecentBatches loads the most recent N envelopes, newest first
func (s *PebbleStore) LoadRecentBatches(limit int) ([]keeper.Envelope, error) {
	prefix := []byte(prefixBatch)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open batch iterator: %w", err)
	}
	defer iter.Close()

	var out []keeper.Envelope
	for iter.Last(); iter.Valid() && len(out) < limit; iter.Prev() {
		var env keeper.Envelope
		if err := json.Unmarshal(iter.Value(), &env); err != nil {
			continue
		}
		out = append(out, env)
	}
	return out, nil
}

// LastBatchSeq returns the highest stored sequence number
func (s *PebbleStore) LastBatchSeq() (uint64, bool, error) {
	prefix := []byte(prefixBatch)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return 0, false, fmt.Errorf("failed to open batch iterator: %w", err)
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, false, nil
	}
	seq, err := seqFromKey(prefixBatch, iter.Key())
	if err != nil {
		return 0, false, err
	}
	return seq, true, nil
}

// PruneBatches keeps the newest keep envelopes and deletes the rest
func (s *PebbleStore) PruneBatches(keep int) error {
	last, ok, err := s.LastBatchSeq()
	if err != nil || !ok {
		return err
	}
	if keep <= 0 || last < uint64(keep) {
		return nil
	}
	cutoff := last - uint64(keep) + 1
	if err := s.db.DeleteRange([]byte(prefixBatch), batchKey(cutoff), pebble.Sync); err != nil {
		return fmt.Errorf("failed to prune batches: %w", err)
	}
	return nil
}

var _ keeper.History = (*PebbleStore)(nil)
