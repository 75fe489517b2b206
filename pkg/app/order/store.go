package order

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Store is the read side of the order book the resolver plans against
type Store interface {
	GetOrder(ctx context.Context, id uint64) (Order, error)
	// GetOrders returns every order in ascending id order
	GetOrders(ctx context.Context) ([]Order, error)
	// ShouldAttempt is a cheap idempotent filter (e.g. not finished yet)
	ShouldAttempt(ctx context.Context, id uint64) (bool, error)
}

// MemStore is an in-memory Store used by tests and local tooling
type MemStore struct {
	mu     sync.RWMutex
	orders []Order
}

func NewMemStore(orders ...Order) *MemStore {
	s := &MemStore{}
	for _, o := range orders {
		s.Put(o)
	}
	return s
}

// Put inserts or replaces an order, keeping ascending id order
func (s *MemStore) Put(o Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := sort.Search(len(s.orders), func(i int) bool { return s.orders[i].ID >= o.ID })
	if i < len(s.orders) && s.orders[i].ID == o.ID {
		s.orders[i] = o
		return
	}
	s.orders = append(s.orders, Order{})
	copy(s.orders[i+1:], s.orders[i:])
	s.orders[i] = o
}

func (s *MemStore) GetOrder(_ context.Context, id uint64) (Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := sort.Search(len(s.orders), func(i int) bool { return s.orders[i].ID >= id })
	if i < len(s.orders) && s.orders[i].ID == id {
		return s.orders[i], nil
	}
	return Order{}, fmt.Errorf("%w: %d", ErrNotFound, id)
}

func (s *MemStore) GetOrders(_ context.Context) ([]Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Order(nil), s.orders...), nil
}

func (s *MemStore) ShouldAttempt(ctx context.Context, id uint64) (bool, error) {
	o, err := s.GetOrder(ctx, id)
	if err != nil {
		return false, err
	}
	return !o.Finished, nil
}

// Len returns number of stored orders (for tests/metrics)
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

var _ Store = (*MemStore)(nil)
