package storage

import (
	"context"

	"github.com/uhyunpark/autoredeem/pkg/app/order"
)

// Local serves the order book straight from Pebble. Used for dry runs
// against orders imported with SaveOrder.
type Local struct {
	store *PebbleStore
}

func NewLocal(store *PebbleStore) *Local {
	return &Local{store: store}
}

func (l *Local) GetOrder(_ context.Context, id uint64) (order.Order, error) {
	return l.store.LoadOrder(id)
}

func (l *Local) GetOrders(_ context.Context) ([]order.Order, error) {
	return l.store.LoadOrders()
}

func (l *Local) ShouldAttempt(_ context.Context, id uint64) (bool, error) {
	o, err := l.store.LoadOrder(id)
	if err != nil {
		return false, err
	}
	return !o.Finished, nil
}

var _ order.Store = (*Local)(nil)
