package storage

import (
	"context"

	"go.uber.org/zap"

	"github.com/uhyunpark/autoredeem/pkg/app/order"
)

// Mirror wraps an upstream order book and persists every order it returns,
// so the diagnostics API can serve orders without hitting the chain.
type Mirror struct {
	upstream order.Store
	store    *PebbleStore
	log      *zap.SugaredLogger
}

func NewMirror(upstream order.Store, store *PebbleStore, log *zap.SugaredLogger) *Mirror {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Mirror{upstream: upstream, store: store, log: log}
}

func (m *Mirror) GetOrder(ctx context.Context, id uint64) (order.Order, error) {
	o, err := m.upstream.GetOrder(ctx, id)
	if err != nil {
		return order.Order{}, err
	}
	if err := m.store.SaveOrder(o); err != nil {
		m.log.Warnw("order_mirror_failed", "order_id", id, "err", err)
	}
	return o, nil
}

// GetOrders never fails because of the mirror; persistence errors are logged
func (m *Mirror) GetOrders(ctx context.Context) ([]order.Order, error) {
	orders, err := m.upstream.GetOrders(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.store.SaveOrders(orders); err != nil {
		m.log.Warnw("order_mirror_failed", "orders", len(orders), "err", err)
	}
	return orders, nil
}

func (m *Mirror) ShouldAttempt(ctx context.Context, id uint64) (bool, error) {
	return m.upstream.ShouldAttempt(ctx, id)
}

var _ order.Store = (*Mirror)(nil)
