package resolver

import "github.com/uhyunpark/autoredeem/pkg/app/order"

// KeyOf returns the position key the dedup scan uses for o
func KeyOf(o order.Order) order.Key {
	return order.KeyOf(o)
}

// HasConflict returns true if a position with the same key was already accepted
func HasConflict(o order.Order, keys order.KeySet) bool {
	return keys.Has(order.KeyOf(o))
}
