package storage

import (
	"fmt"
	"strconv"
)

// Key schema for Pebble storage
//
//   ord:<20-digit id>     → order mirrored from the order book
//   batch:<20-digit seq>  → published batch envelope
//
// Numbers are zero-padded so lexicographic order is numeric order.

const (
	prefixOrder = "ord:"
	prefixBatch = "batch:"
)

// orderKey returns the key for an order
// Format: "ord:{id}"
func orderKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixOrder, id))
}

// batchKey returns the key for a batch envelope
// Format: "batch:{seq}"
func batchKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixBatch, seq))
}

// seqFromKey parses the numeric suffix of an ord: or batch: key
func seqFromKey(prefix string, key []byte) (uint64, error) {
	if len(key) <= len(prefix) {
		return 0, fmt.Errorf("short key %q", key)
	}
	return strconv.ParseUint(string(key[len(prefix):]), 10, 64)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
