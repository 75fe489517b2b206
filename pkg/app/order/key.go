package order

import (
	"encoding/hex"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// Key identifies the logical position an order targets.
// Two orders with the same Key must never land in the same batch.
type Key [32]byte

// KeyOf hashes the ABI encoding of the position the order points at:
//
//	seller: keccak256(abi.encode(owner, vaultId))
//	buyer:  keccak256(abi.encode(owner, otoken))
//
// The encoding matches the redeemer contract so keys can be compared on-chain.
func KeyOf(o Order) Key {
	h := sha3.NewLegacyKeccak256()
	h.Write(common.LeftPadBytes(o.Owner.Bytes(), 32))
	if o.Role == Seller {
		var word []byte
		if o.VaultID != nil {
			word = o.VaultID.Bytes()
		}
		h.Write(common.LeftPadBytes(word, 32))
	} else {
		h.Write(common.LeftPadBytes(o.Otoken.Bytes(), 32))
	}
	var k Key
	copy(k[:], h.Sum(nil))
	return k
}

func (k Key) Hex() string {
	return "0x" + hex.EncodeToString(k[:])
}

func (k Key) String() string { return k.Hex() }

// KeySet tracks keys already taken by a batch being planned
type KeySet map[Key]struct{}

func NewKeySet() KeySet { return make(KeySet) }

func (s KeySet) Has(k Key) bool {
	_, ok := s[k]
	return ok
}

func (s KeySet) Add(k Key) { s[k] = struct{}{} }
