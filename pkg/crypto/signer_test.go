package crypto

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	eth_crypto "github.com/ethereum/go-ethereum/crypto"
)

func TestGenerateKey(t *testing.T) {
	signer, err := GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	if signer.Address() == (common.Address{}) {
		t.Error("generated zero address")
	}

	// Check private key hex is 64 chars (32 bytes)
	if privHex := signer.PrivateKeyHex(); len(privHex) != 64 {
		t.Errorf("private key hex length = %d, want 64", len(privHex))
	}
}

func TestFromPrivateKeyHex(t *testing.T) {
	signer1, _ := GenerateKey()
	privHex := signer1.PrivateKeyHex()

	for _, in := range []string{privHex, "0x" + privHex} {
		signer2, err := FromPrivateKeyHex(in)
		if err != nil {
			t.Fatalf("failed to load key %q: %v", in[:4], err)
		}
		if signer2.Address() != signer1.Address() {
			t.Errorf("address = %s, want %s", signer2.Address().Hex(), signer1.Address().Hex())
		}
	}

	if _, err := FromPrivateKeyHex("0xzz"); err == nil {
		t.Error("expected error for malformed key")
	}
}

func TestSignAndVerify(t *testing.T) {
	signer, _ := GenerateKey()
	hash := eth_crypto.Keccak256Hash([]byte("processOrders")).Bytes()

	signature, err := signer.Sign(hash)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	// Signature should be 65 bytes [R || S || V]
	if len(signature) != 65 {
		t.Errorf("signature length = %d, want 65", len(signature))
	}
	if !VerifySignature(signer.Address(), hash, signature) {
		t.Error("signature verification failed")
	}

	wrongAddr := common.HexToAddress("0x0000000000000000000000000000000000000001")
	if VerifySignature(wrongAddr, hash, signature) {
		t.Error("signature should not verify with wrong address")
	}

	if _, err := signer.Sign([]byte("short")); err == nil {
		t.Error("expected error signing a non-32-byte hash")
	}
}

func TestInvalidSignature(t *testing.T) {
	signer, _ := GenerateKey()
	hash := common.BytesToHash([]byte("test")).Bytes()

	if VerifySignature(signer.Address(), hash, []byte{1, 2, 3}) {
		t.Error("invalid signature should not verify")
	}
	if VerifySignature(signer.Address(), []byte("short"), make([]byte, 65)) {
		t.Error("invalid hash should not verify")
	}
}

func TestBatchSigner(t *testing.T) {
	key, _ := GenerateKey()
	redeemer := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	domain := DefaultDomain(big.NewInt(1), redeemer)
	bs := NewBatchSigner(key, domain)

	batch := BatchEIP712{Seq: 7, Block: 19_000_000, InstructionHash: eth_crypto.Keccak256Hash([]byte{0x01})}
	sig, err := bs.SignBatch(batch.Seq, batch.Block, batch.InstructionHash)
	if err != nil {
		t.Fatalf("SignBatch: %v", err)
	}

	got, err := RecoverBatchSigner(domain, batch, sig)
	if err != nil {
		t.Fatalf("RecoverBatchSigner: %v", err)
	}
	if got != bs.Address() {
		t.Errorf("recovered %s, want %s", got.Hex(), bs.Address().Hex())
	}

	tests := []struct {
		name   string
		domain EIP712Domain
		batch  BatchEIP712
	}{
		{"other seq", domain, BatchEIP712{Seq: 8, Block: batch.Block, InstructionHash: batch.InstructionHash}},
		{"other instruction", domain, BatchEIP712{Seq: 7, Block: batch.Block}},
		{"other chain", DefaultDomain(big.NewInt(5), redeemer), batch},
		{"other redeemer", DefaultDomain(big.NewInt(1), common.HexToAddress("0xbb")), batch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, err := RecoverBatchSigner(tt.domain, tt.batch, sig)
			if err == nil && addr == bs.Address() {
				t.Error("signature must not verify for a different batch or domain")
			}
		})
	}
}
