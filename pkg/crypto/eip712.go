package crypto

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// EIP712Domain binds batch signatures to one chain and one redeemer contract
type EIP712Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address // the redeemer
}

// DefaultDomain returns the domain for the given chain and redeemer
func DefaultDomain(chainID *big.Int, redeemer common.Address) EIP712Domain {
	return EIP712Domain{
		Name:              "AutoRedeem",
		Version:           "1",
		ChainID:           chainID,
		VerifyingContract: redeemer,
	}
}

// BatchEIP712 is the typed message the keeper signs for every published batch
type BatchEIP712 struct {
	Seq             uint64
	Block           uint64 // 0 when reads were not pinned
	InstructionHash common.Hash
}

// BatchSigner signs batch envelopes as EIP-712 typed data
type BatchSigner struct {
	signer *Signer
	domain EIP712Domain
}

func NewBatchSigner(signer *Signer, domain EIP712Domain) *BatchSigner {
	return &BatchSigner{signer: signer, domain: domain}
}

// Address returns the signing address executors should trust
func (b *BatchSigner) Address() common.Address {
	return b.signer.Address()
}

// SignBatch signs (seq, block, instruction hash)
func (b *BatchSigner) SignBatch(seq, block uint64, instructionHash common.Hash) ([]byte, error) {
	hash, err := HashBatch(b.domain, BatchEIP712{Seq: seq, Block: block, InstructionHash: instructionHash})
	if err != nil {
		return nil, fmt.Errorf("failed to hash batch: %w", err)
	}
	signature, err := b.signer.Sign(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to sign batch: %w", err)
	}
	return signature, nil
}

// HashBatch hashes a batch according to EIP-712
// Returns the digest that should be signed
func HashBatch(domain EIP712Domain, batch BatchEIP712) ([]byte, error) {
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Batch": []apitypes.Type{
				{Name: "seq", Type: "uint256"},
				{Name: "block", Type: "uint256"},
				{Name: "instructionHash", Type: "bytes32"},
			},
		},
		PrimaryType: "Batch",
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           (*math.HexOrDecimal256)(domain.ChainID),
			VerifyingContract: domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"seq":             new(big.Int).SetUint64(batch.Seq).String(),
			"block":           new(big.Int).SetUint64(batch.Block).String(),
			"instructionHash": batch.InstructionHash.Hex(),
		},
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}
	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}

	// Final digest: keccak256("\x19\x01" || domainSeparator || typedDataHash)
	rawData := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(typedDataHash)))
	return crypto.Keccak256Hash(rawData).Bytes(), nil
}

// RecoverBatchSigner recovers the address that signed a batch
func RecoverBatchSigner(domain EIP712Domain, batch BatchEIP712, signature []byte) (common.Address, error) {
	hash, err := HashBatch(domain, batch)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to hash batch: %w", err)
	}
	return RecoverAddress(hash, signature)
}
