package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/big"
	"os"
	"slices"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/autoredeem/pkg/app/resolver"
	"github.com/uhyunpark/autoredeem/pkg/crypto"
	"github.com/uhyunpark/autoredeem/pkg/keeper"
)

var (
	errDigest   = errors.New("digest does not match instruction")
	errOrderIDs = errors.New("order ids do not match instruction")
	errSigner   = errors.New("recovered signer does not match")
	errUnsigned = errors.New("envelope is unsigned")
)

func main() {
	keygen := flag.Bool("keygen", false, "generate a signer key for SIGNER_PRIVATE_KEY and exit")
	file := flag.String("file", "-", "envelope JSON file, - for stdin")
	chainID := flag.Int64("chain-id", 1, "chain id of the signing domain")
	redeemer := flag.String("redeemer", "", "redeemer address of the signing domain")
	expect := flag.String("signer", "", "trusted keeper address (default: the envelope's signer field)")
	flag.Parse()

	if *keygen {
		signer, err := crypto.GenerateKey()
		if err != nil {
			fail(err)
		}
		fmt.Printf("Address: %s\n", signer.Address().Hex())
		fmt.Printf("Private Key: %s (KEEP SECRET!)\n", signer.PrivateKeyHex())
		return
	}

	if !common.IsHexAddress(*redeemer) {
		fail(fmt.Errorf("-redeemer must be an address, got %q", *redeemer))
	}
	env, err := readEnvelope(*file)
	if err != nil {
		fail(err)
	}

	trusted := env.Signer
	if *expect != "" {
		if !common.IsHexAddress(*expect) {
			fail(fmt.Errorf("-signer must be an address, got %q", *expect))
		}
		trusted = common.HexToAddress(*expect)
	}

	fmt.Printf("Envelope: %s\n", env)
	domain := crypto.DefaultDomain(big.NewInt(*chainID), common.HexToAddress(*redeemer))
	ins, err := verify(env, domain, trusted)
	if err != nil {
		fail(err)
	}
	fmt.Printf("  Orders: %v\n", ins.OrderIDs)
	fmt.Printf("  Can execute: %v\n", env.CanExecute)
	fmt.Printf("  Block: %d\n", env.Block)
	fmt.Printf("  Signer: %s\n", trusted.Hex())
	fmt.Println("Signature valid")
}

func readEnvelope(path string) (keeper.Envelope, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return keeper.Envelope{}, err
		}
		defer f.Close()
		r = f
	}
	var env keeper.Envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return keeper.Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// verify checks an envelope the way an executor would before submitting it:
// the digest covers the instruction, the instruction carries the advertised
// orders, and the signature recovers to the trusted keeper.
func verify(env keeper.Envelope, domain crypto.EIP712Domain, trusted common.Address) (resolver.Instruction, error) {
	if keeper.Digest(env.Instruction) != env.Digest {
		return resolver.Instruction{}, errDigest
	}
	ins, err := resolver.DecodeInstruction(env.Instruction)
	if err != nil {
		return resolver.Instruction{}, err
	}
	ids := make([]uint64, len(ins.OrderIDs))
	for i, id := range ins.OrderIDs {
		ids[i] = id.Uint64()
	}
	if !slices.Equal(ids, env.OrderIDs) {
		return resolver.Instruction{}, errOrderIDs
	}
	if len(env.Signature) == 0 {
		return resolver.Instruction{}, errUnsigned
	}
	got, err := crypto.RecoverBatchSigner(domain, crypto.BatchEIP712{
		Seq:             env.Seq,
		Block:           env.Block,
		InstructionHash: env.Digest,
	}, env.Signature)
	if err != nil {
		return resolver.Instruction{}, err
	}
	if got != trusted {
		return resolver.Instruction{}, fmt.Errorf("%w: got %s, want %s", errSigner, got.Hex(), trusted.Hex())
	}
	return ins, nil
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
