package p2p

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/uhyunpark/autoredeem/pkg/keeper"
)

// wireVersion is bumped on any incompatible change to BatchWire
const wireVersion = 1

func init() {
	gob.Register(BatchWire{})
}

type BatchWire struct {
	Version  uint8
	Envelope keeper.Envelope
}

func encodeEnvelope(env keeper.Envelope) ([]byte, error) {
	return gobEncode(BatchWire{Version: wireVersion, Envelope: env})
}

func decodeEnvelope(b []byte) (keeper.Envelope, error) {
	var w BatchWire
	if err := gobDecode(b, &w); err != nil {
		return keeper.Envelope{}, err
	}
	if w.Version != wireVersion {
		return keeper.Envelope{}, fmt.Errorf("unsupported wire version %d", w.Version)
	}
	return w.Envelope, nil
}

func gobEncode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
func gobDecode(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}
