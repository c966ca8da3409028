// Package oracle checks the provenance of random numbers fed into game moves.
package oracle

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/tolelom/tolarena/core"
	"github.com/tolelom/tolarena/crypto"
)

// Binding ties a random number to the exact move it was issued for, so a
// signed value cannot be replayed into another session, turn or position.
type Binding struct {
	Game      string
	SessionID uint64
	Nonce     uint64
	Index     uint32
}

// Verifier decides whether a random number is acceptable for a binding.
type Verifier interface {
	Verify(b Binding, rn core.RandomNumber) error
}

// ForGame returns the verifier configured for a game instance. Games without
// an oracle address accept any value: whoever submits the move is trusted to
// supply fair randomness.
func ForGame(g *core.GameInstance) (Verifier, error) {
	if g.Oracle == "" {
		return NoopVerifier{}, nil
	}
	return NewSecp256k1Verifier(g.Oracle)
}

// NoopVerifier accepts every value.
type NoopVerifier struct{}

func (NoopVerifier) Verify(Binding, core.RandomNumber) error { return nil }

// Secp256k1Verifier recovers the signer of an Ethereum-style v/r/s signature
// and compares it with the configured oracle address.
type Secp256k1Verifier struct {
	address string // lowercase 0x-prefixed
}

// NewSecp256k1Verifier validates and normalizes the oracle address.
func NewSecp256k1Verifier(address string) (*Secp256k1Verifier, error) {
	if !IsAddress(address) {
		return nil, fmt.Errorf("invalid oracle address %q", address)
	}
	return &Secp256k1Verifier{address: strings.ToLower(address)}, nil
}

// IsAddress reports whether s is a 0x-prefixed 20-byte hex address.
func IsAddress(s string) bool {
	if len(s) != 42 || !strings.HasPrefix(s, "0x") {
		return false
	}
	_, err := hex.DecodeString(s[2:])
	return err == nil
}

var errBadSignature = errors.New("oracle signature mismatch")

func (v *Secp256k1Verifier) Verify(b Binding, rn core.RandomNumber) error {
	sig, err := compactSig(rn)
	if err != nil {
		return err
	}
	pub, _, err := ecdsa.RecoverCompact(sig, Digest(b, rn.Value))
	if err != nil {
		return fmt.Errorf("recover signer: %w", err)
	}
	if Address(pub) != v.address {
		return errBadSignature
	}
	return nil
}

// Digest is the message an oracle signs:
// keccak256(game ‖ session_id ‖ nonce ‖ index ‖ value), integers big-endian.
func Digest(b Binding, value uint64) []byte {
	buf := make([]byte, 0, 8+8+4+8)
	buf = binary.BigEndian.AppendUint64(buf, b.SessionID)
	buf = binary.BigEndian.AppendUint64(buf, b.Nonce)
	buf = binary.BigEndian.AppendUint32(buf, b.Index)
	buf = binary.BigEndian.AppendUint64(buf, value)
	return crypto.Keccak256([]byte(b.Game), buf)
}

// Address derives the Ethereum-style address of pub.
func Address(pub *secp256k1.PublicKey) string {
	h := crypto.Keccak256(pub.SerializeUncompressed()[1:])
	return "0x" + hex.EncodeToString(h[12:])
}

// Sign produces a random number signed for b. It is what a trusted oracle
// service runs; the node only ever verifies.
func Sign(priv *secp256k1.PrivateKey, b Binding, value uint64) core.RandomNumber {
	sig := ecdsa.SignCompact(priv, Digest(b, value), false)
	return core.RandomNumber{
		Value: value,
		V:     sig[0],
		R:     hex.EncodeToString(sig[1:33]),
		S:     hex.EncodeToString(sig[33:65]),
	}
}

// compactSig rebuilds the [header‖R‖S] form expected by RecoverCompact.
// v may be 27/28 or the raw recovery id 0/1.
func compactSig(rn core.RandomNumber) ([]byte, error) {
	var recID byte
	switch {
	case rn.V == 27 || rn.V == 28:
		recID = rn.V - 27
	case rn.V <= 1:
		recID = rn.V
	default:
		return nil, fmt.Errorf("invalid v %d", rn.V)
	}
	r, err := scalar(rn.R)
	if err != nil {
		return nil, fmt.Errorf("r: %w", err)
	}
	s, err := scalar(rn.S)
	if err != nil {
		return nil, fmt.Errorf("s: %w", err)
	}
	sig := make([]byte, 0, 65)
	sig = append(sig, 27+recID)
	sig = append(sig, r...)
	return append(sig, s...), nil
}

func scalar(h string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(h, "0x"))
	if err != nil {
		return nil, err
	}
	if len(b) == 0 || len(b) > 32 {
		return nil, fmt.Errorf("want 1..32 bytes, got %d", len(b))
	}
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out, nil
}
