package testutil

import (
	"testing"

	"github.com/tolelom/tolarena/core"
	"github.com/tolelom/tolarena/crypto"
)

// ChainID is the chain identifier used by test transactions.
const ChainID = "tolarena-test"

// Key is a test signer.
type Key struct {
	Priv crypto.PrivateKey
	Addr string
}

// NewKey generates a fresh signer or fails the test.
func NewKey(t testing.TB) Key {
	t.Helper()
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return Key{Priv: priv, Addr: pub.Hex()}
}

// SignedTx builds and signs a zero-fee transaction.
func SignedTx(t testing.TB, k Key, typ core.TxType, nonce uint64, payload any) *core.Transaction {
	t.Helper()
	tx, err := core.NewTransaction(ChainID, typ, k.Addr, nonce, 0, payload)
	if err != nil {
		t.Fatalf("build tx: %v", err)
	}
	tx.Sign(k.Priv)
	return tx
}

// Fund credits amount of token to addr directly in state.
func Fund(t testing.TB, state core.State, token, addr string, amount uint64) {
	t.Helper()
	bal, err := state.GetBalance(token, addr)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if err := state.SetBalance(token, addr, bal+amount); err != nil {
		t.Fatalf("set balance: %v", err)
	}
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }
