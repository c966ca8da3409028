package vm

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolarena/core"
	"github.com/tolelom/tolarena/events"
	"github.com/tolelom/tolarena/internal/testutil"
)

const (
	txTestMark core.TxType = "test_mark"
	txTestFail core.TxType = "test_fail"
)

var errBoom = errors.New("boom")

func init() {
	Register(txTestMark, func(ctx *Context, _ json.RawMessage) error {
		if err := ctx.State.SetOwner(ctx.Tx.From); err != nil {
			return err
		}
		ctx.Emit(events.EventPayout, map[string]any{"n": 1})
		ctx.SetResult("marked", true)
		return nil
	})
	Register(txTestFail, func(ctx *Context, _ json.RawMessage) error {
		_ = ctx.State.SetOwner(ctx.Tx.From)
		ctx.Emit(events.EventPayout, map[string]any{"n": 1})
		return errBoom
	})
}

func signedWithFee(t *testing.T, k testutil.Key, typ core.TxType, nonce, fee uint64) *core.Transaction {
	t.Helper()
	tx, err := core.NewTransaction(testutil.ChainID, typ, k.Addr, nonce, fee, struct{}{})
	require.NoError(t, err)
	tx.Sign(k.Priv)
	return tx
}

func TestExecuteChargesFeeAndBuffersEvents(t *testing.T) {
	state := testutil.NewStateDB()
	k := testutil.NewKey(t)
	testutil.Fund(t, state, core.NativeToken, k.Addr, 10)

	out, err := NewExecutor(state).ExecuteTx(1, 100, signedWithFee(t, k, txTestMark, 0, 3))
	require.NoError(t, err)

	require.Len(t, out.Events, 2)
	assert.Equal(t, events.EventPayout, out.Events[0].Type)
	assert.Equal(t, events.EventTxExecuted, out.Events[1].Type)
	assert.Equal(t, int64(1), out.Events[0].Height)
	assert.Equal(t, true, out.Result["marked"])

	bal, _ := state.GetBalance(core.NativeToken, k.Addr)
	treasury, _ := state.GetBalance(core.NativeToken, core.TreasuryAddress)
	assert.Equal(t, uint64(7), bal)
	assert.Equal(t, uint64(3), treasury)
	acc, _ := state.GetAccount(k.Addr)
	assert.Equal(t, uint64(1), acc.Nonce)
}

func TestExecuteRevertsEverythingOnFailure(t *testing.T) {
	state := testutil.NewStateDB()
	k := testutil.NewKey(t)
	testutil.Fund(t, state, core.NativeToken, k.Addr, 10)
	root := state.ComputeRoot()

	out, err := NewExecutor(state).ExecuteTx(1, 100, signedWithFee(t, k, txTestFail, 0, 3))
	require.ErrorIs(t, err, errBoom)
	assert.Nil(t, out)
	assert.Equal(t, root, state.ComputeRoot(), "fee, nonce and handler writes rolled back")

	_, err = state.GetOwner()
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestExecuteRejects(t *testing.T) {
	state := testutil.NewStateDB()
	k := testutil.NewKey(t)
	exec := NewExecutor(state)

	_, err := exec.ExecuteTx(1, 0, signedWithFee(t, k, txTestMark, 5, 0))
	assert.ErrorContains(t, err, "invalid nonce")

	_, err = exec.ExecuteTx(1, 0, signedWithFee(t, k, txTestMark, 0, 1))
	assert.ErrorIs(t, err, core.ErrInsufficientBalance)

	_, err = exec.ExecuteTx(1, 0, signedWithFee(t, k, "nope", 0, 0))
	assert.ErrorContains(t, err, "no handler")

	tampered := signedWithFee(t, k, txTestMark, 0, 0)
	tampered.Nonce = 1
	_, err = exec.ExecuteTx(1, 0, tampered)
	assert.ErrorContains(t, err, "signature")

	acc, _ := state.GetAccount(k.Addr)
	assert.Zero(t, acc.Nonce)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	r.Register(txTestMark, func(*Context, json.RawMessage) error { return nil })
	assert.Panics(t, func() {
		r.Register(txTestMark, func(*Context, json.RawMessage) error { return nil })
	})
	assert.Contains(t, RegisteredTypes(), txTestMark)
}
