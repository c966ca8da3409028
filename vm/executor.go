package vm

import (
	"fmt"
	"math"

	"github.com/tolelom/tolarena/core"
	"github.com/tolelom/tolarena/events"
)

// Context is passed to every Handler and provides access to the ledger
// state, the triggering transaction and the execution clock. Events are
// buffered and only published once the transaction has committed.
type Context struct {
	State  core.State
	Tx     *core.Transaction
	Height int64
	Time   int64 // unix seconds

	events []events.Event
	result map[string]any
}

// Emit buffers an event for publication after commit.
func (c *Context) Emit(typ events.EventType, data map[string]any) {
	c.events = append(c.events, events.Event{
		Type:   typ,
		TxID:   c.Tx.ID,
		Height: c.Height,
		Data:   data,
	})
}

// SetResult records a value returned to the client in the receipt.
func (c *Context) SetResult(key string, val any) {
	if c.result == nil {
		c.result = make(map[string]any)
	}
	c.result[key] = val
}

// Events returns the events buffered so far.
func (c *Context) Events() []events.Event { return c.events }

// Outcome is what a successfully applied transaction produced.
type Outcome struct {
	Events []events.Event
	Result map[string]any
}

// Executor applies transactions to the state using the global Handler registry.
type Executor struct {
	state core.State
}

// NewExecutor creates an Executor over state.
func NewExecutor(state core.State) *Executor {
	return &Executor{state: state}
}

// ExecuteTx verifies and executes a single transaction with snapshot/rollback.
// On error every write of the transaction is reverted and no events escape.
func (e *Executor) ExecuteTx(height, now int64, tx *core.Transaction) (*Outcome, error) {
	if err := tx.Verify(); err != nil {
		return nil, fmt.Errorf("signature: %w", err)
	}

	snapID, err := e.state.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	ctx := &Context{State: e.state, Tx: tx, Height: height, Time: now}
	if err := e.applyTx(ctx); err != nil {
		if revertErr := e.state.RevertToSnapshot(snapID); revertErr != nil {
			return nil, fmt.Errorf("revert snapshot after tx failure: %w (revert: %v)", err, revertErr)
		}
		return nil, err
	}

	ctx.Emit(events.EventTxExecuted, map[string]any{"type": string(tx.Type), "from": tx.From})
	return &Outcome{Events: ctx.events, Result: ctx.result}, nil
}

// applyTx moves the fee to the treasury, increments the nonce, then
// dispatches to the handler.
func (e *Executor) applyTx(ctx *Context) error {
	tx := ctx.Tx
	acc, err := e.state.GetAccount(tx.From)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}
	if acc.Nonce != tx.Nonce {
		return fmt.Errorf("invalid nonce: expected %d got %d", acc.Nonce, tx.Nonce)
	}
	if acc.Nonce == math.MaxUint64 {
		return fmt.Errorf("nonce overflow for account %s", tx.From)
	}
	if tx.Fee > 0 {
		bal, err := e.state.GetBalance(core.NativeToken, tx.From)
		if err != nil {
			return err
		}
		if bal < tx.Fee {
			return fmt.Errorf("fee: have %d need %d: %w", bal, tx.Fee, core.ErrInsufficientBalance)
		}
		treasury, err := e.state.GetBalance(core.NativeToken, core.TreasuryAddress)
		if err != nil {
			return err
		}
		if treasury > math.MaxUint64-tx.Fee {
			return fmt.Errorf("treasury balance overflow")
		}
		if err := e.state.SetBalance(core.NativeToken, tx.From, bal-tx.Fee); err != nil {
			return err
		}
		if err := e.state.SetBalance(core.NativeToken, core.TreasuryAddress, treasury+tx.Fee); err != nil {
			return err
		}
	}
	acc.Nonce++
	if err := e.state.SetAccount(acc); err != nil {
		return err
	}
	return globalRegistry.Execute(tx.Type, ctx, tx.Payload)
}
