package economy

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/tolelom/tolarena/core"
	"github.com/tolelom/tolarena/crypto"
	"github.com/tolelom/tolarena/events"
	"github.com/tolelom/tolarena/vm"
)

func init() {
	vm.Register(core.TxTransfer, handleTransfer)
}

func handleTransfer(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TransferPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode transfer payload: %w", err)
	}
	if p.Amount == 0 {
		return fmt.Errorf("transfer amount must be > 0")
	}
	if !crypto.IsAddress(p.To) {
		return fmt.Errorf("transfer to: invalid address %q", p.To)
	}
	token := p.Token
	if token == "" {
		token = core.NativeToken
	}

	if err := Move(ctx.State, token, ctx.Tx.From, p.To, p.Amount); err != nil {
		return err
	}

	ctx.Emit(events.EventTokenTransfer, map[string]any{
		"token":  token,
		"from":   ctx.Tx.From,
		"to":     p.To,
		"amount": p.Amount,
	})
	return nil
}

// Move transfers amount of token from one balance to another. It is the only
// primitive that changes balances; it never creates or destroys units.
func Move(state core.State, token, from, to string, amount uint64) error {
	if amount == 0 || from == to {
		return nil
	}
	src, err := state.GetBalance(token, from)
	if err != nil {
		return err
	}
	if src < amount {
		return fmt.Errorf("%s of %s: have %d, need %d: %w", token, from, src, amount, core.ErrInsufficientBalance)
	}
	dst, err := state.GetBalance(token, to)
	if err != nil {
		return err
	}
	if dst > math.MaxUint64-amount {
		return fmt.Errorf("%s balance overflow for %s", token, to)
	}
	if err := state.SetBalance(token, from, src-amount); err != nil {
		return err
	}
	return state.SetBalance(token, to, dst+amount)
}
