package economy

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/tolarena/core"
	"github.com/tolelom/tolarena/crypto"
	"github.com/tolelom/tolarena/events"
	"github.com/tolelom/tolarena/vm"
)

func init() {
	vm.Register(core.TxUpdateSupportedTokens, handleUpdateSupportedTokens)
	vm.Register(core.TxWithdraw, handleWithdraw)
}

func handleUpdateSupportedTokens(ctx *vm.Context, payload json.RawMessage) error {
	if err := RequireOwner(ctx.State, ctx.Tx.From); err != nil {
		return err
	}
	var p core.UpdateSupportedTokensPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode update_supported_tokens payload: %w", err)
	}
	t, added, err := UpsertToken(ctx.State, p.Token, p.FeeBasisPoints, p.Enabled)
	if err != nil {
		return err
	}

	ctx.Emit(events.EventTokenRegistered, map[string]any{
		"token":            t.Token,
		"fee_basis_points": t.FeeBasisPoints,
		"enabled":          t.Enabled,
		"added":            added,
	})
	return nil
}

// UpsertToken appends token to the supported list or updates the fee and
// enabled flag of an existing entry. Entries are never removed.
func UpsertToken(state core.State, token string, feeBP uint16, enabled bool) (*core.SupportedToken, bool, error) {
	if token == "" {
		return nil, false, fmt.Errorf("token required: %w", core.ErrWrongInitParams)
	}
	if feeBP > core.FeeMax {
		return nil, false, fmt.Errorf("fee %d > %d: %w", feeBP, core.FeeMax, core.ErrInvalidFee)
	}

	t, err := state.GetToken(token)
	added := false
	switch {
	case errors.Is(err, core.ErrNotFound):
		list, err := state.ListTokens()
		if err != nil {
			return nil, false, err
		}
		t = &core.SupportedToken{Token: token, Index: len(list)}
		added = true
	case err != nil:
		return nil, false, fmt.Errorf("load token %q: %w", token, err)
	}
	t.FeeBasisPoints = feeBP
	t.Enabled = enabled
	if err := state.SetToken(t); err != nil {
		return nil, false, err
	}
	return t, added, nil
}

func handleWithdraw(ctx *vm.Context, payload json.RawMessage) error {
	if err := RequireOwner(ctx.State, ctx.Tx.From); err != nil {
		return err
	}
	var p core.WithdrawPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode withdraw payload: %w", err)
	}
	if !crypto.IsAddress(p.Beneficiary) {
		return fmt.Errorf("withdraw beneficiary: invalid address %q", p.Beneficiary)
	}
	if p.Token == "" {
		p.Token = core.NativeToken
	}

	available, err := ctx.State.GetBalance(p.Token, core.TreasuryAddress)
	if err != nil {
		return err
	}
	amount := available
	if p.Amount != nil {
		amount = *p.Amount
	}
	if amount == 0 {
		return fmt.Errorf("nothing to withdraw for %s", p.Token)
	}
	if err := Move(ctx.State, p.Token, core.TreasuryAddress, p.Beneficiary, amount); err != nil {
		return fmt.Errorf("withdraw: %w", err)
	}

	ctx.Emit(events.EventWithdraw, map[string]any{
		"token":       p.Token,
		"beneficiary": p.Beneficiary,
		"amount":      amount,
	})
	ctx.SetResult("amount", amount)
	return nil
}
