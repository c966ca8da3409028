package economy

import (
	"errors"
	"fmt"

	"github.com/tolelom/tolarena/core"
)

// Escrow locks a stake by moving it from the player into the escrow account.
func Escrow(state core.State, token, from string, amount uint64) error {
	if err := Move(state, token, from, core.EscrowAddress, amount); err != nil {
		return fmt.Errorf("escrow: %w", err)
	}
	return nil
}

// Release pays out of the escrow account. It fails rather than mint when the
// escrow is short.
func Release(state core.State, token, to string, amount uint64) error {
	if err := Move(state, token, core.EscrowAddress, to, amount); err != nil {
		return fmt.Errorf("release: %w", err)
	}
	return nil
}

// IsSupportedToken reports whether token is registered and enabled.
func IsSupportedToken(state core.State, token string) (bool, error) {
	t, err := state.GetToken(token)
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return t.Enabled, nil
}

// TokenFee returns the fee in basis points charged on winner payouts.
func TokenFee(state core.State, token string) (uint16, error) {
	ok, err := IsSupportedToken(state, token)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("token %q: %w", token, core.ErrUnsupportedToken)
	}
	t, err := state.GetToken(token)
	if err != nil {
		return 0, err
	}
	return t.FeeBasisPoints, nil
}

// RequireOwner fails with ErrNotOwner unless caller is the ledger owner.
func RequireOwner(state core.State, caller string) error {
	owner, err := state.GetOwner()
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("no owner configured: %w", core.ErrNotOwner)
	}
	if err != nil {
		return err
	}
	if owner != caller {
		return core.ErrNotOwner
	}
	return nil
}
