package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/tolelom/tolarena/core"
	"github.com/tolelom/tolarena/crypto"
	"github.com/tolelom/tolarena/vm/modules/economy"
	"github.com/tolelom/tolarena/vm/modules/session"
)

// ApplyGenesis writes the genesis section into a fresh state and commits it.
// The owner record marks an initialised ledger: if one exists nothing is
// written and applied is false.
func ApplyGenesis(cfg *Config, state core.State) (applied bool, err error) {
	_, err = state.GetOwner()
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return false, fmt.Errorf("read owner: %w", err)
	}

	snap, err := state.Snapshot()
	if err != nil {
		return false, fmt.Errorf("snapshot: %w", err)
	}
	if err := writeGenesis(cfg.Genesis, state); err != nil {
		if revertErr := state.RevertToSnapshot(snap); revertErr != nil {
			return false, fmt.Errorf("%w (revert: %v)", err, revertErr)
		}
		return false, err
	}
	if err := state.Commit(); err != nil {
		if revertErr := state.RevertToSnapshot(snap); revertErr != nil {
			return false, fmt.Errorf("commit genesis: %w (revert: %v)", err, revertErr)
		}
		return false, fmt.Errorf("commit genesis: %w", err)
	}
	return true, nil
}

// writeGenesis buffers every genesis record. A failure leaves partial writes
// for the caller to revert.
func writeGenesis(g GenesisConfig, state core.State) error {
	if !crypto.IsAddress(g.Owner) {
		return fmt.Errorf("genesis owner %q is not an address", g.Owner)
	}
	if err := state.SetOwner(g.Owner); err != nil {
		return err
	}

	for _, t := range g.Tokens {
		if _, _, err := economy.UpsertToken(state, t.Token, t.FeeBP, !t.Disabled); err != nil {
			return fmt.Errorf("genesis token %q: %w", t.Token, err)
		}
	}

	// Sorted so the genesis state root does not depend on map order.
	tokens := make([]string, 0, len(g.Alloc))
	for token := range g.Alloc {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	for _, token := range tokens {
		addrs := make([]string, 0, len(g.Alloc[token]))
		for addr := range g.Alloc[token] {
			addrs = append(addrs, addr)
		}
		sort.Strings(addrs)
		for _, addr := range addrs {
			if !crypto.IsAddress(addr) {
				return fmt.Errorf("genesis alloc %q is not an address", addr)
			}
			if err := state.SetBalance(token, addr, g.Alloc[token][addr]); err != nil {
				return err
			}
		}
	}

	for _, gc := range g.Games {
		_, err := session.InitGame(state, core.GameInitPayload{
			ID:              gc.ID,
			Rules:           gc.Rules,
			MaxRandomNumber: gc.MaxRandomNumber,
			Oracle:          gc.Oracle,
			TurnTimeout:     gc.TurnTimeout,
		})
		if err != nil {
			return fmt.Errorf("genesis game %q: %w", gc.ID, err)
		}
	}

	return nil
}
