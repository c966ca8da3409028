package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tolelom/tolarena/core"
	"github.com/tolelom/tolarena/events"
	"github.com/tolelom/tolarena/game"
	"github.com/tolelom/tolarena/oracle"
	"github.com/tolelom/tolarena/vm"
	"github.com/tolelom/tolarena/vm/modules/economy"
)

func handleGameInit(ctx *vm.Context, payload json.RawMessage) error {
	if err := economy.RequireOwner(ctx.State, ctx.Tx.From); err != nil {
		return err
	}
	var p core.GameInitPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode game_init payload: %w", err)
	}
	g, err := InitGame(ctx.State, p)
	if err != nil {
		return err
	}

	ctx.Emit(events.EventGameInitialized, map[string]any{
		"game":              g.ID,
		"rules":             g.Rules,
		"max_random_number": g.MaxRandomNumber,
		"oracle":            g.Oracle,
	})
	return nil
}

// InitGame registers a new game instance. Existing ids are never overwritten.
func InitGame(state core.State, p core.GameInitPayload) (*core.GameInstance, error) {
	if p.ID == "" || strings.Contains(p.ID, ":") {
		return nil, fmt.Errorf("game id %q: %w", p.ID, core.ErrWrongInitParams)
	}
	if _, ok := game.Lookup(p.Rules); !ok {
		return nil, fmt.Errorf("rules %q: %w", p.Rules, core.ErrUnknownRules)
	}
	if p.MaxRandomNumber == 0 {
		return nil, fmt.Errorf("max_random_number must be > 0: %w", core.ErrWrongInitParams)
	}
	if p.Oracle != "" && !oracle.IsAddress(p.Oracle) {
		return nil, fmt.Errorf("oracle %q: %w", p.Oracle, core.ErrWrongInitParams)
	}
	if p.TurnTimeout < 0 {
		return nil, fmt.Errorf("turn_timeout must be >= 0: %w", core.ErrWrongInitParams)
	}

	_, err := state.GetGame(p.ID)
	if err == nil {
		return nil, fmt.Errorf("game %q already exists", p.ID)
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("check game %q: %w", p.ID, err)
	}

	g := &core.GameInstance{
		ID:              p.ID,
		Rules:           p.Rules,
		MaxRandomNumber: p.MaxRandomNumber,
		Oracle:          strings.ToLower(p.Oracle),
		TurnTimeout:     p.TurnTimeout,
		Initialized:     true,
	}
	if err := state.SetGame(g); err != nil {
		return nil, err
	}
	return g, nil
}

func loadGame(state core.State, id string) (*core.GameInstance, error) {
	g, err := state.GetGame(id)
	if errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("game %q: %w", id, core.ErrNotInitialized)
	}
	if err != nil {
		return nil, err
	}
	if !g.Initialized {
		return nil, fmt.Errorf("game %q: %w", id, core.ErrNotInitialized)
	}
	return g, nil
}

func rulesFor(g *core.GameInstance) (game.Rules, error) {
	r, ok := game.Lookup(g.Rules)
	if !ok {
		return nil, fmt.Errorf("rules %q: %w", g.Rules, core.ErrUnknownRules)
	}
	return r, nil
}
