// Package session runs the lifecycle of stake-backed game sessions:
// creation and joining, turn-ordered play through a rules plugin, and
// settlement of escrowed stakes when a session finishes.
package session

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/tolarena/core"
	"github.com/tolelom/tolarena/crypto"
	"github.com/tolelom/tolarena/events"
	"github.com/tolelom/tolarena/vm"
	"github.com/tolelom/tolarena/vm/modules/economy"
)

func init() {
	vm.Register(core.TxGameInit, handleGameInit)
	vm.Register(core.TxCreateSession, handleCreateSession)
	vm.Register(core.TxJoinSession, handleJoinSession)
	vm.Register(core.TxPlay, handlePlay)
	vm.Register(core.TxOwnerFinishSession, handleOwnerFinish)
	vm.Register(core.TxPlayerFinishSession, handlePlayerFinish)
	vm.Register(core.TxClaimTimeout, handleClaimTimeout)
}

func handleCreateSession(ctx *vm.Context, payload json.RawMessage) error {
	var p core.CreateSessionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode create_session payload: %w", err)
	}
	if p.RequiredPlayers != 2 && p.RequiredPlayers != 4 {
		return fmt.Errorf("required_players %d: %w", p.RequiredPlayers, core.ErrInvalidPlayerCount)
	}
	if (p.Token == nil) != (p.Amount == nil) {
		return fmt.Errorf("token and amount go together: %w", core.ErrWrongInitParams)
	}
	paid, free := p.Token != nil, len(p.Players) > 0
	if paid == free {
		return fmt.Errorf("exactly one of paid or free mode: %w", core.ErrInvalidGameMode)
	}
	if free && len(p.Players) != int(p.RequiredPlayers)-1 {
		return fmt.Errorf("need %d co-players, got %d: %w", p.RequiredPlayers-1, len(p.Players), core.ErrWrongInitParams)
	}

	g, err := loadGame(ctx.State, p.Game)
	if err != nil {
		return err
	}
	if paid {
		ok, err := economy.IsSupportedToken(ctx.State, *p.Token)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("token %q: %w", *p.Token, core.ErrUnsupportedToken)
		}
	}

	seated := append([]string{ctx.Tx.From}, p.Players...)
	seen := make(map[string]bool, len(seated))
	for _, player := range seated {
		if !crypto.IsAddress(player) || seen[player] {
			return fmt.Errorf("player %q: %w", player, core.ErrWrongInitParams)
		}
		seen[player] = true
		if err := requireUnlocked(ctx.State, g.ID, player); err != nil {
			return err
		}
	}

	g.SessionCount++
	if err := ctx.State.SetGame(g); err != nil {
		return err
	}
	sess := &core.Session{
		ID:              g.SessionCount,
		Game:            g.ID,
		Creator:         ctx.Tx.From,
		PlayerCount:     uint8(len(seated)),
		RequiredPlayers: p.RequiredPlayers,
		OptionToken:     p.Token,
		OptionAmount:    p.Amount,
		CreatedAt:       ctx.Time,
	}
	if sess.Status() == core.StatusPlaying {
		sess.LastMoveAt = ctx.Time
	}
	for slot, player := range seated {
		if err := seat(ctx.State, sess, slot, player); err != nil {
			return err
		}
	}
	if paid {
		if err := economy.Escrow(ctx.State, *p.Token, ctx.Tx.From, *p.Amount); err != nil {
			return err
		}
	}

	rules, err := rulesFor(g)
	if err != nil {
		return err
	}
	board, err := rules.NewBoard(int(p.RequiredPlayers))
	if err != nil {
		return err
	}
	if err := ctx.State.SetBoard(g.ID, sess.ID, board); err != nil {
		return err
	}
	if err := ctx.State.SetSession(sess); err != nil {
		return err
	}

	ctx.Emit(events.EventSessionCreated, map[string]any{
		"game":             g.ID,
		"session_id":       sess.ID,
		"creator":          ctx.Tx.From,
		"players":          seated,
		"required_players": sess.RequiredPlayers,
		"paid":             paid,
	})
	ctx.SetResult("session_id", sess.ID)
	return nil
}

func handleJoinSession(ctx *vm.Context, payload json.RawMessage) error {
	var p core.JoinSessionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode join_session payload: %w", err)
	}
	g, err := loadGame(ctx.State, p.Game)
	if err != nil {
		return err
	}
	sess, err := loadSession(ctx.State, g.ID, p.SessionID)
	if err != nil {
		return err
	}
	if sess.Status() != core.StatusWaiting {
		return fmt.Errorf("session %d is %s: %w", sess.ID, sess.Status(), core.ErrSessionNotWaiting)
	}
	if err := requireUnlocked(ctx.State, g.ID, ctx.Tx.From); err != nil {
		return err
	}

	slot := int(sess.PlayerCount)
	if err := seat(ctx.State, sess, slot, ctx.Tx.From); err != nil {
		return err
	}
	if sess.Paid() {
		if err := economy.Escrow(ctx.State, *sess.OptionToken, ctx.Tx.From, *sess.OptionAmount); err != nil {
			return err
		}
	}
	sess.PlayerCount++
	if sess.Status() == core.StatusPlaying {
		sess.LastMoveAt = ctx.Time
	}
	if err := ctx.State.SetSession(sess); err != nil {
		return err
	}

	ctx.Emit(events.EventSessionJoined, map[string]any{
		"game":         g.ID,
		"session_id":   sess.ID,
		"player":       ctx.Tx.From,
		"slot":         slot,
		"player_count": sess.PlayerCount,
		"status":       sess.Status().String(),
	})
	ctx.SetResult("slot", slot)
	return nil
}

func loadSession(state core.State, game string, id uint64) (*core.Session, error) {
	sess, err := state.GetSession(game, id)
	if errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("session %s/%d: %w", game, id, core.ErrSessionNotFound)
	}
	return sess, err
}

func requireUnlocked(state core.State, game, player string) error {
	id, err := state.GetLock(game, player)
	if err != nil {
		return err
	}
	if id != 0 {
		return fmt.Errorf("player %s in session %d: %w", player, id, core.ErrPlayerHasSession)
	}
	return nil
}

// seat writes the slot and takes the player's lock.
func seat(state core.State, sess *core.Session, slot int, player string) error {
	if err := state.SetSlot(sess.Game, sess.ID, slot, player); err != nil {
		return err
	}
	return state.SetLock(sess.Game, player, sess.ID)
}

// Players returns the occupied slots of a session in slot order. The scan
// stops at the first empty slot.
func Players(state core.State, game string, id uint64) ([]string, error) {
	var out []string
	for slot := 0; slot < 4; slot++ {
		p, err := state.GetSlot(game, id, slot)
		if errors.Is(err, core.ErrNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
