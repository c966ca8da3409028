package session

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/tolarena/core"
	"github.com/tolelom/tolarena/events"
	"github.com/tolelom/tolarena/game"
	"github.com/tolelom/tolarena/oracle"
	"github.com/tolelom/tolarena/vm"
	"github.com/tolelom/tolarena/vm/modules/economy"
)

func handlePlay(ctx *vm.Context, payload json.RawMessage) error {
	var p core.PlayPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode play payload: %w", err)
	}
	g, err := loadGame(ctx.State, p.Game)
	if err != nil {
		return err
	}
	sess, err := loadSession(ctx.State, g.ID, p.SessionID)
	if err != nil {
		return err
	}
	actor := ctx.Tx.From
	if p.AsOwner {
		if err := economy.RequireOwner(ctx.State, ctx.Tx.From); err != nil {
			return err
		}
		actor = p.Player
	}

	randoms, err := prePlay(ctx.State, g, sess, actor, p.RandomNumbers)
	if err != nil {
		return err
	}

	rules, err := rulesFor(g)
	if err != nil {
		return err
	}
	board, err := ctx.State.GetBoard(g.ID, sess.ID)
	if err != nil {
		return fmt.Errorf("load board: %w", err)
	}
	slot := int(sess.NextPlayerID)
	next, outcome, err := rules.Apply(board, game.Move{
		Nonce:   sess.Nonce,
		Slot:    slot,
		Players: int(sess.PlayerCount),
		Random:  randoms,
		Payload: p.Move,
	})
	if err != nil {
		return fmt.Errorf("%s move: %w", rules.Name(), err)
	}
	if err := ctx.State.SetBoard(g.ID, sess.ID, next); err != nil {
		return err
	}

	ctx.Emit(events.EventMovePlayed, map[string]any{
		"game":       g.ID,
		"session_id": sess.ID,
		"slot":       slot,
		"player":     actor,
		"nonce":      sess.Nonce,
		"random":     randoms,
	})

	if outcome.Terminal() {
		_, err := finishSession(ctx, sess, outcome.Winner, outcome.Loser)
		return err
	}
	postPlay(sess, ctx.Time)
	return ctx.State.SetSession(sess)
}

// prePlay checks that actor may move now, consumes one session nonce and
// returns the validated random sequence for the plugin.
func prePlay(state core.State, g *core.GameInstance, sess *core.Session, actor string, rns []core.RandomNumber) ([]uint64, error) {
	if !g.Initialized {
		return nil, core.ErrNotInitialized
	}
	if sess.Status() != core.StatusPlaying {
		return nil, fmt.Errorf("session %d is %s: %w", sess.ID, sess.Status(), core.ErrSessionNotPlaying)
	}
	holder, err := state.GetSlot(g.ID, sess.ID, int(sess.NextPlayerID))
	if err != nil {
		return nil, fmt.Errorf("load slot %d: %w", sess.NextPlayerID, err)
	}
	if holder != actor {
		return nil, fmt.Errorf("slot %d to move: %w", sess.NextPlayerID, core.ErrNotPlayerTurn)
	}

	sess.Nonce++
	if err := state.SetSession(sess); err != nil {
		return nil, err
	}

	verifier, err := oracle.ForGame(g)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, len(rns))
	for i, rn := range rns {
		if rn.Value > g.MaxRandomNumber {
			return nil, fmt.Errorf("value %d > %d: %w", rn.Value, g.MaxRandomNumber, core.ErrInvalidRandomNumber)
		}
		b := oracle.Binding{Game: g.ID, SessionID: sess.ID, Nonce: sess.Nonce, Index: uint32(i)}
		if err := verifier.Verify(b, rn); err != nil {
			return nil, fmt.Errorf("%w: index %d: %v", core.ErrInvalidRandomNumber, i, err)
		}
		out[i] = rn.Value
	}
	return out, nil
}

// postPlay hands the turn to the next slot.
func postPlay(sess *core.Session, now int64) {
	sess.NextPlayerID = uint8((int(sess.NextPlayerID) + 1) % int(sess.PlayerCount))
	sess.LastMoveAt = now
}

// finishSession releases every lock, settles escrow and tombstones the
// session. It reports whether any escrowed funds were paid out.
func finishSession(ctx *vm.Context, sess *core.Session, winner, loser *int) (bool, error) {
	players, err := Players(ctx.State, sess.Game, sess.ID)
	if err != nil {
		return false, err
	}
	for _, s := range []*int{winner, loser} {
		if s != nil && (*s < 0 || *s >= len(players)) {
			return false, fmt.Errorf("slot %d of %d: %w", *s, len(players), core.ErrInvalidSlot)
		}
	}
	for _, player := range players {
		if err := ctx.State.SetLock(sess.Game, player, 0); err != nil {
			return false, err
		}
	}

	paidOut := false
	if sess.Paid() {
		d, err := settle(ctx.State, sess, players, winner, loser)
		if err != nil {
			return false, err
		}
		if d.Pool > 0 {
			paidOut = true
			ctx.Emit(events.EventPayout, map[string]any{
				"game":       sess.Game,
				"session_id": sess.ID,
				"token":      *sess.OptionToken,
				"policy":     string(d.Policy),
				"pool":       d.Pool,
				"fee":        d.Fee,
				"legs":       d.Legs,
			})
		}
	}

	sess.PlayerCount = 0
	sess.Winner = winner
	sess.Loser = loser
	sess.FinishedAt = ctx.Time
	if err := ctx.State.SetSession(sess); err != nil {
		return false, err
	}

	data := map[string]any{"game": sess.Game, "session_id": sess.ID}
	if winner != nil {
		data["winner"] = *winner
		data["winner_address"] = players[*winner]
	}
	if loser != nil {
		data["loser"] = *loser
		data["loser_address"] = players[*loser]
	}
	ctx.Emit(events.EventSessionFinished, data)
	return paidOut, nil
}

// settle releases the pool from escrow. A token disabled after the stakes
// were taken is refunded rather than left stranded in escrow.
func settle(state core.State, sess *core.Session, players []string, winner, loser *int) (*Distribution, error) {
	token, amount := *sess.OptionToken, *sess.OptionAmount
	enabled, err := economy.IsSupportedToken(state, token)
	if err != nil {
		return nil, err
	}
	var d *Distribution
	if enabled {
		fee, err := economy.TokenFee(state, token)
		if err != nil {
			return nil, err
		}
		d, err = Distribute(players, amount, fee, winner, loser)
		if err != nil {
			return nil, err
		}
	} else {
		d, err = Distribute(players, amount, 0, nil, nil)
		if err != nil {
			return nil, err
		}
	}
	for _, leg := range d.Legs {
		if err := economy.Release(state, token, leg.To, leg.Amount); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func handleOwnerFinish(ctx *vm.Context, payload json.RawMessage) error {
	if err := economy.RequireOwner(ctx.State, ctx.Tx.From); err != nil {
		return err
	}
	var p core.OwnerFinishPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode owner_finish_session payload: %w", err)
	}
	if p.WinnerSlot != nil && p.LoserSlot != nil {
		return fmt.Errorf("winner and loser are exclusive: %w", core.ErrWrongInitParams)
	}
	g, err := loadGame(ctx.State, p.Game)
	if err != nil {
		return err
	}
	sess, err := loadSession(ctx.State, g.ID, p.SessionID)
	if err != nil {
		return err
	}
	if sess.Status() == core.StatusFinished {
		return fmt.Errorf("session %d already finished: %w", sess.ID, core.ErrSessionNotPlaying)
	}

	paidOut, err := finishSession(ctx, sess, p.WinnerSlot, p.LoserSlot)
	if err != nil {
		return err
	}
	if !paidOut {
		ctx.Emit(events.EventForcedFinish, map[string]any{"game": g.ID, "session_id": sess.ID})
	}
	return nil
}

func handlePlayerFinish(ctx *vm.Context, payload json.RawMessage) error {
	var p core.PlayerFinishPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode player_finish_session payload: %w", err)
	}
	g, err := loadGame(ctx.State, p.Game)
	if err != nil {
		return err
	}
	sess, err := loadSession(ctx.State, g.ID, p.SessionID)
	if err != nil {
		return err
	}
	locked, err := ctx.State.GetLock(g.ID, ctx.Tx.From)
	if err != nil {
		return err
	}
	if locked != sess.ID {
		return fmt.Errorf("caller not seated in session %d: %w", sess.ID, core.ErrInvalidSlot)
	}

	switch sess.Status() {
	case core.StatusPlaying:
		if p.LoserSlot == nil {
			return fmt.Errorf("loser_slot required while playing: %w", core.ErrWrongInitParams)
		}
		holder, err := ctx.State.GetSlot(g.ID, sess.ID, *p.LoserSlot)
		if err != nil || holder != ctx.Tx.From {
			return fmt.Errorf("players may only resign their own slot: %w", core.ErrInvalidSlot)
		}
	case core.StatusWaiting:
		if p.LoserSlot != nil {
			return fmt.Errorf("waiting sessions can only be cancelled: %w", core.ErrWrongInitParams)
		}
	default:
		return core.ErrSessionNotPlaying
	}

	_, err = finishSession(ctx, sess, nil, p.LoserSlot)
	return err
}
