package session

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/tolarena/core"
	"github.com/tolelom/tolarena/vm"
)

// handleClaimTimeout lets anyone end a session whose player to move has
// stalled for longer than the game's turn timeout. The stalled player loses.
func handleClaimTimeout(ctx *vm.Context, payload json.RawMessage) error {
	var p core.ClaimTimeoutPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode claim_timeout payload: %w", err)
	}
	g, err := loadGame(ctx.State, p.Game)
	if err != nil {
		return err
	}
	if g.TurnTimeout == 0 {
		return fmt.Errorf("game %q: %w", g.ID, core.ErrTimeoutDisabled)
	}
	sess, err := loadSession(ctx.State, g.ID, p.SessionID)
	if err != nil {
		return err
	}
	if sess.Status() != core.StatusPlaying {
		return fmt.Errorf("session %d is %s: %w", sess.ID, sess.Status(), core.ErrSessionNotPlaying)
	}
	if elapsed := ctx.Time - sess.LastMoveAt; elapsed < g.TurnTimeout {
		return fmt.Errorf("%ds of %ds elapsed: %w", elapsed, g.TurnTimeout, core.ErrTurnNotExpired)
	}

	loser := int(sess.NextPlayerID)
	if _, err := finishSession(ctx, sess, nil, &loser); err != nil {
		return err
	}
	ctx.SetResult("loser", loser)
	return nil
}
