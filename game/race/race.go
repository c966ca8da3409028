// Package race is a dice race: every die adds to the mover's score and the
// first player to reach Target wins.
package race

import (
	"fmt"

	"github.com/tolelom/tolarena/core"
	"github.com/tolelom/tolarena/game"
)

const (
	Name   = "race"
	Target = 30
)

func init() {
	game.Register(Rules{})
}

// Board holds one score per slot.
type Board struct {
	Scores []uint64 `cbor:"1,keyasint" json:"scores"`
}

// Rules is the race plugin.
type Rules struct{}

func (Rules) Name() string { return Name }

func (Rules) NewBoard(players int) ([]byte, error) {
	if players != 2 && players != 4 {
		return nil, fmt.Errorf("race: %d players: %w", players, core.ErrInvalidPlayerCount)
	}
	return game.EncodeBoard(Board{Scores: make([]uint64, players)})
}

func (Rules) View(board []byte) (any, error) {
	var b Board
	if err := game.DecodeBoard(board, &b); err != nil {
		return nil, fmt.Errorf("race: decode board: %w", err)
	}
	return b, nil
}

func (Rules) Apply(board []byte, mv game.Move) ([]byte, game.Outcome, error) {
	var b Board
	if err := game.DecodeBoard(board, &b); err != nil {
		return nil, game.Outcome{}, fmt.Errorf("race: decode board: %w", err)
	}
	if mv.Slot < 0 || mv.Slot >= len(b.Scores) {
		return nil, game.Outcome{}, fmt.Errorf("race: slot %d: %w", mv.Slot, core.ErrInvalidSlot)
	}
	if len(mv.Random) == 0 {
		return nil, game.Outcome{}, fmt.Errorf("race: no dice: %w", core.ErrInvalidMove)
	}
	for _, die := range mv.Random {
		b.Scores[mv.Slot] += die
	}

	var out game.Outcome
	if b.Scores[mv.Slot] >= Target {
		w := mv.Slot
		out.Winner = &w
	}
	data, err := game.EncodeBoard(b)
	if err != nil {
		return nil, game.Outcome{}, err
	}
	return data, out, nil
}
