// Package ludo implements a four-token race-track game for two or four
// players on a 52-square shared track.
package ludo

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/tolarena/core"
	"github.com/tolelom/tolarena/game"
)

const (
	Name = "ludo"

	TrackLen   = 52
	TokenCount = 4
	// LastTrackStep is the furthest progress still on the shared track.
	LastTrackStep = 50
	// HomeStep is the exact progress that brings a token home.
	HomeStep = 56
	// ReleaseDie is the die value that brings a token out of the yard.
	ReleaseDie = 6
)

func init() {
	game.Register(Rules{})
}

// Token is one piece. A token in the yard has Released false. Square is the
// absolute track square (1..52) while on the shared track and 0 otherwise.
type Token struct {
	Released bool `cbor:"1,keyasint" json:"released"`
	Steps    int  `cbor:"2,keyasint" json:"steps"`
	Square   int  `cbor:"3,keyasint" json:"square"`
	Winning  bool `cbor:"4,keyasint" json:"winning"`
}

// Board is the full game position.
type Board struct {
	Players int                 `cbor:"1,keyasint" json:"players"`
	Tokens  [][TokenCount]Token `cbor:"2,keyasint" json:"tokens"`
}

// MovePayload selects which token each die moves. Missing entries reuse the
// previous choice; the first defaults to token 0.
type MovePayload struct {
	Tokens []int `json:"tokens"`
}

// Rules is the ludo plugin.
type Rules struct{}

func (Rules) Name() string { return Name }

func (Rules) NewBoard(players int) ([]byte, error) {
	if players != 2 && players != 4 {
		return nil, fmt.Errorf("ludo: %d players: %w", players, core.ErrInvalidPlayerCount)
	}
	return game.EncodeBoard(Board{Players: players, Tokens: make([][TokenCount]Token, players)})
}

func (Rules) View(board []byte) (any, error) {
	var b Board
	if err := game.DecodeBoard(board, &b); err != nil {
		return nil, fmt.Errorf("ludo: decode board: %w", err)
	}
	return b, nil
}

func (Rules) Apply(board []byte, mv game.Move) ([]byte, game.Outcome, error) {
	var b Board
	if err := game.DecodeBoard(board, &b); err != nil {
		return nil, game.Outcome{}, fmt.Errorf("ludo: decode board: %w", err)
	}
	if mv.Slot < 0 || mv.Slot >= b.Players || len(b.Tokens) != b.Players {
		return nil, game.Outcome{}, fmt.Errorf("ludo: slot %d: %w", mv.Slot, core.ErrInvalidSlot)
	}
	var choice MovePayload
	if len(mv.Payload) > 0 {
		if err := json.Unmarshal(mv.Payload, &choice); err != nil {
			return nil, game.Outcome{}, fmt.Errorf("ludo: decode move: %w", core.ErrInvalidMove)
		}
	}

	idx := 0
	for i, die := range mv.Random {
		if die < 1 || die > ReleaseDie {
			return nil, game.Outcome{}, fmt.Errorf("ludo: die value %d: %w", die, core.ErrInvalidMove)
		}
		if i < len(choice.Tokens) {
			idx = choice.Tokens[i]
		}
		if idx < 0 || idx >= TokenCount {
			return nil, game.Outcome{}, fmt.Errorf("ludo: token %d: %w", idx, core.ErrInvalidMove)
		}
		b.step(mv.Slot, idx, int(die))
	}

	var out game.Outcome
	if b.allHome(mv.Slot) {
		w := mv.Slot
		out.Winner = &w
	}
	data, err := game.EncodeBoard(b)
	if err != nil {
		return nil, game.Outcome{}, err
	}
	return data, out, nil
}

// offset is the number of squares between square 1 and the slot's start.
func (b *Board) offset(slot int) int { return slot * (TrackLen / b.Players) }

func (b *Board) square(slot, steps int) int {
	return (b.offset(slot)+steps)%TrackLen + 1
}

// step applies one die to one token. Dice that cannot be used are lost.
func (b *Board) step(slot, idx, die int) {
	t := &b.Tokens[slot][idx]
	switch {
	case t.Winning:
		return
	case !t.Released:
		if die != ReleaseDie {
			return
		}
		t.Released = true
		t.Steps = 0
	default:
		if t.Steps+die > HomeStep {
			return
		}
		t.Steps += die
	}

	if t.Steps == HomeStep {
		t.Winning = true
		t.Square = 0
		return
	}
	if t.Steps > LastTrackStep {
		t.Square = 0
		return
	}
	t.Square = b.square(slot, t.Steps)
	b.capture(slot, t.Square)
}

// capture sends opponent tokens back to the yard. The checked square is the
// landing square taken relative to the mover's start, so a token landing two
// squares past its start hits whatever stands on square 3.
func (b *Board) capture(slot, landing int) {
	target := ((landing-1-b.offset(slot))%TrackLen+TrackLen)%TrackLen + 1
	for p := range b.Tokens {
		if p == slot {
			continue
		}
		for i := range b.Tokens[p] {
			o := &b.Tokens[p][i]
			if o.Released && !o.Winning && o.Steps <= LastTrackStep && o.Square == target {
				*o = Token{}
			}
		}
	}
}

func (b *Board) allHome(slot int) bool {
	for _, t := range b.Tokens[slot] {
		if !t.Winning {
			return false
		}
	}
	return true
}
