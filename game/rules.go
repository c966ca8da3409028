// Package game defines the contract between the session engine and the
// rules of a concrete board game.
package game

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Move is one turn handed to a rules plugin.
type Move struct {
	Nonce   uint64          // session move counter after this move was accepted
	Slot    int             // acting slot
	Players int             // joined player count
	Random  []uint64        // verified random numbers, in order
	Payload json.RawMessage // game-specific choices, may be empty
}

// Outcome reports whether a move ended the game. Both nil means play on.
type Outcome struct {
	Winner *int
	Loser  *int
}

// Terminal reports whether the outcome ends the session.
func (o Outcome) Terminal() bool { return o.Winner != nil || o.Loser != nil }

// Rules is implemented by every game plugin. Implementations must be
// deterministic: the same board and move always yield the same result.
type Rules interface {
	Name() string
	NewBoard(players int) ([]byte, error)
	Apply(board []byte, mv Move) ([]byte, Outcome, error)
	View(board []byte) (any, error)
}

var (
	mu      sync.RWMutex
	plugins = map[string]Rules{}
)

// Register makes r available under r.Name(). Panics on duplicates.
// Plugins call this from init().
func Register(r Rules) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := plugins[r.Name()]; ok {
		panic(fmt.Sprintf("game: rules %q already registered", r.Name()))
	}
	plugins[r.Name()] = r
}

// Lookup returns the plugin registered under name.
func Lookup(name string) (Rules, bool) {
	mu.RLock()
	defer mu.RUnlock()
	r, ok := plugins[name]
	return r, ok
}

// Names lists registered plugins in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(plugins))
	for n := range plugins {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
