// Package indexer maintains secondary indexes over committed events so
// clients can find sessions by player or open lobbies by game without
// scanning full state.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/tolelom/tolarena/core"
	"github.com/tolelom/tolarena/events"
	"github.com/tolelom/tolarena/storage"
)

const (
	prefixPlayerSession = "idx:player:session:"
	prefixOpenSession   = "idx:game:open:"
)

// SessionRef identifies a session within a game instance.
type SessionRef struct {
	Game string `json:"game"`
	ID   uint64 `json:"id"`
}

// Indexer subscribes to ledger events and updates secondary lookup tables.
type Indexer struct {
	mu sync.Mutex
	db storage.DB
}

// New creates an Indexer backed by db and subscribes to relevant events.
func New(db storage.DB, emitter *events.Emitter) *Indexer {
	idx := &Indexer{db: db}
	emitter.Subscribe(events.EventSessionCreated, idx.onSessionCreated)
	emitter.Subscribe(events.EventSessionJoined, idx.onSessionJoined)
	emitter.Subscribe(events.EventSessionFinished, idx.onSessionFinished)
	return idx
}

// GetSessionsByPlayer returns every session the player has been seated in,
// oldest first.
func (idx *Indexer) GetSessionsByPlayer(player string) ([]SessionRef, error) {
	return idx.getList(prefixPlayerSession + player)
}

// GetOpenSessions returns the sessions of game still waiting for players.
func (idx *Indexer) GetOpenSessions(game string) ([]SessionRef, error) {
	return idx.getList(prefixOpenSession + game)
}

// ---- event handlers ----

func (idx *Indexer) onSessionCreated(ev events.Event) {
	ref, ok := refOf(ev)
	if !ok {
		return
	}
	players := stringsOf(ev.Data["players"])
	for _, p := range players {
		idx.add(prefixPlayerSession+p, ref)
	}
	required, _ := toUint64(ev.Data["required_players"])
	if uint64(len(players)) < required {
		idx.add(prefixOpenSession+ref.Game, ref)
	}
}

func (idx *Indexer) onSessionJoined(ev events.Event) {
	ref, ok := refOf(ev)
	if !ok {
		return
	}
	if player, _ := ev.Data["player"].(string); player != "" {
		idx.add(prefixPlayerSession+player, ref)
	}
	if status, _ := ev.Data["status"].(string); status != core.StatusWaiting.String() {
		idx.remove(prefixOpenSession+ref.Game, ref)
	}
}

func (idx *Indexer) onSessionFinished(ev events.Event) {
	if ref, ok := refOf(ev); ok {
		idx.remove(prefixOpenSession+ref.Game, ref)
	}
}

func refOf(ev events.Event) (SessionRef, bool) {
	game, _ := ev.Data["game"].(string)
	id, ok := toUint64(ev.Data["session_id"])
	if game == "" || !ok {
		return SessionRef{}, false
	}
	return SessionRef{Game: game, ID: id}, true
}

// toUint64 accepts the integer types handlers emit and the float64 that
// JSON-decoded events carry.
func toUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case uint8:
		return uint64(n), true
	case int:
		return uint64(n), n >= 0
	case float64:
		return uint64(n), n >= 0
	}
	return 0, false
}

func stringsOf(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

// ---- list helpers ----

func (idx *Indexer) getList(key string) ([]SessionRef, error) {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil // empty list
		}
		return nil, err
	}
	var refs []SessionRef
	if err := json.Unmarshal(data, &refs); err != nil {
		return nil, fmt.Errorf("indexer unmarshal: %w", err)
	}
	return refs, nil
}

func (idx *Indexer) putList(key string, refs []SessionRef) error {
	if len(refs) == 0 {
		return idx.db.Delete([]byte(key))
	}
	data, err := json.Marshal(refs)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}

func (idx *Indexer) add(key string, ref SessionRef) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	refs, err := idx.getList(key)
	if err != nil {
		log.Printf("[indexer] read %s: %v", key, err)
		return
	}
	for _, r := range refs {
		if r == ref {
			return
		}
	}
	if err := idx.putList(key, append(refs, ref)); err != nil {
		log.Printf("[indexer] add %s/%d to %s: %v", ref.Game, ref.ID, key, err)
	}
}

func (idx *Indexer) remove(key string, ref SessionRef) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	refs, err := idx.getList(key)
	if err != nil {
		log.Printf("[indexer] read %s: %v", key, err)
		return
	}
	filtered := refs[:0]
	for _, r := range refs {
		if r != ref {
			filtered = append(filtered, r)
		}
	}
	if err := idx.putList(key, filtered); err != nil {
		log.Printf("[indexer] remove %s/%d from %s: %v", ref.Game, ref.ID, key, err)
	}
}
