package events

import (
	"log"
	"sync"
)

// EventType labels what happened.
type EventType string

const (
	EventTxExecuted      EventType = "tx_executed"
	EventTokenTransfer   EventType = "token_transfer"
	EventTokenRegistered EventType = "token_registered"
	EventWithdraw        EventType = "withdraw"
	EventGameInitialized EventType = "game_initialized"
	EventSessionCreated  EventType = "session_created"
	EventSessionJoined   EventType = "session_joined"
	EventMovePlayed      EventType = "move_played"
	EventSessionFinished EventType = "session_finished"
	EventForcedFinish    EventType = "session_forced_finish"
	EventPayout          EventType = "payout"
)

// Event carries a typed payload emitted after a state change.
type Event struct {
	Type   EventType      `json:"type"`
	TxID   string         `json:"tx_id"`
	Height int64          `json:"height"`
	Data   map[string]any `json:"data"`
}

// Handler is a callback invoked for matching events.
type Handler func(Event)

// Emitter is a simple pub/sub broker. Subscribe before Emit.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	all      []Handler
}

// NewEmitter creates an Emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[EventType][]Handler)}
}

// Subscribe registers h to be called whenever typ is emitted.
func (e *Emitter) Subscribe(typ EventType, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[typ] = append(e.handlers[typ], h)
}

// SubscribeAll registers h for every event type.
func (e *Emitter) SubscribeAll(h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.all = append(e.all, h)
}

// Emit delivers ev to all subscribers for ev.Type synchronously, then to the
// catch-all subscribers. A panicking handler is logged and skipped.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	handlers := make([]Handler, 0, len(e.handlers[ev.Type])+len(e.all))
	handlers = append(handlers, e.handlers[ev.Type]...)
	handlers = append(handlers, e.all...)
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[events] handler panicked for %s: %v", ev.Type, r)
				}
			}()
			h(ev)
		}()
	}
}
