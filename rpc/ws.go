package rpc

import (
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tolelom/tolarena/events"
)

const (
	wsSendBuffer = 256
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Hello is the first frame sent on a new stream.
type Hello struct {
	Subscription string   `json:"subscription"`
	Types        []string `json:"types,omitempty"`
}

// Hub streams committed events to websocket clients. Clients pick event
// types with ?types=a,b; no filter means everything.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*wsClient
}

type wsClient struct {
	id     string
	conn   *websocket.Conn
	send   chan events.Event
	filter map[events.EventType]bool
	once   sync.Once
}

// NewHub creates a Hub fed by emitter.
func NewHub(emitter *events.Emitter) *Hub {
	h := &Hub{clients: make(map[string]*wsClient)}
	emitter.SubscribeAll(h.broadcast)
	return h
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the connection and streams events until the client leaves.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[rpc] websocket upgrade: %v", err)
		return
	}
	c := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan events.Event, wsSendBuffer),
	}
	var types []string
	if raw := r.URL.Query().Get("types"); raw != "" {
		c.filter = make(map[events.EventType]bool)
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				c.filter[events.EventType(t)] = true
				types = append(types, t)
			}
		}
	}

	// Registered before Hello so nothing committed after the client sees
	// Hello is missed. Events queue in c.send until writeLoop starts.
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(Hello{Subscription: c.id, Types: types}); err != nil {
		h.drop(c)
		return
	}

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) broadcast(ev events.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.filter != nil && !c.filter[ev.Type] {
			continue
		}
		select {
		case c.send <- ev:
		default:
			log.Printf("[rpc] websocket %s too slow, dropping %s", c.id, ev.Type)
		}
	}
}

// readLoop only watches for the client going away.
func (h *Hub) readLoop(c *wsClient) {
	defer h.drop(c)
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[rpc] websocket %s: %v", c.id, err)
			}
			return
		}
	}
}

func (h *Hub) writeLoop(c *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		h.drop(c)
	}()
	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) drop(c *wsClient) {
	c.once.Do(func() {
		h.mu.Lock()
		delete(h.clients, c.id)
		h.mu.Unlock()
		close(c.send)
		_ = c.conn.Close()
	})
}
