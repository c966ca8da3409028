// Package relay fans committed ledger events out to Redis pub/sub so game
// servers can react without polling the node.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tolelom/tolarena/events"
)

// Publisher is the subset of *redis.Client the relay needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Options configures a Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, o Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     o.Addr,
		Password: o.Password,
		DB:       o.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", o.Addr, err)
	}
	return client, nil
}

// Relay publishes each event as JSON on "<prefix>:<event type>". Emission
// never blocks on Redis: events are queued and a full queue drops the event.
type Relay struct {
	pub    Publisher
	prefix string
	queue  chan events.Event
}

// New creates a Relay and subscribes it to every event type.
func New(pub Publisher, prefix string, buffer int, emitter *events.Emitter) *Relay {
	if buffer <= 0 {
		buffer = 1024
	}
	r := &Relay{pub: pub, prefix: prefix, queue: make(chan events.Event, buffer)}
	emitter.SubscribeAll(r.enqueue)
	return r
}

// Channel returns the Redis channel events of typ are published on.
func (r *Relay) Channel(typ events.EventType) string {
	return r.prefix + ":" + string(typ)
}

func (r *Relay) enqueue(ev events.Event) {
	select {
	case r.queue <- ev:
	default:
		log.Printf("[relay] queue full, dropping %s event of tx %s", ev.Type, ev.TxID)
	}
}

// Run publishes queued events until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-r.queue:
			r.publish(ctx, ev)
		}
	}
}

func (r *Relay) publish(ctx context.Context, ev events.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[relay] marshal %s: %v", ev.Type, err)
		return
	}
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := r.pub.Publish(pctx, r.Channel(ev.Type), data).Err(); err != nil {
		log.Printf("[relay] publish %s: %v", ev.Type, err)
	}
}
