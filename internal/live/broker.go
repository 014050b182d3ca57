package live

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"

	"nexus-backend/internal/models"
)

const subscriberBuffer = 32

// Broker is the in-process side of the live update channel: one-way,
// per-group, single producer per mutation, many consumers. Subscribers get
// their own FIFO channel, so events for the same identifier arrive in publish
// order; no ordering is promised across identifiers.
type Broker struct {
	mu     sync.RWMutex
	groups map[int64]map[chan models.LiveEvent]struct{}
}

func NewBroker() *Broker {
	return &Broker{groups: make(map[int64]map[chan models.LiveEvent]struct{})}
}

// Subscribe attaches a consumer to a group's feed. The returned cancel must
// be called when the consumer goes away; reconnecting clients simply
// subscribe again (missed events are covered by the initial list fetch, not
// replayed here).
func (b *Broker) Subscribe(groupID int64) (<-chan models.LiveEvent, func()) {
	ch := make(chan models.LiveEvent, subscriberBuffer)

	b.mu.Lock()
	subs, ok := b.groups[groupID]
	if !ok {
		subs = make(map[chan models.LiveEvent]struct{})
		b.groups[groupID] = subs
	}
	subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() { b.drop(groupID, ch) }
	return ch, cancel
}

func (b *Broker) drop(groupID int64, ch chan models.LiveEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.groups[groupID]
	if !ok {
		return
	}
	if _, present := subs[ch]; !present {
		return
	}
	delete(subs, ch)
	if len(subs) == 0 {
		delete(b.groups, groupID)
	}
	close(ch)
}

// Dispatch delivers an event to every subscriber of its group. A subscriber
// whose buffer is full is dropped rather than blocking the producer. The
// sends happen under the read lock: drop closes channels under the write
// lock, so a concurrent cancel can never close a channel mid-send. The sends
// are non-blocking, so the lock is held only briefly.
func (b *Broker) Dispatch(ev models.LiveEvent) {
	b.mu.RLock()
	var full []chan models.LiveEvent
	for ch := range b.groups[ev.GroupID] {
		select {
		case ch <- ev:
		default:
			full = append(full, ch)
		}
	}
	b.mu.RUnlock()

	for _, ch := range full {
		log.Printf("live feed: dropping slow subscriber in group %d", ev.GroupID)
		b.drop(ev.GroupID, ch)
	}
}

// Publisher is what handlers hold. With redis configured, events round-trip
// through pub/sub so every server instance's broker sees them; without it
// (tests, single-node dev) they go straight to the local broker.
type Publisher struct {
	broker *Broker
	redis  *redis.Client
}

func NewPublisher(broker *Broker, redisClient *redis.Client) *Publisher {
	return &Publisher{broker: broker, redis: redisClient}
}

func (p *Publisher) Publish(ctx context.Context, ev models.LiveEvent) error {
	if p.redis == nil {
		p.broker.Dispatch(ev)
		return nil
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode live event: %w", err)
	}
	return p.redis.Publish(ctx, groupChannel(ev.GroupID), payload).Err()
}

func groupChannel(groupID int64) string {
	return fmt.Sprintf("group_updates:%d", groupID)
}
