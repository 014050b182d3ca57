package live

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"nexus-backend/internal/models"
)

// Bridge re-injects events published on redis into the local broker, so SSE
// consumers attached to any instance see mutations made on any other.
type Bridge struct {
	broker *Broker
	redis  *redis.Client
	cancel context.CancelFunc
}

func NewBridge(broker *Broker, redisClient *redis.Client) *Bridge {
	return &Bridge{broker: broker, redis: redisClient}
}

func (b *Bridge) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	go b.run(ctx)
}

func (b *Bridge) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
}

func (b *Bridge) run(ctx context.Context) {
	pubsub := b.redis.PSubscribe(ctx, "group_updates:*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev models.LiveEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("live bridge: dropping malformed event: %v", err)
				continue
			}
			b.broker.Dispatch(ev)
		}
	}
}
