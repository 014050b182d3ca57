package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NotificationQueue is the redis list the worker pool consumes with BLPOP.
const NotificationQueue = "queue:notifications"

const (
	NotificationAnnouncement = "announcement"
	NotificationDocument     = "document"
)

// NotificationJob is one email fan-out request. The worker resolves the group
// membership at delivery time, so the job only carries what the email says.
type NotificationJob struct {
	Type       string     `json:"type"` // announcement | document
	GroupID    int64      `json:"group_id"`
	Kind       string     `json:"kind,omitempty"` // material | event, announcements only
	Title      string     `json:"title"`
	AuthorName string     `json:"author_name"`
	Deadline   *time.Time `json:"deadline,omitempty"`
}

// Notifier enqueues fan-out jobs for the worker pool.
type Notifier struct {
	queue *redis.Client
}

func NewNotifier(queue *redis.Client) *Notifier {
	return &Notifier{queue: queue}
}

func (n *Notifier) Enqueue(ctx context.Context, job NotificationJob) error {
	if n.queue == nil {
		return nil
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling notification job: %w", err)
	}
	if err := n.queue.LPush(ctx, NotificationQueue, payload).Err(); err != nil {
		return fmt.Errorf("enqueueing notification job: %w", err)
	}
	return nil
}
