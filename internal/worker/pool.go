package worker

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"nexus-backend/internal/models"
	"nexus-backend/internal/repository"
	"nexus-backend/internal/services"
)

// Pool drains the notification queue and fans announcement and document
// emails out to group members. Delivery is best-effort: a failed recipient is
// logged and skipped, never retried into the whole group again.
type Pool struct {
	redis       *redis.Client
	email       *services.EmailService
	userRepo    *repository.UserRepo
	groupRepo   *repository.GroupRepo
	workerCount int
	stopChan    chan struct{}
}

func NewPool(
	redisClient *redis.Client,
	email *services.EmailService,
	userRepo *repository.UserRepo,
	groupRepo *repository.GroupRepo,
	workerCount int,
) *Pool {
	return &Pool{
		redis:       redisClient,
		email:       email,
		userRepo:    userRepo,
		groupRepo:   groupRepo,
		workerCount: workerCount,
		stopChan:    make(chan struct{}),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		go p.worker(i)
	}
	log.Printf("Started %d notification workers", p.workerCount)
}

func (p *Pool) Stop() {
	close(p.stopChan)
}

func (p *Pool) worker(id int) {
	for {
		select {
		case <-p.stopChan:
			log.Printf("Notification worker %d shutting down", id)
			return
		default:
		}

		ctx := context.Background()

		// BLPOP with 30s timeout
		result, err := p.redis.BLPop(ctx, 30*time.Second, services.NotificationQueue).Result()
		if err != nil {
			continue // Timeout or error, retry
		}
		if len(result) < 2 {
			continue
		}

		var job services.NotificationJob
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			log.Printf("Notification worker %d: failed to parse job: %v", id, err)
			continue
		}

		p.process(ctx, id, job)
	}
}

func (p *Pool) process(ctx context.Context, id int, job services.NotificationJob) {
	groupName, err := p.groupRepo.GetName(ctx, job.GroupID)
	if err != nil {
		log.Printf("Notification worker %d: failed to load group %d: %v", id, job.GroupID, err)
		return
	}

	members, err := p.userRepo.ListGroupMembers(ctx, job.GroupID)
	if err != nil {
		log.Printf("Notification worker %d: failed to list members of group %d: %v", id, job.GroupID, err)
		return
	}

	sent := 0
	for _, member := range members {
		// The author already knows; students are the audience.
		if member.Role != models.RoleStudent {
			continue
		}

		switch job.Type {
		case services.NotificationAnnouncement:
			err = p.email.SendAnnouncementEmail(member.Email, groupName, job.Kind, job.Title, job.AuthorName)
		case services.NotificationDocument:
			err = p.email.SendDocumentEmail(member.Email, groupName, job.Title, job.AuthorName, job.Deadline)
		default:
			log.Printf("Notification worker %d: unknown job type %q", id, job.Type)
			return
		}
		if err != nil {
			log.Printf("Notification worker %d: failed to email %s: %v", id, member.Email, err)
			continue
		}
		sent++
	}

	log.Printf("Notification worker %d: %s %q in group %d, %d emails sent", id, job.Type, job.Title, job.GroupID, sent)
}
