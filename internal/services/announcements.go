package services

import (
	"context"
	"encoding/json"
	"log"

	"nexus-backend/internal/middleware"
	"nexus-backend/internal/models"
	"nexus-backend/internal/repository"
)

// eventPublisher pushes typed create/delete events onto the per-group live
// feed. Satisfied by live.Publisher.
type eventPublisher interface {
	Publish(ctx context.Context, ev models.LiveEvent) error
}

type AnnouncementService struct {
	repo      *repository.AnnouncementRepo
	userRepo  *repository.UserRepo
	publisher eventPublisher
	notifier  *Notifier
}

func NewAnnouncementService(repo *repository.AnnouncementRepo, userRepo *repository.UserRepo, publisher eventPublisher, notifier *Notifier) *AnnouncementService {
	return &AnnouncementService{
		repo:      repo,
		userRepo:  userRepo,
		publisher: publisher,
		notifier:  notifier,
	}
}

func (s *AnnouncementService) Create(ctx context.Context, id middleware.Identity, groupID int64, req models.PostAnnouncementRequest) (*models.Announcement, error) {
	fieldErrors := make(map[string]string)
	if req.Kind != models.KindMaterial && req.Kind != models.KindEvent {
		fieldErrors["kind"] = "Kind must be material or event"
	}
	if req.Title == "" {
		fieldErrors["title"] = "Title is required"
	}
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Fields: fieldErrors}
	}

	member, err := s.userRepo.IsMemberOfGroup(ctx, id.UserID, groupID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, &ForbiddenError{Message: "You do not teach this group"}
	}

	a := &models.Announcement{
		Kind:       req.Kind,
		GroupID:    groupID,
		Title:      req.Title,
		Content:    req.Content,
		AuthorID:   id.UserID,
		AuthorName: id.Name,
	}
	if req.FileURL != "" {
		a.FileURL = &req.FileURL
	}

	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}

	s.publishCreate(ctx, a)
	s.enqueueNotification(ctx, a)

	return a, nil
}

func (s *AnnouncementService) Delete(ctx context.Context, id middleware.Identity, groupID int64, annID string) error {
	kind, _, err := repository.SplitAnnouncementID(annID)
	if err != nil {
		return &ValidationError{Fields: map[string]string{"id": "Malformed announcement id"}}
	}

	found, err := s.repo.Delete(ctx, annID, id.UserID)
	if err != nil {
		return err
	}
	if !found {
		return &NotFoundError{Message: "Announcement not found or not posted by you"}
	}

	ev := models.LiveEvent{
		Type:    models.EventDelete,
		Kind:    kind,
		ID:      annID,
		GroupID: groupID,
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		log.Printf("announcement delete: failed to publish event for %s: %v", annID, err)
	}
	return nil
}

func (s *AnnouncementService) ListByGroup(ctx context.Context, id middleware.Identity, groupID int64) ([]*models.Announcement, error) {
	member, err := s.userRepo.IsMemberOfGroup(ctx, id.UserID, groupID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, &ForbiddenError{Message: "You are not a member of this group"}
	}
	return s.repo.ListByGroup(ctx, groupID)
}

func (s *AnnouncementService) publishCreate(ctx context.Context, a *models.Announcement) {
	payload, err := json.Marshal(a)
	if err != nil {
		log.Printf("announcement create: failed to marshal %s: %v", a.ID, err)
		return
	}
	ev := models.LiveEvent{
		Type:    models.EventCreate,
		Kind:    a.Kind,
		ID:      a.ID,
		GroupID: a.GroupID,
		Payload: payload,
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		log.Printf("announcement create: failed to publish event for %s: %v", a.ID, err)
	}
}

func (s *AnnouncementService) enqueueNotification(ctx context.Context, a *models.Announcement) {
	job := NotificationJob{
		Type:       NotificationAnnouncement,
		GroupID:    a.GroupID,
		Kind:       a.Kind,
		Title:      a.Title,
		AuthorName: a.AuthorName,
	}
	if err := s.notifier.Enqueue(ctx, job); err != nil {
		log.Printf("announcement create: %v", err)
	}
}
