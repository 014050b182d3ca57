package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"nexus-backend/internal/middleware"
	"nexus-backend/internal/models"
	"nexus-backend/internal/reconcile"
	"nexus-backend/internal/repository"
)

type DocumentService struct {
	repo        *repository.DocumentRepo
	userRepo    *repository.UserRepo
	extract     *DocExtractService
	face        *FaceVerifyService
	publisher   eventPublisher
	notifier    *Notifier
	storagePath string
}

func NewDocumentService(
	repo *repository.DocumentRepo,
	userRepo *repository.UserRepo,
	extract *DocExtractService,
	face *FaceVerifyService,
	publisher eventPublisher,
	notifier *Notifier,
	storagePath string,
) *DocumentService {
	return &DocumentService{
		repo:        repo,
		userRepo:    userRepo,
		extract:     extract,
		face:        face,
		publisher:   publisher,
		notifier:    notifier,
		storagePath: storagePath,
	}
}

// Upload validates and stores a PDF that group members will sign.
func (s *DocumentService) Upload(ctx context.Context, id middleware.Identity, groupID int64, title, fileName string, data []byte, deadline *time.Time) (*models.Document, error) {
	fieldErrors := make(map[string]string)
	if title == "" {
		fieldErrors["title"] = "Title is required"
	}
	if len(data) == 0 {
		fieldErrors["file"] = "File is required"
	}
	if !strings.EqualFold(filepath.Ext(fileName), ".pdf") {
		fieldErrors["file"] = "Only PDF documents are accepted"
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

	pages, err := s.extract.InspectPDF(data)
	if err != nil {
		return nil, err
	}

	storedName := fmt.Sprintf("%d_%s", time.Now().UnixNano(), filepath.Base(fileName))
	if err := os.MkdirAll(s.storagePath, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.storagePath, storedName), data, 0o644); err != nil {
		return nil, fmt.Errorf("storing document: %w", err)
	}

	fileURL := "/files/" + storedName
	d := &models.Document{
		GroupID:    groupID,
		Title:      title,
		UploadedBy: id.UserID,
		AuthorName: id.Name,
		FileURL:    &fileURL,
		FileName:   &fileName,
		PageCount:  &pages,
		Deadline:   deadline,
		Signatures: []models.SignatureRecord{},
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, err
	}

	s.publishDocument(ctx, d)

	job := NotificationJob{
		Type:       NotificationDocument,
		GroupID:    groupID,
		Title:      title,
		AuthorName: id.Name,
		Deadline:   deadline,
	}
	if err := s.notifier.Enqueue(ctx, job); err != nil {
		log.Printf("document upload: %v", err)
	}

	return d, nil
}

// ListByGroup returns the group's documents with signature sets. For students
// the order is viewer-relative: documents still awaiting their signature
// first, nearest deadline next, no deadline last.
func (s *DocumentService) ListByGroup(ctx context.Context, id middleware.Identity, groupID int64) ([]models.Document, error) {
	member, err := s.userRepo.IsMemberOfGroup(ctx, id.UserID, groupID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, &ForbiddenError{Message: "You are not a member of this group"}
	}

	stored, err := s.repo.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	docs := make([]models.Document, 0, len(stored))
	for _, d := range stored {
		docs = append(docs, *d)
	}

	if id.Role == models.RoleStudent {
		if usn, err := s.viewerUSN(ctx, id); err == nil {
			reconcile.SortDocuments(docs, usn)
		}
	}
	return docs, nil
}

func (s *DocumentService) Delete(ctx context.Context, id middleware.Identity, groupID, documentID int64) error {
	found, err := s.repo.Delete(ctx, documentID, id.UserID)
	if err != nil {
		return err
	}
	if !found {
		return &NotFoundError{Message: "Document not found or not uploaded by you"}
	}

	ev := models.LiveEvent{
		Type:    models.EventDelete,
		Kind:    models.KindDocument,
		ID:      strconv.FormatInt(documentID, 10),
		GroupID: groupID,
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		log.Printf("document delete: failed to publish event for %d: %v", documentID, err)
	}
	return nil
}

// Sign verifies the submitted frame against the student's enrolled face and,
// on a match, records the signature and pushes the refreshed document onto
// the live feed.
func (s *DocumentService) Sign(ctx context.Context, id middleware.Identity, documentID int64, frame []byte) (*models.SignResponse, error) {
	if len(frame) == 0 {
		return nil, &ValidationError{Fields: map[string]string{"img": "A face frame is required"}}
	}

	usn, err := s.viewerUSN(ctx, id)
	if err != nil {
		return nil, err
	}

	doc, err := s.repo.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Document not found"}
		}
		return nil, err
	}

	member, err := s.userRepo.IsMemberOfGroup(ctx, id.UserID, doc.GroupID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, &ForbiddenError{Message: "This document belongs to another group"}
	}

	verified, err := s.face.VerifyFace(ctx, usn, frame)
	if err != nil {
		return nil, err
	}
	if !verified {
		return nil, &ForbiddenError{Message: "Face verification failed. The captured face does not match the enrolled record."}
	}

	sig, err := s.repo.AddSignature(ctx, documentID, id.UserID)
	if err != nil {
		return nil, err
	}

	// Re-read so the published event carries the full signature set.
	if updated, err := s.repo.GetByID(ctx, documentID); err == nil {
		s.publishDocument(ctx, updated)
	} else {
		log.Printf("document sign: failed to reload %d for publish: %v", documentID, err)
	}

	return &models.SignResponse{
		DocumentID: documentID,
		Signed:     true,
		Signature:  *sig,
	}, nil
}

func (s *DocumentService) viewerUSN(ctx context.Context, id middleware.Identity) (string, error) {
	user, err := s.userRepo.GetByID(ctx, id.UserID)
	if err != nil {
		return "", err
	}
	if user.USN == nil || *user.USN == "" {
		return "", &ForbiddenError{Message: "Only enrolled students can sign documents"}
	}
	return *user.USN, nil
}

func (s *DocumentService) publishDocument(ctx context.Context, d *models.Document) {
	payload, err := json.Marshal(d)
	if err != nil {
		log.Printf("document publish: failed to marshal %d: %v", d.DocumentID, err)
		return
	}
	ev := models.LiveEvent{
		Type:    models.EventCreate,
		Kind:    models.KindDocument,
		ID:      strconv.FormatInt(d.DocumentID, 10),
		GroupID: d.GroupID,
		Payload: payload,
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		log.Printf("document publish: failed to publish event for %d: %v", d.DocumentID, err)
	}
}
