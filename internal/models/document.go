package models

import (
	"time"

	"github.com/google/uuid"
)

type Document struct {
	DocumentID int64             `json:"document_id"`
	GroupID    int64             `json:"group_id"`
	Title      string            `json:"title"`
	UploadedBy uuid.UUID         `json:"uploaded_by"`
	AuthorName string            `json:"author_name"`
	FileURL    *string           `json:"file_url"`
	FileName   *string           `json:"file_name"`
	PageCount  *int              `json:"page_count"`
	Deadline   *time.Time        `json:"deadline"`
	UploadedAt time.Time         `json:"uploaded_at"`
	Signatures []SignatureRecord `json:"signatures"`
}

// SignatureRecord is the derived signature-set entry shown per document. The
// authoritative copy lives in the document_signatures table.
type SignatureRecord struct {
	USN      string    `json:"usn"`
	Name     string    `json:"name"`
	SignedAt time.Time `json:"signed_at"`
}

type SignResponse struct {
	DocumentID int64           `json:"document_id"`
	Signed     bool            `json:"signed"`
	Signature  SignatureRecord `json:"signature"`
}
