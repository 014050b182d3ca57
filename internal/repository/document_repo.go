package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"nexus-backend/internal/models"
)

type DocumentRepo struct {
	pool *pgxpool.Pool
}

func NewDocumentRepo(pool *pgxpool.Pool) *DocumentRepo {
	return &DocumentRepo{pool: pool}
}

func (r *DocumentRepo) Create(ctx context.Context, d *models.Document) error {
	query := `INSERT INTO documents (group_id, title, uploaded_by, file_url, file_name, page_count, deadline)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING document_id, uploaded_at`

	return r.pool.QueryRow(ctx, query,
		d.GroupID, d.Title, d.UploadedBy, d.FileURL, d.FileName, d.PageCount, d.Deadline,
	).Scan(&d.DocumentID, &d.UploadedAt)
}

func (r *DocumentRepo) GetByID(ctx context.Context, documentID int64) (*models.Document, error) {
	d := &models.Document{}
	query := `SELECT d.document_id, d.group_id, d.title, d.uploaded_by, u.name, d.file_url, d.file_name, d.page_count, d.deadline, d.uploaded_at
		FROM documents d
		JOIN users u ON u.id = d.uploaded_by
		WHERE d.document_id = $1`

	err := r.pool.QueryRow(ctx, query, documentID).Scan(
		&d.DocumentID, &d.GroupID, &d.Title, &d.UploadedBy, &d.AuthorName,
		&d.FileURL, &d.FileName, &d.PageCount, &d.Deadline, &d.UploadedAt,
	)
	if err != nil {
		return nil, err
	}

	sigs, err := r.listSignatures(ctx, documentID)
	if err != nil {
		return nil, err
	}
	d.Signatures = sigs
	return d, nil
}

func (r *DocumentRepo) Delete(ctx context.Context, documentID int64, uploadedBy uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		"DELETE FROM documents WHERE document_id = $1 AND uploaded_by = $2",
		documentID, uploadedBy,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *DocumentRepo) ListByGroup(ctx context.Context, groupID int64) ([]*models.Document, error) {
	query := `SELECT d.document_id, d.group_id, d.title, d.uploaded_by, u.name, d.file_url, d.file_name, d.page_count, d.deadline, d.uploaded_at
		FROM documents d
		JOIN users u ON u.id = d.uploaded_by
		WHERE d.group_id = $1
		ORDER BY d.uploaded_at DESC`

	rows, err := r.pool.Query(ctx, query, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		d := &models.Document{}
		if err := rows.Scan(
			&d.DocumentID, &d.GroupID, &d.Title, &d.UploadedBy, &d.AuthorName,
			&d.FileURL, &d.FileName, &d.PageCount, &d.Deadline, &d.UploadedAt,
		); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, d := range docs {
		sigs, err := r.listSignatures(ctx, d.DocumentID)
		if err != nil {
			return nil, err
		}
		d.Signatures = sigs
	}
	return docs, nil
}

// AddSignature records a verified signing. The (document_id, student_id)
// unique constraint makes repeated signs idempotent at the store.
func (r *DocumentRepo) AddSignature(ctx context.Context, documentID int64, studentID uuid.UUID) (*models.SignatureRecord, error) {
	sig := &models.SignatureRecord{}
	query := `INSERT INTO document_signatures (document_id, student_id)
		VALUES ($1, $2)
		ON CONFLICT (document_id, student_id) DO UPDATE SET student_id = EXCLUDED.student_id
		RETURNING signed_at,
			(SELECT COALESCE(usn, '') FROM users WHERE id = $2),
			(SELECT name FROM users WHERE id = $2)`

	err := r.pool.QueryRow(ctx, query, documentID, studentID).Scan(&sig.SignedAt, &sig.USN, &sig.Name)
	if err != nil {
		return nil, err
	}
	return sig, nil
}

func (r *DocumentRepo) listSignatures(ctx context.Context, documentID int64) ([]models.SignatureRecord, error) {
	query := `SELECT COALESCE(u.usn, ''), u.name, s.signed_at
		FROM document_signatures s
		JOIN users u ON u.id = s.student_id
		WHERE s.document_id = $1
		ORDER BY s.signed_at ASC`

	rows, err := r.pool.Query(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sigs := []models.SignatureRecord{}
	for rows.Next() {
		var s models.SignatureRecord
		if err := rows.Scan(&s.USN, &s.Name, &s.SignedAt); err != nil {
			return nil, err
		}
		sigs = append(sigs, s)
	}
	return sigs, rows.Err()
}
