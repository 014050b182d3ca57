package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"nexus-backend/internal/models"
)

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

// Create assigns the authoritative doubt_id. The hub must not broadcast a
// message until this returns, so an identifier is never reused or guessed.
func (r *MessageRepo) Create(ctx context.Context, m *models.Message) error {
	query := `INSERT INTO doubt_clarifications (group_id, sender_id, sender_role, message, parent_doubt_id)
		VALUES ($1, $2, $3, $4, $5) RETURNING doubt_id, created_at`

	return r.pool.QueryRow(ctx, query,
		m.GroupID, m.SenderID, m.SenderRole, m.Message, m.ReplyTo,
	).Scan(&m.DoubtID, &m.CreatedAt)
}

func (r *MessageRepo) GetByID(ctx context.Context, doubtID int64) (*models.Message, error) {
	m := &models.Message{}
	query := `SELECT d.doubt_id, d.group_id, d.sender_id, u.name, d.sender_role, d.message, d.created_at, d.parent_doubt_id
		FROM doubt_clarifications d
		JOIN users u ON u.id = d.sender_id
		WHERE d.doubt_id = $1`

	err := r.pool.QueryRow(ctx, query, doubtID).Scan(
		&m.DoubtID, &m.GroupID, &m.SenderID, &m.SenderName, &m.SenderRole,
		&m.Message, &m.CreatedAt, &m.ReplyTo,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MessageRepo) Delete(ctx context.Context, doubtID int64) error {
	_, err := r.pool.Exec(ctx, "DELETE FROM doubt_clarifications WHERE doubt_id = $1", doubtID)
	return err
}

// ListByGroup backfills the chat view at attachment time. Live updates after
// this point arrive over the socket and are merged by identifier client-side.
func (r *MessageRepo) ListByGroup(ctx context.Context, groupID int64) ([]*models.Message, error) {
	query := `SELECT d.doubt_id, d.group_id, d.sender_id, u.name, d.sender_role, d.message, d.created_at, d.parent_doubt_id
		FROM doubt_clarifications d
		JOIN users u ON u.id = d.sender_id
		WHERE d.group_id = $1
		ORDER BY d.created_at ASC`

	rows, err := r.pool.Query(ctx, query, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*models.Message
	for rows.Next() {
		m := &models.Message{}
		if err := rows.Scan(
			&m.DoubtID, &m.GroupID, &m.SenderID, &m.SenderName, &m.SenderRole,
			&m.Message, &m.CreatedAt, &m.ReplyTo,
		); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
