package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"nexus-backend/internal/models"
)

// AnnouncementRepo stores the two announcement sub-collections. Materials and
// events live in separate tables but share one kind-qualified identifier
// namespace ("material-7", "event-3") so feed consumers can route deletes.
type AnnouncementRepo struct {
	pool *pgxpool.Pool
}

func NewAnnouncementRepo(pool *pgxpool.Pool) *AnnouncementRepo {
	return &AnnouncementRepo{pool: pool}
}

func (r *AnnouncementRepo) Create(ctx context.Context, a *models.Announcement) error {
	var table, idCol string
	switch a.Kind {
	case models.KindMaterial:
		table, idCol = "study_materials", "material_id"
	case models.KindEvent:
		table, idCol = "events", "event_id"
	default:
		return fmt.Errorf("invalid announcement kind %q", a.Kind)
	}

	var numericID int64
	query := fmt.Sprintf(`INSERT INTO %s (group_id, title, content, author_id, file_url)
		VALUES ($1, $2, $3, $4, $5) RETURNING %s, created_at`, table, idCol)

	err := r.pool.QueryRow(ctx, query,
		a.GroupID, a.Title, a.Content, a.AuthorID, a.FileURL,
	).Scan(&numericID, &a.CreatedAt)
	if err != nil {
		return err
	}

	a.ID = fmt.Sprintf("%s-%d", a.Kind, numericID)
	return nil
}

// Delete removes the announcement behind a kind-qualified id, but only when
// authorID posted it. Returns pgx.ErrNoRows semantics via found=false.
func (r *AnnouncementRepo) Delete(ctx context.Context, id string, authorID uuid.UUID) (bool, error) {
	kind, numericID, err := SplitAnnouncementID(id)
	if err != nil {
		return false, err
	}

	var table, idCol string
	switch kind {
	case models.KindMaterial:
		table, idCol = "study_materials", "material_id"
	case models.KindEvent:
		table, idCol = "events", "event_id"
	default:
		return false, fmt.Errorf("invalid announcement kind %q", kind)
	}

	tag, err := r.pool.Exec(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE %s = $1 AND author_id = $2", table, idCol),
		numericID, authorID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *AnnouncementRepo) ListByGroup(ctx context.Context, groupID int64) ([]*models.Announcement, error) {
	query := `
		SELECT 'material-' || m.material_id, 'material', m.group_id, m.title, m.content, m.author_id, u.name, m.file_url, m.created_at
		FROM study_materials m JOIN users u ON u.id = m.author_id
		WHERE m.group_id = $1
		UNION ALL
		SELECT 'event-' || e.event_id, 'event', e.group_id, e.title, e.content, e.author_id, u.name, e.file_url, e.created_at
		FROM events e JOIN users u ON u.id = e.author_id
		WHERE e.group_id = $1
		ORDER BY 9 DESC`

	rows, err := r.pool.Query(ctx, query, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var anns []*models.Announcement
	for rows.Next() {
		a := &models.Announcement{}
		if err := rows.Scan(
			&a.ID, &a.Kind, &a.GroupID, &a.Title, &a.Content, &a.AuthorID,
			&a.AuthorName, &a.FileURL, &a.CreatedAt,
		); err != nil {
			return nil, err
		}
		anns = append(anns, a)
	}
	return anns, rows.Err()
}

// SplitAnnouncementID parses a kind-qualified identifier like "material-7".
func SplitAnnouncementID(id string) (kind string, numericID int64, err error) {
	kind, rest, ok := strings.Cut(id, "-")
	if !ok {
		return "", 0, fmt.Errorf("malformed announcement id %q", id)
	}
	numericID, err = strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed announcement id %q", id)
	}
	return kind, numericID, nil
}
