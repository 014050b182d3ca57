package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"nexus-backend/internal/models"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func (r *UserRepo) Create(ctx context.Context, u *models.User) error {
	u.ID = uuid.New()

	query := `INSERT INTO users (id, email, password_hash, name, role, usn, branch, year, group_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		u.ID, u.Email, u.PasswordHash, u.Name, u.Role, u.USN, u.Branch, u.Year, u.GroupID,
	).Scan(&u.CreatedAt)
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u := &models.User{}
	query := `SELECT id, email, password_hash, name, role, usn, branch, year, group_id, created_at, last_login_at
		FROM users WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.USN, &u.Branch,
		&u.Year, &u.GroupID, &u.CreatedAt, &u.LastLoginAt,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	u := &models.User{}
	query := `SELECT id, email, password_hash, name, role, usn, branch, year, group_id, created_at, last_login_at
		FROM users WHERE email = $1`

	err := r.pool.QueryRow(ctx, query, email).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.USN, &u.Branch,
		&u.Year, &u.GroupID, &u.CreatedAt, &u.LastLoginAt,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *UserRepo) UpdateLastLogin(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, "UPDATE users SET last_login_at = NOW() WHERE id = $1", id)
	return err
}

// ListGroupMembers returns every user attached to a group, used by the
// notification worker to address announcement emails.
func (r *UserRepo) ListGroupMembers(ctx context.Context, groupID int64) ([]*models.User, error) {
	query := `SELECT id, email, password_hash, name, role, usn, branch, year, group_id, created_at, last_login_at
		FROM users WHERE group_id = $1`

	rows, err := r.pool.Query(ctx, query, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u := &models.User{}
		if err := rows.Scan(
			&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.USN, &u.Branch,
			&u.Year, &u.GroupID, &u.CreatedAt, &u.LastLoginAt,
		); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// IsMemberOfGroup reports whether the user belongs to the group, either as an
// enrolled student or as a lecturer linked through lecturer_groups.
func (r *UserRepo) IsMemberOfGroup(ctx context.Context, userID uuid.UUID, groupID int64) (bool, error) {
	var member bool
	query := `SELECT EXISTS(
			SELECT 1 FROM users WHERE id = $1 AND group_id = $2
			UNION
			SELECT 1 FROM lecturer_groups WHERE lecturer_id = $1 AND group_id = $2
		)`
	err := r.pool.QueryRow(ctx, query, userID, groupID).Scan(&member)
	return member, err
}
