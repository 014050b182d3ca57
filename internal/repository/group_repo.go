package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type GroupRepo struct {
	pool *pgxpool.Pool
}

func NewGroupRepo(pool *pgxpool.Pool) *GroupRepo {
	return &GroupRepo{pool: pool}
}

func (r *GroupRepo) GetName(ctx context.Context, groupID int64) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, "SELECT name FROM groups WHERE group_id = $1", groupID).Scan(&name)
	return name, err
}
