package activity

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labflow/labflow/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) Create(ctx context.Context, a *Activity) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO lab_activities (id, lab_id, actor_id, message, detail, added_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.LabID, a.ActorID, a.Message, a.Detail, a.AddedAt)
	return err
}

func (r *repoPG) ListByLab(ctx context.Context, labID uuid.UUID, limit, offset int) ([]*Activity, int, error) {
	q := db.Conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM lab_activities WHERE lab_id = $1`, labID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx, `
		SELECT id, lab_id, actor_id, message, detail, added_at
		FROM lab_activities WHERE lab_id = $1
		ORDER BY added_at DESC, id LIMIT $2 OFFSET $3`, labID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Activity
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.ID, &a.LabID, &a.ActorID, &a.Message, &a.Detail, &a.AddedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &a)
	}
	return items, total, rows.Err()
}
