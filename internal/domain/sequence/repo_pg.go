package sequence

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labflow/labflow/internal/platform/apperr"
	"github.com/labflow/labflow/internal/platform/db"
)

type counterStorePG struct{ pool *pgxpool.Pool }

func NewCounterStorePG(pool *pgxpool.Pool) CounterStore {
	return &counterStorePG{pool: pool}
}

// The upsert takes the row lock, so concurrent increments of one scope
// serialize inside PostgreSQL. The WHERE guard leaves a full counter
// untouched and returns no row.
const incrementSQL = `
	INSERT INTO sequence_counters (kind, year, month, count)
	VALUES ($1, $2, $3, 1)
	ON CONFLICT (kind, year, month) DO UPDATE
		SET count = sequence_counters.count + 1
		WHERE sequence_counters.count < $4
	RETURNING count`

func (r *counterStorePG) Increment(ctx context.Context, kind Kind, s Scope, ceiling int) (int, error) {
	var count int
	err := db.Conn(ctx, r.pool).QueryRow(ctx, incrementSQL, string(kind), s.Year, s.Month, ceiling).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%s counter %04d-%02d reached %d: %w", kind, s.Year, s.Month, ceiling, apperr.ErrCapacityExceeded)
	}
	if err != nil {
		return 0, fmt.Errorf("increment %s counter: %w", kind, err)
	}
	return count, nil
}

func (r *counterStorePG) Get(ctx context.Context, kind Kind, s Scope) (*Counter, error) {
	c := Counter{Kind: kind, Year: s.Year, Month: s.Month}
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT count FROM sequence_counters WHERE kind = $1 AND year = $2 AND month = $3`,
		string(kind), s.Year, s.Month).Scan(&c.Count)
	if errors.Is(err, pgx.ErrNoRows) {
		return &c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s counter: %w", kind, err)
	}
	return &c, nil
}
