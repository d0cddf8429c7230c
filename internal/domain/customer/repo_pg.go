package customer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labflow/labflow/internal/platform/apperr"
	"github.com/labflow/labflow/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const customerCols = `id, lab_id, hn, pid, title, first_name, last_name, gender, birth_date, phone, address, created_at, updated_at`

func scanCustomer(row pgx.Row) (*Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.LabID, &c.HN, &c.PID, &c.Title, &c.FirstName, &c.LastName,
		&c.Gender, &c.BirthDate, &c.Phone, &c.Address, &c.CreatedAt, &c.UpdatedAt)
	return &c, err
}

func (r *repoPG) Create(ctx context.Context, c *Customer) error {
	c.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO customers (id, lab_id, hn, pid, title, first_name, last_name, gender, birth_date, phone, address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`,
		c.ID, c.LabID, c.HN, c.PID, c.Title, c.FirstName, c.LastName, c.Gender, c.BirthDate, c.Phone, c.Address,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if db.IsUniqueViolation(err, "customers_lab_pid_key") {
		return fmt.Errorf("pid %s: %w", c.PID, apperr.ErrDuplicateCustomer)
	}
	if db.IsUniqueViolation(err, "customers_hn_key") {
		return fmt.Errorf("hn %s: %w", c.HN, apperr.ErrConflict)
	}
	return err
}

func (r *repoPG) Update(ctx context.Context, c *Customer) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE customers SET pid = $2, title = $3, first_name = $4, last_name = $5, gender = $6,
			birth_date = $7, phone = $8, address = $9, updated_at = NOW()
		WHERE id = $1 RETURNING updated_at`,
		c.ID, c.PID, c.Title, c.FirstName, c.LastName, c.Gender, c.BirthDate, c.Phone, c.Address,
	).Scan(&c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("customer", c.ID)
	}
	if db.IsUniqueViolation(err, "customers_lab_pid_key") {
		return fmt.Errorf("pid %s: %w", c.PID, apperr.ErrDuplicateCustomer)
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Customer, error) {
	c, err := scanCustomer(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+customerCols+` FROM customers WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("customer", id)
	}
	return c, err
}

func (r *repoPG) GetByPID(ctx context.Context, labID uuid.UUID, pid string) (*Customer, error) {
	c, err := scanCustomer(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+customerCols+` FROM customers WHERE lab_id = $1 AND pid = $2`, labID, pid))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("customer with pid", pid)
	}
	return c, err
}

func (r *repoPG) GetByHN(ctx context.Context, hn string) (*Customer, error) {
	c, err := scanCustomer(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+customerCols+` FROM customers WHERE hn = $1`, hn))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("customer with hn", hn)
	}
	return c, err
}

func (r *repoPG) Search(ctx context.Context, labID uuid.UUID, query string, limit, offset int) ([]*Customer, int, error) {
	q := db.Conn(ctx, r.pool)
	where := ` WHERE lab_id = $1 AND ($2 = '' OR hn = $2 OR pid = $2
		OR first_name ILIKE '%' || $2 || '%' OR last_name ILIKE '%' || $2 || '%')`

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM customers`+where, labID, query).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx, `SELECT `+customerCols+` FROM customers`+where+`
		ORDER BY created_at DESC LIMIT $3 OFFSET $4`, labID, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}
