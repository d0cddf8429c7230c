package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labflow/labflow/internal/platform/apperr"
	"github.com/labflow/labflow/internal/platform/db"
)

type paymentRepoPG struct{ pool *pgxpool.Pool }

func NewPaymentRepoPG(pool *pgxpool.Pool) PaymentRepository {
	return &paymentRepoPG{pool: pool}
}

const paymentCols = `id, order_id, amount, amount_balance, grand_total, discount_type,
	discount_amount, method, creator, created_at, payment_datetime, expired_at, receipt_id`

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.Amount, &p.AmountBalance, &p.GrandTotal, &p.DiscountType,
		&p.DiscountAmount, &p.Method, &p.Creator, &p.CreatedAt, &p.PaidAt, &p.ExpiredAt, &p.ReceiptID)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepoPG) Create(ctx context.Context, p *Payment) error {
	p.ID = uuid.New()
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO payment_records (`+paymentCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		p.ID, p.OrderID, p.Amount, p.AmountBalance, p.GrandTotal, p.DiscountType,
		p.DiscountAmount, p.Method, p.Creator, p.CreatedAt, p.PaidAt, p.ExpiredAt, p.ReceiptID)
	if db.IsUniqueViolation(err, "payment_records_order_current_key") {
		return fmt.Errorf("order %s already has a current payment: %w", p.OrderID, apperr.ErrConflict)
	}
	return err
}

func (r *paymentRepoPG) ExpireCurrent(ctx context.Context, orderID uuid.UUID, at time.Time) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE payment_records SET expired_at = $2
		WHERE order_id = $1 AND expired_at IS NULL`, orderID, at)
	return err
}

func (r *paymentRepoPG) GetCurrent(ctx context.Context, orderID uuid.UUID) (*Payment, error) {
	p, err := scanPayment(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+paymentCols+` FROM payment_records WHERE order_id = $1 AND expired_at IS NULL`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("payment for order", orderID)
	}
	return p, err
}

func (r *paymentRepoPG) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*Payment, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+paymentCols+` FROM payment_records WHERE order_id = $1 ORDER BY created_at DESC, id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
