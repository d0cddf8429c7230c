package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type PaymentRepository interface {
	Create(ctx context.Context, p *Payment) error
	// ExpireCurrent stamps expired_at on the order's current payment, if any.
	ExpireCurrent(ctx context.Context, orderID uuid.UUID, at time.Time) error
	GetCurrent(ctx context.Context, orderID uuid.UUID) (*Payment, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*Payment, error)
}
