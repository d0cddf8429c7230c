package order

import (
	"context"

	"github.com/google/uuid"
)

type OrderRepository interface {
	Create(ctx context.Context, o *TestOrder) error
	// Update stores cancelled_at, approved_at and approver.
	Update(ctx context.Context, o *TestOrder) error
	// GetByID returns the order without its records.
	GetByID(ctx context.Context, id uuid.UUID) (*TestOrder, error)
	GetByCode(ctx context.Context, code string) (*TestOrder, error)
	ListByLab(ctx context.Context, labID uuid.UUID, f ListFilter, limit, offset int) ([]*TestOrder, int, error)
}

type RecordRepository interface {
	Create(ctx context.Context, r *TestRecord) error
	// Update stores the record's tags and mutable progress fields.
	Update(ctx context.Context, r *TestRecord) error
	// GetByID returns the record with its reject record, if any.
	GetByID(ctx context.Context, id uuid.UUID) (*TestRecord, error)
	// ListByOrder returns an order's records in creation order.
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*TestRecord, error)
	CreateReject(ctx context.Context, rr *RejectRecord) error
	// CreateRevision appends rev to its record's history and sets ID and Rev.
	CreateRevision(ctx context.Context, rev *RecordRevision) error
	// ListRevisions returns a record's history, oldest first.
	ListRevisions(ctx context.Context, recordID uuid.UUID) ([]*RecordRevision, error)
	ListRejectedByLab(ctx context.Context, labID uuid.UUID, limit, offset int) ([]*RejectedRecord, int, error)
}
