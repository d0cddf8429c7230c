package customer

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, c *Customer) error
	// Update stores every field except HN.
	Update(ctx context.Context, c *Customer) error
	GetByID(ctx context.Context, id uuid.UUID) (*Customer, error)
	GetByPID(ctx context.Context, labID uuid.UUID, pid string) (*Customer, error)
	GetByHN(ctx context.Context, hn string) (*Customer, error)
	// Search matches query against HN, PID and name within a lab.
	Search(ctx context.Context, labID uuid.UUID, query string, limit, offset int) ([]*Customer, int, error)
}
