package activity

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *Activity) error
	// ListByLab returns the newest activities first.
	ListByLab(ctx context.Context, labID uuid.UUID, limit, offset int) ([]*Activity, int, error)
}
