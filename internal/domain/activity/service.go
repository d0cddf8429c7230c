package activity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/labflow/labflow/internal/platform/clock"
	"github.com/labflow/labflow/internal/platform/events"
	"github.com/labflow/labflow/internal/platform/metrics"
)

// Log writes activities alongside the mutation they describe and forwards
// them to the event stream once that mutation has committed.
type Log struct {
	repo      Repository
	publisher events.Publisher
	clock     clock.Clock
	metrics   *metrics.Collector
	logger    zerolog.Logger
}

func NewLog(repo Repository, pub events.Publisher, clk clock.Clock, m *metrics.Collector, logger zerolog.Logger) *Log {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Log{repo: repo, publisher: pub, clock: clk, metrics: m, logger: logger}
}

// Record stores an activity using the transaction bound to ctx, if any.
func (l *Log) Record(ctx context.Context, labID uuid.UUID, actorID, message, detail string) (*Activity, error) {
	a := &Activity{
		ID:      uuid.New(),
		LabID:   labID,
		ActorID: actorID,
		Message: message,
		Detail:  detail,
		AddedAt: l.clock.Now(),
	}
	if err := l.repo.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("record activity: %w", err)
	}
	return a, nil
}

// Publish forwards committed activities. Failures are logged and counted;
// they never reach the caller.
func (l *Log) Publish(ctx context.Context, acts ...*Activity) {
	for _, a := range acts {
		if a == nil {
			continue
		}
		if err := l.publisher.Publish(ctx, a.LabID.String(), a); err != nil {
			l.metrics.PublishFailed()
			l.logger.Warn().Err(err).
				Str("activity_id", a.ID.String()).
				Str("lab_id", a.LabID.String()).
				Str("message", a.Message).
				Msg("failed to publish lab activity")
		}
	}
}

func (l *Log) List(ctx context.Context, labID uuid.UUID, limit, offset int) ([]*Activity, int, error) {
	return l.repo.ListByLab(ctx, labID, limit, offset)
}
