package sequence

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/labflow/labflow/internal/platform/apperr"
	"github.com/labflow/labflow/internal/platform/clock"
	"github.com/labflow/labflow/internal/platform/metrics"
)

// Generator hands out gapless codes. Call it with the ctx of the transaction
// that stores the code's owner so a rollback also releases the counter value.
type Generator struct {
	store   CounterStore
	clock   clock.Clock
	metrics *metrics.Collector
	logger  zerolog.Logger
}

func NewGenerator(store CounterStore, clk clock.Clock, m *metrics.Collector, logger zerolog.Logger) *Generator {
	return &Generator{store: store, clock: clk, metrics: m, logger: logger}
}

// Next returns the next code of kind for the current business month.
func (g *Generator) Next(ctx context.Context, kind Kind) (string, error) {
	return g.NextAt(ctx, kind, g.clock.Now())
}

// NextAt returns the next code of kind for the month containing at.
func (g *Generator) NextAt(ctx context.Context, kind Kind, at time.Time) (string, error) {
	if !kind.Valid() {
		return "", apperr.Validation("unknown sequence kind %q", kind)
	}
	scope := ScopeOf(at)
	count, err := g.store.Increment(ctx, kind, scope, kind.Ceiling())
	if err != nil {
		if errors.Is(err, apperr.ErrCapacityExceeded) {
			g.metrics.SequenceCode(string(kind), "capacity_exceeded")
			g.logger.Error().Str("kind", string(kind)).
				Int("year", scope.Year).Int("month", scope.Month).
				Msg("sequence counter exhausted for month")
		}
		return "", err
	}
	g.metrics.SequenceCode(string(kind), "ok")
	return Format(kind, scope, count), nil
}

// Current reports the counter for kind in the current business month.
func (g *Generator) Current(ctx context.Context, kind Kind) (*Counter, error) {
	if !kind.Valid() {
		return nil, apperr.Validation("unknown sequence kind %q", kind)
	}
	return g.store.Get(ctx, kind, ScopeOf(g.clock.Now()))
}
