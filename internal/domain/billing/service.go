package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/labflow/labflow/internal/domain/activity"
	"github.com/labflow/labflow/internal/domain/catalog"
	"github.com/labflow/labflow/internal/domain/order"
	"github.com/labflow/labflow/internal/platform/apperr"
	"github.com/labflow/labflow/internal/platform/clock"
	"github.com/labflow/labflow/internal/platform/db"
	"github.com/labflow/labflow/internal/platform/metrics"
)

type Orders interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*order.TestOrder, error)
}

type Catalog interface {
	GetTest(ctx context.Context, id uuid.UUID) (*catalog.Test, error)
}

type ActivityRecorder interface {
	Record(ctx context.Context, labID uuid.UUID, actorID, message, detail string) (*activity.Activity, error)
	Publish(ctx context.Context, acts ...*activity.Activity)
}

type Service struct {
	payments PaymentRepository
	orders   Orders
	catalog  Catalog
	activity ActivityRecorder
	tx       db.Transactor
	clock    clock.Clock
	metrics  *metrics.Collector
}

func NewService(payments PaymentRepository, orders Orders, cat Catalog, act ActivityRecorder,
	tx db.Transactor, clk clock.Clock, m *metrics.Collector) *Service {
	return &Service{payments: payments, orders: orders, catalog: cat, activity: act, tx: tx, clock: clk, metrics: m}
}

func (s *Service) lines(ctx context.Context, o *order.TestOrder) ([]Line, error) {
	active := o.ActiveRecords()
	out := make([]Line, 0, len(active))
	for _, r := range active {
		t, err := s.catalog.GetTest(ctx, r.TestID)
		if err != nil {
			return nil, err
		}
		out = append(out, Line{
			Seq:       r.Seq,
			RecordID:  r.ID,
			TestID:    t.ID,
			Code:      t.Code,
			Name:      t.Name,
			Price:     t.Price,
			ProfileID: r.ProfileID,
			PackageID: r.PackageID,
		})
	}
	return out, nil
}

// Invoice prices the order's active records and attaches the current
// payment, if there is one.
func (s *Service) Invoice(ctx context.Context, orderID uuid.UUID) (*Invoice, error) {
	o, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	lines, err := s.lines(ctx, o)
	if err != nil {
		return nil, err
	}
	inv := &Invoice{
		OrderID:       o.ID,
		OrderCode:     o.Code,
		CustomerID:    o.CustomerID,
		Lines:         lines,
		AmountBalance: AmountBalance(lines),
	}
	p, err := s.payments.GetCurrent(ctx, o.ID)
	switch {
	case err == nil:
		inv.Payment = p
	case !errors.Is(err, apperr.ErrNotFound):
		return nil, err
	}
	return inv, nil
}

func validateInput(in PaymentInput) error {
	if !in.DiscountType.Valid() {
		return apperr.Validation("unknown discount type %d", in.DiscountType)
	}
	if in.Amount.IsNegative() || in.GrandTotal.IsNegative() || in.DiscountAmount.IsNegative() {
		return apperr.Validation("amounts must not be negative")
	}
	if in.DiscountType == DiscountPercentage && in.DiscountAmount.GreaterThan(decimal.NewFromInt(100)) {
		return apperr.Validation("discount rate %s exceeds 100", in.DiscountAmount)
	}
	return nil
}

// RecordPayment replaces the order's current payment with a new one.
func (s *Service) RecordPayment(ctx context.Context, orderID uuid.UUID, in PaymentInput, actorID string) (*Payment, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	o, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Cancelled() {
		return nil, apperr.Validation("order %s is cancelled", o.Code)
	}
	lines, err := s.lines(ctx, o)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	p := &Payment{
		OrderID:        o.ID,
		Amount:         in.Amount,
		AmountBalance:  AmountBalance(lines),
		GrandTotal:     in.GrandTotal,
		DiscountType:   in.DiscountType,
		DiscountAmount: in.DiscountAmount,
		Method:         in.Method,
		Creator:        actorID,
		CreatedAt:      now,
		PaidAt:         now,
		ReceiptID:      strings.TrimSpace(in.ReceiptID),
	}
	if in.PaidAt != nil {
		p.PaidAt = *in.PaidAt
	}
	if p.DiscountType == DiscountNone {
		p.DiscountAmount = decimal.Zero
	}

	var act *activity.Activity
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.payments.ExpireCurrent(ctx, o.ID, now); err != nil {
			return err
		}
		if err := s.payments.Create(ctx, p); err != nil {
			return err
		}
		var err error
		act, err = s.activity.Record(ctx, o.LabID, actorID, activity.MsgPayment,
			fmt.Sprintf("%s: %s %s", o.Code, p.Amount.StringFixed(2), p.Method))
		return err
	})
	if err != nil {
		return nil, err
	}
	s.activity.Publish(ctx, act)
	s.metrics.Payment(p.DiscountType.String())
	return p, nil
}

func (s *Service) ListPayments(ctx context.Context, orderID uuid.UUID) ([]*Payment, error) {
	if _, err := s.orders.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return s.payments.ListByOrder(ctx, orderID)
}
