package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"github.com/labflow/labflow/internal/domain/activity"
	"github.com/labflow/labflow/internal/domain/catalog"
	"github.com/labflow/labflow/internal/domain/order"
	"github.com/labflow/labflow/internal/platform/apperr"
	"github.com/labflow/labflow/internal/platform/clock"
	"github.com/labflow/labflow/internal/platform/db"
	"github.com/labflow/labflow/internal/platform/metrics"
)

type testEnv struct {
	svc      *Service
	payments *mockPaymentRepo
	orders   fakeOrders
	tests    fakeCatalog
	activity *fakeActivity
	metrics  *metrics.Collector
	clock    *clock.Fixed
	lab      uuid.UUID
}

func newTestEnv() *testEnv {
	env := &testEnv{
		payments: &mockPaymentRepo{},
		orders:   fakeOrders{},
		tests:    fakeCatalog{},
		activity: &fakeActivity{},
		metrics:  metrics.New(prometheus.NewRegistry()),
		clock:    &clock.Fixed{T: time.Date(2025, 3, 14, 10, 0, 0, 0, time.FixedZone("ICT", 7*3600))},
		lab:      uuid.New(),
	}
	env.svc = NewService(env.payments, env.orders, env.tests, env.activity, db.NopTransactor{}, env.clock, env.metrics)
	return env
}

// newOrder builds an order with one pending record per price.
func (e *testEnv) newOrder(prices ...int64) *order.TestOrder {
	o := &order.TestOrder{ID: uuid.New(), LabID: e.lab, CustomerID: uuid.New(), Code: "2503000001"}
	for i, p := range prices {
		t := &catalog.Test{ID: uuid.New(), LabID: e.lab, Code: string(rune('A' + i)), Name: "Test", Price: decimal.NewFromInt(p), Active: true}
		e.tests[t.ID] = t
		o.Records = append(o.Records, &order.TestRecord{ID: uuid.New(), OrderID: o.ID, TestID: t.ID, Seq: i + 1})
	}
	e.orders[o.ID] = o
	return o
}

func TestInvoice_BalanceOfActiveRecords(t *testing.T) {
	env := newTestEnv()
	o := env.newOrder(300, 150, 80)
	rejectID := uuid.New()
	o.Records[2].RejectRecordID = &rejectID
	o.Records[2].Cancelled = true

	inv, err := env.svc.Invoice(context.Background(), o.ID)
	if err != nil {
		t.Fatalf("Invoice: %v", err)
	}
	if len(inv.Lines) != 2 {
		t.Fatalf("rejected records are not billed, expected 2 lines, got %d", len(inv.Lines))
	}
	if !inv.AmountBalance.Equal(decimal.NewFromInt(450)) {
		t.Errorf("expected balance 450, got %s", inv.AmountBalance)
	}
	if inv.Payment != nil {
		t.Errorf("expected no payment, got %+v", inv.Payment)
	}
}

func TestInvoice_CancellingRecordReducesBalanceByItsPrice(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	o := env.newOrder(300, 150, 80)

	before, _ := env.svc.Invoice(ctx, o.ID)
	for i, r := range o.Records {
		r.Cancelled = true
		after, err := env.svc.Invoice(ctx, o.ID)
		if err != nil {
			t.Fatalf("Invoice: %v", err)
		}
		price := env.tests[r.TestID].Price
		if diff := before.AmountBalance.Sub(after.AmountBalance); !diff.Equal(price) {
			t.Errorf("record %d: balance dropped by %s, expected %s", i, diff, price)
		}
		before = after
	}
	if !before.AmountBalance.IsZero() {
		t.Errorf("expected zero balance with every record cancelled, got %s", before.AmountBalance)
	}
}

func TestInvoice_CancelledOrder(t *testing.T) {
	env := newTestEnv()
	o := env.newOrder(300)
	now := env.clock.Now()
	o.CancelledAt = &now

	inv, err := env.svc.Invoice(context.Background(), o.ID)
	if err != nil {
		t.Fatalf("Invoice: %v", err)
	}
	if len(inv.Lines) != 0 || !inv.AmountBalance.IsZero() {
		t.Errorf("a cancelled order bills nothing, got %+v", inv)
	}
}

func TestRealizedDiscount(t *testing.T) {
	tests := []struct {
		name string
		p    Payment
		want string
	}{
		{"none", Payment{DiscountType: DiscountNone, AmountBalance: decimal.NewFromInt(500), GrandTotal: decimal.NewFromInt(500)}, "0"},
		{"percentage back-computed", Payment{DiscountType: DiscountPercentage, DiscountAmount: decimal.NewFromInt(10),
			AmountBalance: decimal.NewFromInt(500), GrandTotal: decimal.NewFromInt(450)}, "50"},
		{"percentage uses the entered total", Payment{DiscountType: DiscountPercentage, DiscountAmount: decimal.NewFromInt(10),
			AmountBalance: decimal.NewFromInt(500), GrandTotal: decimal.NewFromInt(420)}, "80"},
		{"fixed", Payment{DiscountType: DiscountFixed, DiscountAmount: decimal.NewFromInt(75),
			AmountBalance: decimal.NewFromInt(500), GrandTotal: decimal.NewFromInt(425)}, "75"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.RealizedDiscount(); got.String() != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestRecordPayment_ReplacesCurrent(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	o := env.newOrder(300, 200)

	first, err := env.svc.RecordPayment(ctx, o.ID, PaymentInput{
		Amount: decimal.NewFromInt(500), GrandTotal: decimal.NewFromInt(500), Method: "cash",
	}, "cashier-1")
	if err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}
	if !first.AmountBalance.Equal(decimal.NewFromInt(500)) || first.Creator != "cashier-1" || !first.PaidAt.Equal(env.clock.T) {
		t.Errorf("unexpected payment %+v", first)
	}

	env.clock.Advance(time.Hour)
	second, err := env.svc.RecordPayment(ctx, o.ID, PaymentInput{
		Amount: decimal.NewFromInt(450), GrandTotal: decimal.NewFromInt(450),
		DiscountType: DiscountPercentage, DiscountAmount: decimal.NewFromInt(10), Method: "transfer",
	}, "cashier-1")
	if err != nil {
		t.Fatalf("second RecordPayment: %v", err)
	}

	inv, _ := env.svc.Invoice(ctx, o.ID)
	if inv.Payment == nil || inv.Payment.ID != second.ID {
		t.Fatalf("expected the second payment to be current, got %+v", inv.Payment)
	}
	if !inv.Payment.RealizedDiscount().Equal(decimal.NewFromInt(50)) {
		t.Errorf("expected realized discount 50, got %s", inv.Payment.RealizedDiscount())
	}

	history, _ := env.svc.ListPayments(ctx, o.ID)
	if len(history) != 2 || history[0].ID != second.ID || history[1].Current() {
		t.Errorf("expected the first payment expired in history, got %+v", history)
	}
	if len(env.activity.published) != 2 || env.activity.recorded[0].Message != activity.MsgPayment {
		t.Errorf("unexpected activities %+v", env.activity.recorded)
	}
	if got := testutil.ToFloat64(env.metrics.PaymentsTotal.WithLabelValues("percentage")); got != 1 {
		t.Errorf("expected one percentage payment counted, got %v", got)
	}
}

func TestRecordPayment_Invalid(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	o := env.newOrder(300)
	cancelled := env.newOrder(100)
	now := env.clock.Now()
	cancelled.CancelledAt = &now

	tests := []struct {
		name  string
		order uuid.UUID
		in    PaymentInput
		want  error
	}{
		{"unknown discount type", o.ID, PaymentInput{DiscountType: 2, Method: "cash"}, apperr.ErrValidation},
		{"negative amount", o.ID, PaymentInput{Amount: decimal.NewFromInt(-1), Method: "cash"}, apperr.ErrValidation},
		{"rate above 100", o.ID, PaymentInput{DiscountType: DiscountPercentage, DiscountAmount: decimal.NewFromInt(101), Method: "cash"}, apperr.ErrValidation},
		{"cancelled order", cancelled.ID, PaymentInput{Method: "cash"}, apperr.ErrValidation},
		{"unknown order", uuid.New(), PaymentInput{Method: "cash"}, apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.svc.RecordPayment(ctx, tt.order, tt.in, "u"); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if len(env.payments.store) != 0 {
		t.Errorf("no payment may be stored, got %d", len(env.payments.store))
	}
}
