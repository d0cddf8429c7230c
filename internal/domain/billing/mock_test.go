package billing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/labflow/labflow/internal/domain/activity"
	"github.com/labflow/labflow/internal/domain/catalog"
	"github.com/labflow/labflow/internal/domain/order"
	"github.com/labflow/labflow/internal/platform/apperr"
)

type mockPaymentRepo struct {
	mu    sync.Mutex
	store []*Payment
}

func (m *mockPaymentRepo) Create(_ context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.store {
		if existing.OrderID == p.OrderID && existing.Current() {
			return apperr.ErrConflict
		}
	}
	p.ID = uuid.New()
	cp := *p
	m.store = append(m.store, &cp)
	return nil
}

func (m *mockPaymentRepo) ExpireCurrent(_ context.Context, orderID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.store {
		if p.OrderID == orderID && p.Current() {
			t := at
			p.ExpiredAt = &t
		}
	}
	return nil
}

func (m *mockPaymentRepo) GetCurrent(_ context.Context, orderID uuid.UUID) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.store {
		if p.OrderID == orderID && p.Current() {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("payment for order", orderID)
}

func (m *mockPaymentRepo) ListByOrder(_ context.Context, orderID uuid.UUID) ([]*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Payment
	for i := len(m.store) - 1; i >= 0; i-- {
		if p := m.store[i]; p.OrderID == orderID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type fakeOrders map[uuid.UUID]*order.TestOrder

func (f fakeOrders) GetOrder(_ context.Context, id uuid.UUID) (*order.TestOrder, error) {
	if o, ok := f[id]; ok {
		o.Refresh()
		return o, nil
	}
	return nil, apperr.NotFound("test order", id)
}

type fakeCatalog map[uuid.UUID]*catalog.Test

func (f fakeCatalog) GetTest(_ context.Context, id uuid.UUID) (*catalog.Test, error) {
	if t, ok := f[id]; ok {
		return t, nil
	}
	return nil, apperr.NotFound("test", id)
}

type fakeActivity struct {
	recorded  []*activity.Activity
	published []*activity.Activity
}

func (f *fakeActivity) Record(_ context.Context, labID uuid.UUID, actorID, message, detail string) (*activity.Activity, error) {
	a := &activity.Activity{ID: uuid.New(), LabID: labID, ActorID: actorID, Message: message, Detail: detail}
	f.recorded = append(f.recorded, a)
	return a, nil
}

func (f *fakeActivity) Publish(_ context.Context, acts ...*activity.Activity) {
	f.published = append(f.published, acts...)
}
