package order

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/labflow/labflow/internal/domain/activity"
	"github.com/labflow/labflow/internal/domain/catalog"
	"github.com/labflow/labflow/internal/domain/customer"
	"github.com/labflow/labflow/internal/domain/sequence"
	"github.com/labflow/labflow/internal/platform/apperr"
)

// -- Mock Repositories --

type mockOrderRepo struct {
	mu    sync.Mutex
	store map[uuid.UUID]*TestOrder
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{store: make(map[uuid.UUID]*TestOrder)}
}

func (m *mockOrderRepo) Create(_ context.Context, o *TestOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.ID = uuid.New()
	cp := *o
	cp.Records = nil
	m.store[o.ID] = &cp
	return nil
}

func (m *mockOrderRepo) Update(_ context.Context, o *TestOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[o.ID]; !ok {
		return apperr.NotFound("test order", o.ID)
	}
	cp := *o
	cp.Records = nil
	m.store[o.ID] = &cp
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*TestOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.store[id]
	if !ok {
		return nil, apperr.NotFound("test order", id)
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) GetByCode(_ context.Context, code string) (*TestOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.store {
		if o.Code == code {
			cp := *o
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("test order", code)
}

func (m *mockOrderRepo) ListByLab(_ context.Context, labID uuid.UUID, f ListFilter, limit, offset int) ([]*TestOrder, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*TestOrder
	for _, o := range m.store {
		if o.LabID != labID || (f.PendingOnly && !o.Pending()) {
			continue
		}
		if f.CustomerID != nil && o.CustomerID != *f.CustomerID {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	return out, len(out), nil
}

type mockRecordRepo struct {
	mu        sync.Mutex
	store     map[uuid.UUID]*TestRecord
	rejects   map[uuid.UUID]*RejectRecord
	revisions map[uuid.UUID][]*RecordRevision
	orders    *mockOrderRepo
}

func newMockRecordRepo(orders *mockOrderRepo) *mockRecordRepo {
	return &mockRecordRepo{
		store:     make(map[uuid.UUID]*TestRecord),
		rejects:   make(map[uuid.UUID]*RejectRecord),
		revisions: make(map[uuid.UUID][]*RecordRevision),
		orders:    orders,
	}
}

func (m *mockRecordRepo) Create(_ context.Context, r *TestRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.store {
		if existing.OrderID == r.OrderID && existing.TestID == r.TestID && !existing.Cancelled {
			return fmt.Errorf("test %s already ordered: %w", r.TestID, apperr.ErrConflict)
		}
	}
	r.ID = uuid.New()
	cp := *r
	m.store[r.ID] = &cp
	return nil
}

func (m *mockRecordRepo) Update(_ context.Context, r *TestRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[r.ID]; !ok {
		return apperr.NotFound("test record", r.ID)
	}
	cp := *r
	m.store[r.ID] = &cp
	return nil
}

func (m *mockRecordRepo) withReject(r *TestRecord) *TestRecord {
	cp := *r
	if cp.RejectRecordID != nil {
		cp.Reject = m.rejects[*cp.RejectRecordID]
	}
	return &cp
}

func (m *mockRecordRepo) GetByID(_ context.Context, id uuid.UUID) (*TestRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.store[id]
	if !ok {
		return nil, apperr.NotFound("test record", id)
	}
	return m.withReject(r), nil
}

func (m *mockRecordRepo) ListByOrder(_ context.Context, orderID uuid.UUID) ([]*TestRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*TestRecord
	for _, r := range m.store {
		if r.OrderID == orderID {
			out = append(out, m.withReject(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (m *mockRecordRepo) CreateReject(_ context.Context, rr *RejectRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rr.ID = uuid.New()
	cp := *rr
	m.rejects[rr.ID] = &cp
	return nil
}

func (m *mockRecordRepo) CreateRevision(_ context.Context, v *RecordRevision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v.ID = uuid.New()
	v.Rev = len(m.revisions[v.RecordID]) + 1
	cp := *v
	m.revisions[v.RecordID] = append(m.revisions[v.RecordID], &cp)
	return nil
}

func (m *mockRecordRepo) ListRevisions(_ context.Context, recordID uuid.UUID) ([]*RecordRevision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*RecordRevision
	for _, v := range m.revisions[recordID] {
		cp := *v
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockRecordRepo) ListRejectedByLab(ctx context.Context, labID uuid.UUID, limit, offset int) ([]*RejectedRecord, int, error) {
	m.mu.Lock()
	var rejected []*TestRecord
	for _, r := range m.store {
		if r.RejectRecordID != nil {
			rejected = append(rejected, m.withReject(r))
		}
	}
	m.mu.Unlock()

	var out []*RejectedRecord
	for _, r := range rejected {
		o, err := m.orders.GetByID(ctx, r.OrderID)
		if err != nil {
			return nil, 0, err
		}
		if o.LabID == labID {
			out = append(out, &RejectedRecord{Record: r, OrderCode: o.Code, CustomerID: o.CustomerID})
		}
	}
	return out, len(out), nil
}

// -- Fakes --

type fakeCatalog struct {
	tests      map[uuid.UUID]*catalog.Test
	profiles   map[uuid.UUID]*catalog.TestProfile
	packages   map[uuid.UUID]*catalog.ServicePackage
	choiceSets map[uuid.UUID]*catalog.ChoiceSet
	containers map[uuid.UUID]*catalog.SpecimenContainer
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		tests:      make(map[uuid.UUID]*catalog.Test),
		profiles:   make(map[uuid.UUID]*catalog.TestProfile),
		packages:   make(map[uuid.UUID]*catalog.ServicePackage),
		choiceSets: make(map[uuid.UUID]*catalog.ChoiceSet),
		containers: make(map[uuid.UUID]*catalog.SpecimenContainer),
	}
}

func (f *fakeCatalog) GetTest(_ context.Context, id uuid.UUID) (*catalog.Test, error) {
	if t, ok := f.tests[id]; ok {
		return t, nil
	}
	return nil, apperr.NotFound("test", id)
}

func (f *fakeCatalog) GetProfile(_ context.Context, id uuid.UUID) (*catalog.TestProfile, error) {
	if p, ok := f.profiles[id]; ok {
		return p, nil
	}
	return nil, apperr.NotFound("test profile", id)
}

func (f *fakeCatalog) ProfileTests(ctx context.Context, p *catalog.TestProfile) ([]*catalog.Test, error) {
	var tests []*catalog.Test
	for _, id := range p.TestIDs {
		t, err := f.GetTest(ctx, id)
		if err != nil {
			return nil, err
		}
		tests = append(tests, t)
	}
	return p.OrderedTests(tests), nil
}

func (f *fakeCatalog) GetPackage(_ context.Context, id uuid.UUID) (*catalog.ServicePackage, error) {
	if p, ok := f.packages[id]; ok {
		return p, nil
	}
	return nil, apperr.NotFound("service package", id)
}

func (f *fakeCatalog) GetChoiceSet(_ context.Context, id uuid.UUID) (*catalog.ChoiceSet, error) {
	if cs, ok := f.choiceSets[id]; ok {
		return cs, nil
	}
	return nil, apperr.NotFound("choice set", id)
}

func (f *fakeCatalog) GetContainer(_ context.Context, id uuid.UUID) (*catalog.SpecimenContainer, error) {
	if c, ok := f.containers[id]; ok {
		return c, nil
	}
	return nil, apperr.NotFound("specimen container", id)
}

type fakeCustomers map[uuid.UUID]*customer.Customer

func (f fakeCustomers) Get(_ context.Context, id uuid.UUID) (*customer.Customer, error) {
	if c, ok := f[id]; ok {
		return c, nil
	}
	return nil, apperr.NotFound("customer", id)
}

type fakeCodes struct{ n int }

func (f *fakeCodes) Next(_ context.Context, kind sequence.Kind) (string, error) {
	if kind != sequence.KindOrder {
		return "", fmt.Errorf("unexpected kind %s", kind)
	}
	f.n++
	return fmt.Sprintf("2503%06d", f.n), nil
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

func (f *fakeActivity) count(message string) int {
	n := 0
	for _, a := range f.recorded {
		if a.Message == message {
			n++
		}
	}
	return n
}
