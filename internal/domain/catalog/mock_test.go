package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/labflow/labflow/internal/platform/apperr"
)

// -- Mock Repositories --

type mockLabRepo struct{ store map[uuid.UUID]*Laboratory }

func newMockLabRepo() *mockLabRepo { return &mockLabRepo{store: make(map[uuid.UUID]*Laboratory)} }

func (m *mockLabRepo) Create(_ context.Context, l *Laboratory) error {
	l.ID = uuid.New()
	l.CreatedAt = time.Now()
	m.store[l.ID] = l
	return nil
}

func (m *mockLabRepo) GetByID(_ context.Context, id uuid.UUID) (*Laboratory, error) {
	l, ok := m.store[id]
	if !ok {
		return nil, apperr.NotFound("laboratory", id)
	}
	return l, nil
}

func (m *mockLabRepo) List(_ context.Context, limit, offset int) ([]*Laboratory, int, error) {
	var items []*Laboratory
	for _, l := range m.store {
		items = append(items, l)
	}
	return items, len(items), nil
}

type mockContainerRepo struct {
	store map[uuid.UUID]*SpecimenContainer
	gets  int
}

func newMockContainerRepo() *mockContainerRepo {
	return &mockContainerRepo{store: make(map[uuid.UUID]*SpecimenContainer)}
}

func (m *mockContainerRepo) Create(_ context.Context, c *SpecimenContainer) error {
	c.ID = uuid.New()
	cp := *c
	m.store[c.ID] = &cp
	return nil
}

func (m *mockContainerRepo) Update(_ context.Context, c *SpecimenContainer) error {
	if _, ok := m.store[c.ID]; !ok {
		return apperr.NotFound("specimen container", c.ID)
	}
	cp := *c
	m.store[c.ID] = &cp
	return nil
}

func (m *mockContainerRepo) GetByID(_ context.Context, id uuid.UUID) (*SpecimenContainer, error) {
	m.gets++
	c, ok := m.store[id]
	if !ok {
		return nil, apperr.NotFound("specimen container", id)
	}
	cp := *c
	return &cp, nil
}

func (m *mockContainerRepo) ListByLab(_ context.Context, labID uuid.UUID) ([]*SpecimenContainer, error) {
	var items []*SpecimenContainer
	for _, c := range m.store {
		if c.LabID == labID {
			items = append(items, c)
		}
	}
	return items, nil
}

type mockChoiceSetRepo struct{ store map[uuid.UUID]*ChoiceSet }

func newMockChoiceSetRepo() *mockChoiceSetRepo {
	return &mockChoiceSetRepo{store: make(map[uuid.UUID]*ChoiceSet)}
}

func (m *mockChoiceSetRepo) Create(_ context.Context, cs *ChoiceSet) error {
	cs.ID = uuid.New()
	for i := range cs.Items {
		cs.Items[i].ID = uuid.New()
		cs.Items[i].ChoiceSetID = cs.ID
		cs.Items[i].Position = i
	}
	cp := *cs
	cp.Items = append([]ChoiceItem(nil), cs.Items...)
	m.store[cs.ID] = &cp
	return nil
}

func (m *mockChoiceSetRepo) GetByID(_ context.Context, id uuid.UUID) (*ChoiceSet, error) {
	cs, ok := m.store[id]
	if !ok {
		return nil, apperr.NotFound("choice set", id)
	}
	cp := *cs
	cp.Items = append([]ChoiceItem(nil), cs.Items...)
	return &cp, nil
}

func (m *mockChoiceSetRepo) ListByLab(_ context.Context, labID uuid.UUID) ([]*ChoiceSet, error) {
	var items []*ChoiceSet
	for _, cs := range m.store {
		if cs.LabID == labID {
			items = append(items, cs)
		}
	}
	return items, nil
}

func (m *mockChoiceSetRepo) AddItem(_ context.Context, it *ChoiceItem) error {
	cs, ok := m.store[it.ChoiceSetID]
	if !ok {
		return apperr.NotFound("choice set", it.ChoiceSetID)
	}
	it.ID = uuid.New()
	cs.Items = append(cs.Items, *it)
	return nil
}

func (m *mockChoiceSetRepo) RemoveItem(_ context.Context, setID, itemID uuid.UUID) error {
	cs, ok := m.store[setID]
	if !ok {
		return apperr.NotFound("choice set", setID)
	}
	for i, it := range cs.Items {
		if it.ID == itemID {
			cs.Items = append(cs.Items[:i], cs.Items[i+1:]...)
			return nil
		}
	}
	return apperr.NotFound("choice item", itemID)
}

type mockTestRepo struct{ store map[uuid.UUID]*Test }

func newMockTestRepo() *mockTestRepo { return &mockTestRepo{store: make(map[uuid.UUID]*Test)} }

func (m *mockTestRepo) Create(_ context.Context, t *Test) error {
	for _, existing := range m.store {
		if existing.LabID == t.LabID && existing.Code == t.Code {
			return apperr.ErrConflict
		}
	}
	t.ID = uuid.New()
	t.VersionID = 1
	cp := *t
	m.store[t.ID] = &cp
	return nil
}

func (m *mockTestRepo) Update(_ context.Context, t *Test) error {
	cur, ok := m.store[t.ID]
	if !ok {
		return apperr.NotFound("test", t.ID)
	}
	t.VersionID = cur.VersionID + 1
	cp := *t
	m.store[t.ID] = &cp
	return nil
}

func (m *mockTestRepo) GetByID(_ context.Context, id uuid.UUID) (*Test, error) {
	t, ok := m.store[id]
	if !ok {
		return nil, apperr.NotFound("test", id)
	}
	cp := *t
	return &cp, nil
}

func (m *mockTestRepo) ListByLab(_ context.Context, labID uuid.UUID, activeOnly bool, limit, offset int) ([]*Test, int, error) {
	var items []*Test
	for _, t := range m.store {
		if t.LabID == labID && (!activeOnly || t.Active) {
			items = append(items, t)
		}
	}
	return items, len(items), nil
}

func (m *mockTestRepo) ReplaceRequirements(_ context.Context, testID uuid.UUID, reqs []ContainerRequirement) error {
	t, ok := m.store[testID]
	if !ok {
		return apperr.NotFound("test", testID)
	}
	t.Requirements = append([]ContainerRequirement(nil), reqs...)
	return nil
}

type mockProfileRepo struct{ store map[uuid.UUID]*TestProfile }

func newMockProfileRepo() *mockProfileRepo {
	return &mockProfileRepo{store: make(map[uuid.UUID]*TestProfile)}
}

func (m *mockProfileRepo) Create(_ context.Context, p *TestProfile) error {
	p.ID = uuid.New()
	cp := *p
	m.store[p.ID] = &cp
	return nil
}

func (m *mockProfileRepo) Update(_ context.Context, p *TestProfile) error {
	if _, ok := m.store[p.ID]; !ok {
		return apperr.NotFound("test profile", p.ID)
	}
	cp := *p
	m.store[p.ID] = &cp
	return nil
}

func (m *mockProfileRepo) GetByID(_ context.Context, id uuid.UUID) (*TestProfile, error) {
	p, ok := m.store[id]
	if !ok {
		return nil, apperr.NotFound("test profile", id)
	}
	cp := *p
	return &cp, nil
}

func (m *mockProfileRepo) ListByLab(_ context.Context, labID uuid.UUID) ([]*TestProfile, error) {
	var items []*TestProfile
	for _, p := range m.store {
		if p.LabID == labID {
			items = append(items, p)
		}
	}
	return items, nil
}

type mockPackageRepo struct{ store map[uuid.UUID]*ServicePackage }

func newMockPackageRepo() *mockPackageRepo {
	return &mockPackageRepo{store: make(map[uuid.UUID]*ServicePackage)}
}

func (m *mockPackageRepo) Create(_ context.Context, p *ServicePackage) error {
	p.ID = uuid.New()
	cp := *p
	m.store[p.ID] = &cp
	return nil
}

func (m *mockPackageRepo) Update(_ context.Context, p *ServicePackage) error {
	if _, ok := m.store[p.ID]; !ok {
		return apperr.NotFound("service package", p.ID)
	}
	cp := *p
	m.store[p.ID] = &cp
	return nil
}

func (m *mockPackageRepo) GetByID(_ context.Context, id uuid.UUID) (*ServicePackage, error) {
	p, ok := m.store[id]
	if !ok {
		return nil, apperr.NotFound("service package", id)
	}
	cp := *p
	return &cp, nil
}

func (m *mockPackageRepo) ListByLab(_ context.Context, labID uuid.UUID) ([]*ServicePackage, error) {
	var items []*ServicePackage
	for _, p := range m.store {
		if p.LabID == labID {
			cp := *p
			items = append(items, &cp)
		}
	}
	return items, nil
}
