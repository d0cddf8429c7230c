package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/labflow/labflow/internal/platform/apperr"
	"github.com/labflow/labflow/internal/platform/clock"
	"github.com/labflow/labflow/internal/platform/db"
)

type Repositories struct {
	Labs       LabRepository
	Containers ContainerRepository
	ChoiceSets ChoiceSetRepository
	Tests      TestRepository
	Profiles   ProfileRepository
	Packages   PackageRepository
}

// Service manages a laboratory's catalog. Single-entity reads go through a
// TTL cache that writes invalidate. Callers get a copy of the cached entity;
// its slices are still shared and must be treated as read-only.
type Service struct {
	repos Repositories
	tx    db.Transactor
	cache *cache.Cache
	clock clock.Clock
}

func NewService(repos Repositories, tx db.Transactor, cacheTTL time.Duration, clk clock.Clock) *Service {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Service{
		repos: repos,
		tx:    tx,
		cache: cache.New(cacheTTL, 2*cacheTTL),
		clock: clk,
	}
}

func cacheKey(kind string, id uuid.UUID) string {
	return kind + ":" + id.String()
}

// cached loads kind/id through the cache and returns a copy. Reads made
// inside a transaction are not cached.
func cached[T any](ctx context.Context, s *Service, kind string, id uuid.UUID, load func() (*T, error)) (*T, error) {
	if v, ok := s.cache.Get(cacheKey(kind, id)); ok {
		cp := *v.(*T)
		return &cp, nil
	}
	v, err := load()
	if err != nil {
		return nil, err
	}
	if db.TxFromContext(ctx) == nil {
		cp := *v
		s.cache.SetDefault(cacheKey(kind, id), &cp)
	}
	return v, nil
}

func (s *Service) invalidate(kind string, id uuid.UUID) {
	s.cache.Delete(cacheKey(kind, id))
}

// -- Laboratory --

func (s *Service) CreateLab(ctx context.Context, l *Laboratory) error {
	if strings.TrimSpace(l.Name) == "" {
		return apperr.Validation("laboratory name is required")
	}
	return s.repos.Labs.Create(ctx, l)
}

func (s *Service) GetLab(ctx context.Context, id uuid.UUID) (*Laboratory, error) {
	return cached(ctx, s, "lab", id, func() (*Laboratory, error) { return s.repos.Labs.GetByID(ctx, id) })
}

func (s *Service) ListLabs(ctx context.Context, limit, offset int) ([]*Laboratory, int, error) {
	return s.repos.Labs.List(ctx, limit, offset)
}

// -- SpecimenContainer --

func validateContainer(c *SpecimenContainer) error {
	if strings.TrimSpace(c.Name) == "" {
		return apperr.Validation("container name is required")
	}
	if !c.MaxVolume.IsPositive() {
		return apperr.Validation("container max_volume must be positive")
	}
	if c.Number < 0 || c.Number > 99 {
		return apperr.Validation("container number must be between 0 and 99")
	}
	return nil
}

func (s *Service) CreateContainer(ctx context.Context, c *SpecimenContainer) error {
	if err := validateContainer(c); err != nil {
		return err
	}
	if _, err := s.GetLab(ctx, c.LabID); err != nil {
		return err
	}
	return s.repos.Containers.Create(ctx, c)
}

func (s *Service) UpdateContainer(ctx context.Context, c *SpecimenContainer) error {
	if err := validateContainer(c); err != nil {
		return err
	}
	if err := s.repos.Containers.Update(ctx, c); err != nil {
		return err
	}
	s.invalidate("container", c.ID)
	return nil
}

func (s *Service) GetContainer(ctx context.Context, id uuid.UUID) (*SpecimenContainer, error) {
	return cached(ctx, s, "container", id, func() (*SpecimenContainer, error) { return s.repos.Containers.GetByID(ctx, id) })
}

func (s *Service) ListContainers(ctx context.Context, labID uuid.UUID) ([]*SpecimenContainer, error) {
	return s.repos.Containers.ListByLab(ctx, labID)
}

// -- ChoiceSet --

func (s *Service) CreateChoiceSet(ctx context.Context, cs *ChoiceSet) error {
	if strings.TrimSpace(cs.Name) == "" {
		return apperr.Validation("choice set name is required")
	}
	seen := make(map[string]bool, len(cs.Items))
	for _, it := range cs.Items {
		if strings.TrimSpace(it.Result) == "" {
			return apperr.Validation("choice result is required")
		}
		if seen[it.Result] {
			return apperr.Validation("choice %q listed twice", it.Result)
		}
		seen[it.Result] = true
	}
	if _, err := s.GetLab(ctx, cs.LabID); err != nil {
		return err
	}
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		return s.repos.ChoiceSets.Create(ctx, cs)
	})
}

func (s *Service) GetChoiceSet(ctx context.Context, id uuid.UUID) (*ChoiceSet, error) {
	return cached(ctx, s, "choiceset", id, func() (*ChoiceSet, error) { return s.repos.ChoiceSets.GetByID(ctx, id) })
}

func (s *Service) ListChoiceSets(ctx context.Context, labID uuid.UUID) ([]*ChoiceSet, error) {
	return s.repos.ChoiceSets.ListByLab(ctx, labID)
}

func (s *Service) AddChoiceItem(ctx context.Context, item *ChoiceItem) error {
	if strings.TrimSpace(item.Result) == "" {
		return apperr.Validation("choice result is required")
	}
	cs, err := s.repos.ChoiceSets.GetByID(ctx, item.ChoiceSetID)
	if err != nil {
		return err
	}
	if _, dup := cs.Match(item.Result); dup {
		return fmt.Errorf("choice %q already defined: %w", item.Result, apperr.ErrConflict)
	}
	item.Position = len(cs.Items)
	if err := s.repos.ChoiceSets.AddItem(ctx, item); err != nil {
		return err
	}
	s.invalidate("choiceset", item.ChoiceSetID)
	return nil
}

func (s *Service) RemoveChoiceItem(ctx context.Context, setID, itemID uuid.UUID) error {
	if err := s.repos.ChoiceSets.RemoveItem(ctx, setID, itemID); err != nil {
		return err
	}
	s.invalidate("choiceset", setID)
	return nil
}

// -- Test --

func (s *Service) validateTest(ctx context.Context, t *Test) error {
	if strings.TrimSpace(t.Name) == "" || strings.TrimSpace(t.Code) == "" {
		return apperr.Validation("test name and code are required")
	}
	if strings.Contains(t.Code, ",") {
		return apperr.Validation("test code must not contain a comma")
	}
	if !t.DataType.Valid() {
		return apperr.Validation("data_type must be %q or %q", DataTypeNumeric, DataTypeText)
	}
	if t.Price.IsNegative() {
		return apperr.Validation("price must not be negative")
	}
	if t.MinRefValue.Valid && t.MaxRefValue.Valid && t.MinRefValue.Decimal.GreaterThan(t.MaxRefValue.Decimal) {
		return apperr.Validation("min_ref_value exceeds max_ref_value")
	}
	if t.MinValue.Valid && t.MaxValue.Valid && t.MinValue.Decimal.GreaterThan(t.MaxValue.Decimal) {
		return apperr.Validation("min_value exceeds max_value")
	}
	if t.ChoiceSetID != nil {
		cs, err := s.GetChoiceSet(ctx, *t.ChoiceSetID)
		if err != nil {
			return err
		}
		if cs.LabID != t.LabID {
			return apperr.Validation("choice set belongs to another laboratory")
		}
	}
	for i, req := range t.Requirements {
		if !req.Volume.IsPositive() {
			return apperr.Validation("requirement %d: volume must be positive", i)
		}
		c, err := s.GetContainer(ctx, req.ContainerID)
		if err != nil {
			return err
		}
		if c.LabID != t.LabID {
			return apperr.Validation("requirement %d: container belongs to another laboratory", i)
		}
	}
	return nil
}

func (s *Service) CreateTest(ctx context.Context, t *Test) error {
	if _, err := s.GetLab(ctx, t.LabID); err != nil {
		return err
	}
	if err := s.validateTest(ctx, t); err != nil {
		return err
	}
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		return s.repos.Tests.Create(ctx, t)
	})
}

// UpdateTest stores an edit and bumps VersionID. Records already ordered
// keep the version they were ordered against.
func (s *Service) UpdateTest(ctx context.Context, t *Test) error {
	current, err := s.repos.Tests.GetByID(ctx, t.ID)
	if err != nil {
		return err
	}
	t.LabID = current.LabID
	if t.Requirements == nil {
		t.Requirements = current.Requirements
	}
	if err := s.validateTest(ctx, t); err != nil {
		return err
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repos.Tests.Update(ctx, t); err != nil {
			return err
		}
		return s.repos.Tests.ReplaceRequirements(ctx, t.ID, t.Requirements)
	})
	if err != nil {
		return err
	}
	s.invalidate("test", t.ID)
	return nil
}

func (s *Service) GetTest(ctx context.Context, id uuid.UUID) (*Test, error) {
	return cached(ctx, s, "test", id, func() (*Test, error) { return s.repos.Tests.GetByID(ctx, id) })
}

func (s *Service) ListTests(ctx context.Context, labID uuid.UUID, activeOnly bool, limit, offset int) ([]*Test, int, error) {
	return s.repos.Tests.ListByLab(ctx, labID, activeOnly, limit, offset)
}

// -- TestProfile --

func (s *Service) checkTests(ctx context.Context, labID uuid.UUID, ids []uuid.UUID) error {
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return apperr.Validation("test %s listed twice", id)
		}
		seen[id] = true
		t, err := s.GetTest(ctx, id)
		if err != nil {
			return err
		}
		if t.LabID != labID {
			return apperr.Validation("test %s belongs to another laboratory", id)
		}
	}
	return nil
}

func (s *Service) validateProfile(ctx context.Context, p *TestProfile) error {
	if strings.TrimSpace(p.Name) == "" {
		return apperr.Validation("profile name is required")
	}
	if len(p.TestIDs) == 0 {
		return apperr.Validation("profile must contain at least one test")
	}
	if p.Price.Valid && p.Price.Decimal.IsNegative() {
		return apperr.Validation("price must not be negative")
	}
	return s.checkTests(ctx, p.LabID, p.TestIDs)
}

func (s *Service) CreateProfile(ctx context.Context, p *TestProfile) error {
	if _, err := s.GetLab(ctx, p.LabID); err != nil {
		return err
	}
	if err := s.validateProfile(ctx, p); err != nil {
		return err
	}
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		return s.repos.Profiles.Create(ctx, p)
	})
}

func (s *Service) UpdateProfile(ctx context.Context, p *TestProfile) error {
	current, err := s.repos.Profiles.GetByID(ctx, p.ID)
	if err != nil {
		return err
	}
	p.LabID = current.LabID
	if err := s.validateProfile(ctx, p); err != nil {
		return err
	}
	if err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		return s.repos.Profiles.Update(ctx, p)
	}); err != nil {
		return err
	}
	s.invalidate("profile", p.ID)
	return nil
}

func (s *Service) GetProfile(ctx context.Context, id uuid.UUID) (*TestProfile, error) {
	return cached(ctx, s, "profile", id, func() (*TestProfile, error) { return s.repos.Profiles.GetByID(ctx, id) })
}

func (s *Service) ListProfiles(ctx context.Context, labID uuid.UUID) ([]*TestProfile, error) {
	return s.repos.Profiles.ListByLab(ctx, labID)
}

// ProfileTests returns the profile's tests arranged by its test_order.
func (s *Service) ProfileTests(ctx context.Context, p *TestProfile) ([]*Test, error) {
	tests := make([]*Test, 0, len(p.TestIDs))
	for _, id := range p.TestIDs {
		t, err := s.GetTest(ctx, id)
		if err != nil {
			return nil, err
		}
		tests = append(tests, t)
	}
	return p.OrderedTests(tests), nil
}

// ProfilePrice is the profile's explicit price or the sum of its tests.
func (s *Service) ProfilePrice(ctx context.Context, p *TestProfile) (decimal.Decimal, error) {
	if p.Price.Valid {
		return p.Price.Decimal, nil
	}
	tests, err := s.ProfileTests(ctx, p)
	if err != nil {
		return decimal.Zero, err
	}
	return p.EffectivePrice(tests), nil
}

// -- ServicePackage --

func (s *Service) validatePackage(ctx context.Context, p *ServicePackage) error {
	if strings.TrimSpace(p.Name) == "" {
		return apperr.Validation("package name is required")
	}
	if len(p.TestIDs) == 0 && len(p.ProfileIDs) == 0 {
		return apperr.Validation("package must contain a test or a profile")
	}
	if p.Price.IsNegative() {
		return apperr.Validation("price must not be negative")
	}
	if err := s.checkTests(ctx, p.LabID, p.TestIDs); err != nil {
		return err
	}
	for _, id := range p.ProfileIDs {
		pr, err := s.GetProfile(ctx, id)
		if err != nil {
			return err
		}
		if pr.LabID != p.LabID {
			return apperr.Validation("profile %s belongs to another laboratory", id)
		}
	}
	return nil
}

func (s *Service) CreatePackage(ctx context.Context, p *ServicePackage) error {
	if _, err := s.GetLab(ctx, p.LabID); err != nil {
		return err
	}
	if err := s.validatePackage(ctx, p); err != nil {
		return err
	}
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		return s.repos.Packages.Create(ctx, p)
	})
}

func (s *Service) UpdatePackage(ctx context.Context, p *ServicePackage) error {
	current, err := s.repos.Packages.GetByID(ctx, p.ID)
	if err != nil {
		return err
	}
	p.LabID = current.LabID
	if err := s.validatePackage(ctx, p); err != nil {
		return err
	}
	if err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		return s.repos.Packages.Update(ctx, p)
	}); err != nil {
		return err
	}
	s.invalidate("package", p.ID)
	return nil
}

// ExpirePackage stops a package from being ordered from now on.
func (s *Service) ExpirePackage(ctx context.Context, id uuid.UUID) (*ServicePackage, error) {
	p, err := s.repos.Packages.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	p.ExpiredAt = &now
	if err := s.repos.Packages.Update(ctx, p); err != nil {
		return nil, err
	}
	s.invalidate("package", id)
	return p, nil
}

func (s *Service) GetPackage(ctx context.Context, id uuid.UUID) (*ServicePackage, error) {
	return cached(ctx, s, "package", id, func() (*ServicePackage, error) { return s.repos.Packages.GetByID(ctx, id) })
}

// ListPackages lists a lab's packages; availableOnly drops expired ones.
func (s *Service) ListPackages(ctx context.Context, labID uuid.UUID, availableOnly bool) ([]*ServicePackage, error) {
	all, err := s.repos.Packages.ListByLab(ctx, labID)
	if err != nil || !availableOnly {
		return all, err
	}
	now := s.clock.Now()
	out := all[:0]
	for _, p := range all {
		if p.AvailableAt(now) {
			out = append(out, p)
		}
	}
	return out, nil
}

// PackageTests resolves the package's all_tests set.
func (s *Service) PackageTests(ctx context.Context, p *ServicePackage) ([]uuid.UUID, error) {
	profiles := make([]*TestProfile, 0, len(p.ProfileIDs))
	for _, id := range p.ProfileIDs {
		pr, err := s.GetProfile(ctx, id)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, pr)
	}
	return p.AllTests(profiles), nil
}
