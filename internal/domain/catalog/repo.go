package catalog

import (
	"context"

	"github.com/google/uuid"
)

type LabRepository interface {
	Create(ctx context.Context, lab *Laboratory) error
	GetByID(ctx context.Context, id uuid.UUID) (*Laboratory, error)
	List(ctx context.Context, limit, offset int) ([]*Laboratory, int, error)
}

type ContainerRepository interface {
	Create(ctx context.Context, c *SpecimenContainer) error
	Update(ctx context.Context, c *SpecimenContainer) error
	GetByID(ctx context.Context, id uuid.UUID) (*SpecimenContainer, error)
	ListByLab(ctx context.Context, labID uuid.UUID) ([]*SpecimenContainer, error)
}

type ChoiceSetRepository interface {
	Create(ctx context.Context, cs *ChoiceSet) error
	// GetByID returns the set with its items in position order.
	GetByID(ctx context.Context, id uuid.UUID) (*ChoiceSet, error)
	ListByLab(ctx context.Context, labID uuid.UUID) ([]*ChoiceSet, error)
	AddItem(ctx context.Context, item *ChoiceItem) error
	RemoveItem(ctx context.Context, setID, itemID uuid.UUID) error
}

type TestRepository interface {
	Create(ctx context.Context, t *Test) error
	// Update stores t and bumps its version. The new version is written back to t.
	Update(ctx context.Context, t *Test) error
	// GetByID returns the test with its container requirements in position order.
	GetByID(ctx context.Context, id uuid.UUID) (*Test, error)
	ListByLab(ctx context.Context, labID uuid.UUID, activeOnly bool, limit, offset int) ([]*Test, int, error)
	ReplaceRequirements(ctx context.Context, testID uuid.UUID, reqs []ContainerRequirement) error
}

type ProfileRepository interface {
	Create(ctx context.Context, p *TestProfile) error
	Update(ctx context.Context, p *TestProfile) error
	GetByID(ctx context.Context, id uuid.UUID) (*TestProfile, error)
	ListByLab(ctx context.Context, labID uuid.UUID) ([]*TestProfile, error)
}

type PackageRepository interface {
	Create(ctx context.Context, p *ServicePackage) error
	Update(ctx context.Context, p *ServicePackage) error
	GetByID(ctx context.Context, id uuid.UUID) (*ServicePackage, error)
	ListByLab(ctx context.Context, labID uuid.UUID) ([]*ServicePackage, error)
}
