package catalog

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Laboratory struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name" validate:"required"`
	Address   string    `json:"address,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DataType is the kind of result a test produces.
type DataType string

const (
	DataTypeNumeric DataType = "Numeric"
	DataTypeText    DataType = "Text"
)

func (d DataType) Valid() bool {
	return d == DataTypeNumeric || d == DataTypeText
}

// SpecimenContainer is a container type. Number is the two-digit index used
// in container barcodes.
type SpecimenContainer struct {
	ID        uuid.UUID       `json:"id"`
	LabID     uuid.UUID       `json:"lab_id"`
	Name      string          `json:"name" validate:"required"`
	MaxVolume decimal.Decimal `json:"max_volume"`
	Number    int             `json:"number" validate:"gte=0,lte=99"`
	CreatedAt time.Time       `json:"created_at"`
}

// ContainerRequirement is the draw volume one test needs in one container type.
type ContainerRequirement struct {
	ID          uuid.UUID       `json:"id"`
	TestID      uuid.UUID       `json:"test_id"`
	ContainerID uuid.UUID       `json:"container_id" validate:"required"`
	Volume      decimal.Decimal `json:"volume"`
	Note        string          `json:"note,omitempty"`
	Position    int             `json:"position"`
}

type ChoiceSet struct {
	ID        uuid.UUID    `json:"id"`
	LabID     uuid.UUID    `json:"lab_id"`
	Name      string       `json:"name" validate:"required"`
	Reference string       `json:"reference,omitempty"`
	Items     []ChoiceItem `json:"items"`
}

// ChoiceItem is one allowed categorical result. Ref marks the reference
// (normal) answer.
type ChoiceItem struct {
	ID             uuid.UUID `json:"id"`
	ChoiceSetID    uuid.UUID `json:"choice_set_id"`
	Result         string    `json:"result" validate:"required"`
	Interpretation string    `json:"interpretation,omitempty"`
	Ref            bool      `json:"ref"`
	Position       int       `json:"position"`
}

// Match returns the item whose result equals value exactly.
func (cs *ChoiceSet) Match(value string) (ChoiceItem, bool) {
	for _, it := range cs.Items {
		if it.Result == value {
			return it, true
		}
	}
	return ChoiceItem{}, false
}

// Test is a catalog entry. MinValue/MaxValue bound what may be entered;
// MinRefValue/MaxRefValue are the reference range used for interpretation.
type Test struct {
	ID           uuid.UUID              `json:"id"`
	LabID        uuid.UUID              `json:"lab_id"`
	Name         string                 `json:"name" validate:"required"`
	Code         string                 `json:"code" validate:"required"`
	Detail       string                 `json:"detail,omitempty"`
	Unit         string                 `json:"unit,omitempty"`
	DataType     DataType               `json:"data_type" validate:"required,oneof=Numeric Text"`
	MinValue     decimal.NullDecimal    `json:"min_value"`
	MaxValue     decimal.NullDecimal    `json:"max_value"`
	MinRefValue  decimal.NullDecimal    `json:"min_ref_value"`
	MaxRefValue  decimal.NullDecimal    `json:"max_ref_value"`
	ChoiceSetID  *uuid.UUID             `json:"choice_set_id,omitempty"`
	Price        decimal.Decimal        `json:"price"`
	Active       bool                   `json:"active"`
	VersionID    int                    `json:"version_id"`
	Requirements []ContainerRequirement `json:"requirements"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// ReferenceValues renders the reference range, e.g. "[4 - 10 10^3/uL]".
func (t *Test) ReferenceValues() string {
	lo, hi := "", ""
	if t.MinRefValue.Valid {
		lo = t.MinRefValue.Decimal.String()
	}
	if t.MaxRefValue.Valid {
		hi = t.MaxRefValue.Decimal.String()
	}
	return strings.TrimSpace("[" + lo + " - " + hi + " " + t.Unit + "]")
}

// TestProfile is a priced bundle of tests. TestOrder is a comma-separated
// list of test codes fixing the display and entry order.
type TestProfile struct {
	ID        uuid.UUID           `json:"id"`
	LabID     uuid.UUID           `json:"lab_id"`
	Name      string              `json:"name" validate:"required"`
	TestOrder string              `json:"test_order,omitempty"`
	Price     decimal.NullDecimal `json:"price"`
	TestIDs   []uuid.UUID         `json:"test_ids"`
	CreatedAt time.Time           `json:"created_at"`
}

// OrderedTests arranges the profile's tests by TestOrder. Tests whose code
// is not listed keep membership order after the listed ones.
func (p *TestProfile) OrderedTests(tests []*Test) []*Test {
	byCode := make(map[string]*Test, len(tests))
	for _, t := range tests {
		byCode[t.Code] = t
	}
	out := make([]*Test, 0, len(tests))
	placed := make(map[uuid.UUID]bool, len(tests))
	for _, code := range strings.Split(p.TestOrder, ",") {
		t, ok := byCode[strings.TrimSpace(code)]
		if !ok || placed[t.ID] {
			continue
		}
		out = append(out, t)
		placed[t.ID] = true
	}
	for _, t := range tests {
		if !placed[t.ID] {
			out = append(out, t)
			placed[t.ID] = true
		}
	}
	return out
}

// EffectivePrice is the explicit price, or the sum of the tests' prices.
func (p *TestProfile) EffectivePrice(tests []*Test) decimal.Decimal {
	if p.Price.Valid {
		return p.Price.Decimal
	}
	sum := decimal.Zero
	for _, t := range tests {
		sum = sum.Add(t.Price)
	}
	return sum
}

// ServicePackage bundles tests and profiles under one price for a period.
type ServicePackage struct {
	ID         uuid.UUID       `json:"id"`
	LabID      uuid.UUID       `json:"lab_id"`
	Name       string          `json:"name" validate:"required"`
	Price      decimal.Decimal `json:"price"`
	TestIDs    []uuid.UUID     `json:"test_ids"`
	ProfileIDs []uuid.UUID     `json:"profile_ids"`
	CreatedAt  time.Time       `json:"created_at"`
	ExpiredAt  *time.Time      `json:"expired_at,omitempty"`
}

// AvailableAt reports whether the package can be ordered at t.
func (p *ServicePackage) AvailableAt(t time.Time) bool {
	return p.ExpiredAt == nil || t.Before(*p.ExpiredAt)
}

// AllTests is the union of the package's direct tests and the tests of its
// profiles, direct tests first, each id once.
func (p *ServicePackage) AllTests(profiles []*TestProfile) []uuid.UUID {
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	add := func(id uuid.UUID) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range p.TestIDs {
		add(id)
	}
	for _, pr := range profiles {
		for _, id := range pr.TestIDs {
			add(id)
		}
	}
	return out
}
