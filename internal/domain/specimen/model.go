// Package specimen plans the physical containers an order's tests are drawn
// into and assigns each one a barcode.
package specimen

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Container is the container type a requirement is drawn into.
type Container struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	MaxVolume decimal.Decimal `json:"max_volume"`
	Number    int             `json:"number"`
}

// Requirement is one active record's draw volume in one container type.
type Requirement struct {
	Container Container       `json:"container"`
	Volume    decimal.Decimal `json:"volume"`
	TestCode  string          `json:"test_code,omitempty"`
}

// Instance is one physical container on the draw plan.
type Instance struct {
	Barcode   string          `json:"barcode"`
	Container Container       `json:"container"`
	Index     int             `json:"index"`
	Volume    decimal.Decimal `json:"volume"`
	TestCodes []string        `json:"test_codes"`
}
