package sequence

import (
	"fmt"
	"time"
)

// Kind names an independent counter. Each kind is scoped by (year, month)
// and restarts at 1 every month.
type Kind string

const (
	KindOrder Kind = "order"
	KindHN    Kind = "hn"
)

// Width is the zero-padded digit count of the counter part of a code.
func (k Kind) Width() int {
	switch k {
	case KindHN:
		return 4
	default:
		return 6
	}
}

// Ceiling is the largest counter value the kind's width can render.
func (k Kind) Ceiling() int {
	c := 1
	for i := 0; i < k.Width(); i++ {
		c *= 10
	}
	return c - 1
}

func (k Kind) Valid() bool {
	return k == KindOrder || k == KindHN
}

// Scope is the (year, month) a counter value belongs to.
type Scope struct {
	Year  int
	Month int
}

func ScopeOf(t time.Time) Scope {
	return Scope{Year: t.Year(), Month: int(t.Month())}
}

// Format renders "{yy}{mm}{count}" with the kind's width, e.g. 2503000001.
func Format(kind Kind, s Scope, count int) string {
	return fmt.Sprintf("%02d%02d%0*d", s.Year%100, s.Month, kind.Width(), count)
}

// Counter is the persisted state of one scope.
type Counter struct {
	Kind  Kind `json:"kind"`
	Year  int  `json:"year"`
	Month int  `json:"month"`
	Count int  `json:"count"`
}
