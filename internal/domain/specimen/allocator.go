package specimen

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/labflow/labflow/internal/platform/apperr"
)

// Barcode builds the label for instance index of a container type within an
// order: the order code, the container number as two digits, then the index.
func Barcode(orderCode string, c Container, index int) string {
	return fmt.Sprintf("%s%02d%d", orderCode, c.Number, index)
}

// Allocate packs requirements into container instances, first fit per
// container type. Types keep the order in which they are first met and a
// requirement only joins the current instance when the total stays strictly
// below MaxVolume; an exact fill starts a new instance.
func Allocate(orderCode string, reqs []Requirement) ([]Instance, error) {
	type group struct {
		container Container
		reqs      []Requirement
	}
	var order []uuid.UUID
	groups := make(map[uuid.UUID]*group)
	for _, r := range reqs {
		g, ok := groups[r.Container.ID]
		if !ok {
			g = &group{container: r.Container}
			groups[r.Container.ID] = g
			order = append(order, r.Container.ID)
		}
		g.reqs = append(g.reqs, r)
	}

	var out []Instance
	for _, id := range order {
		g := groups[id]
		instances, err := fill(orderCode, g.container, g.reqs)
		if err != nil {
			return nil, err
		}
		out = append(out, instances...)
	}
	return out, nil
}

func fill(orderCode string, c Container, reqs []Requirement) ([]Instance, error) {
	var out []Instance
	cur := &Instance{Container: c, Volume: decimal.Zero}
	for _, r := range reqs {
		if !r.Volume.IsPositive() {
			return nil, apperr.Validation("%s: requirement volume must be positive", c.Name)
		}
		if r.Volume.GreaterThan(c.MaxVolume) {
			return nil, fmt.Errorf("%s needs %s but %s holds %s: %w",
				r.TestCode, r.Volume, c.Name, c.MaxVolume, apperr.ErrContainerTooSmall)
		}
		if !cur.Volume.Add(r.Volume).LessThan(c.MaxVolume) && cur.Volume.IsPositive() {
			out = append(out, *cur)
			cur = &Instance{Container: c, Index: cur.Index + 1, Volume: decimal.Zero}
		}
		cur.Volume = cur.Volume.Add(r.Volume)
		if r.TestCode != "" {
			cur.TestCodes = append(cur.TestCodes, r.TestCode)
		}
	}
	if cur.Volume.IsPositive() {
		out = append(out, *cur)
	}
	for i := range out {
		out[i].Barcode = Barcode(orderCode, c, out[i].Index)
	}
	return out, nil
}
