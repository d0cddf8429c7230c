package clock

import (
	"fmt"
	"time"
)

// DefaultZone is the civil timezone for every business timestamp.
const DefaultZone = "Asia/Bangkok"

// Clock supplies the current business time.
type Clock interface {
	Now() time.Time
}

type zoned struct{ loc *time.Location }

func (z zoned) Now() time.Time { return time.Now().In(z.loc) }

// New returns a clock reporting time in the named zone. When the host has no
// tzdata for Asia/Bangkok the fixed UTC+7 offset is used instead.
func New(zone string) (Clock, error) {
	if zone == "" {
		zone = DefaultZone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		if zone != DefaultZone {
			return nil, fmt.Errorf("load timezone %q: %w", zone, err)
		}
		loc = time.FixedZone("ICT", 7*60*60)
	}
	return zoned{loc: loc}, nil
}

// Bangkok returns the default business clock.
func Bangkok() Clock {
	c, _ := New(DefaultZone)
	return c
}

// Fixed is a clock frozen at T, used by tests and replays.
type Fixed struct{ T time.Time }

func (f *Fixed) Now() time.Time { return f.T }

// Advance moves the fixed clock forward by d.
func (f *Fixed) Advance(d time.Duration) { f.T = f.T.Add(d) }
