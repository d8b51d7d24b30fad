package features

import (
	"fmt"
	"math"

	"github.com/offlinefirst/mousedynamics/pkg/events"
)

// Extract computes the feature rows for one session, one row per event in
// input order. A non-finite coordinate or client timestamp fails the whole
// session with events.ErrMalformedInput.
func Extract(evs []events.RawEvent, opts Options) ([]Row, error) {
	if err := Validate(evs); err != nil {
		return nil, err
	}
	actions := Segment(evs)
	return Broadcast(Preprocess(evs), actions, Aggregate(evs, actions, opts)), nil
}

// Validate rejects events whose numeric fields cannot take part in the geometry.
func Validate(evs []events.RawEvent) error {
	for i, ev := range evs {
		for _, f := range []struct {
			name  string
			value float64
		}{
			{events.ColumnClientTime, ev.ClientTime},
			{events.ColumnX, ev.X},
			{events.ColumnY, ev.Y},
		} {
			if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
				return fmt.Errorf("%w: event %d: column %q is not finite", events.ErrMalformedInput, i, f.name)
			}
		}
	}
	return nil
}
