package features

import "github.com/offlinefirst/mousedynamics/pkg/events"

// Action is a maximal contiguous run of events sharing one state.
// Start is inclusive and End exclusive.
type Action struct {
	ID    int
	State events.State
	Start int
	End   int
}

// Segment partitions evs into contiguous actions numbered from zero. A new
// action starts whenever an event's state differs from its predecessor's.
func Segment(evs []events.RawEvent) []Action {
	if len(evs) == 0 {
		return nil
	}
	actions := []Action{{ID: 0, State: evs[0].State, Start: 0}}
	for i := 1; i < len(evs); i++ {
		if evs[i].State == evs[i-1].State {
			continue
		}
		last := &actions[len(actions)-1]
		last.End = i
		actions = append(actions, Action{ID: last.ID + 1, State: evs[i].State, Start: i})
	}
	actions[len(actions)-1].End = len(evs)
	return actions
}
