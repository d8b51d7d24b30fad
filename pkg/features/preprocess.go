package features

import (
	"math"

	"github.com/offlinefirst/mousedynamics/pkg/events"
)

// Classify maps an event's button and state to its action type.
func Classify(ev events.RawEvent) ActionType {
	switch {
	case ev.State == events.StateMove && ev.Button == events.ButtonNone:
		return MouseMovement
	case (ev.State == events.StatePressed || ev.State == events.StateReleased) && ev.Button != events.ButtonNone:
		return PointClick
	case ev.State == events.StateDrag:
		return DragAndDrop
	default:
		return Unknown
	}
}

// Preprocessor computes EventFeatures in a single forward pass. It keeps only
// the previous event and the running straight-line distance since the first event.
type Preprocessor struct {
	prev      events.RawEvent
	started   bool
	travelled float64
}

// Next consumes the next event of the session and returns its features.
func (p *Preprocessor) Next(ev events.RawEvent) EventFeatures {
	out := EventFeatures{Type: Classify(ev), Straightness: 1}
	if !p.started {
		p.prev = ev
		p.started = true
		return out
	}

	prev := p.prev
	p.prev = ev

	step := segmentLength(prev, ev)
	if ev.State == events.StateMove {
		out.Distance = step
	}
	out.ElapsedTime = ev.ClientTime - prev.ClientTime
	out.Direction = math.Atan2(ev.Y-prev.Y, ev.X-prev.X) * 180 / math.Pi

	// Normalised by the cumulative straight-line distance over every state
	// since the session started, not by the length of the current action.
	p.travelled += step
	if step != 0 {
		out.Straightness = step / p.travelled
	}
	return out
}

// Preprocess returns one EventFeatures per event, in input order.
func Preprocess(evs []events.RawEvent) []EventFeatures {
	out := make([]EventFeatures, len(evs))
	var p Preprocessor
	for i, ev := range evs {
		out[i] = p.Next(ev)
	}
	return out
}
