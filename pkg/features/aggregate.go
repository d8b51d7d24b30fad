package features

import (
	"math"

	"github.com/offlinefirst/mousedynamics/pkg/events"
)

// actionAccumulator folds one action's events with a two-event lookback.
type actionAccumulator struct {
	points   int
	prev     events.RawEvent
	prevPrev events.RawEvent

	curvature accumulator
	omega     accumulator

	angleSum  float64
	lastAngle float64
	hasAngle  bool
}

func (a *actionAccumulator) addPoint(ev events.RawEvent) {
	if a.points >= 1 {
		a.omega.add(AngularVelocity(a.prev, ev))
	}
	if a.points >= 2 {
		a.curvature.add(Curvature(a.prevPrev, a.prev, ev))
	}
	a.prevPrev = a.prev
	a.prev = ev
	a.points++
}

// addAngle records the heading of the next member, in order.
func (a *actionAccumulator) addAngle(angle float64) {
	if a.hasAngle {
		a.angleSum += math.Abs(angle - a.lastAngle)
	}
	a.lastAngle = angle
	a.hasAngle = true
}

func (a *actionAccumulator) features() ActionFeatures {
	return ActionFeatures{
		NumPoints:   a.points,
		SumOfAngles: a.angleSum,
		Curvature:   a.curvature.stats(),
		Omega:       a.omega.stats(),
	}
}

// Aggregate computes one ActionFeatures per action, keyed by action ID.
// actions must come from Segment(evs).
//
// Each event's turning angle is its heading toward the next event of the
// session, which for an action's last event lies in the following action
// unless opts.ConfineAnglesToAction is set. The session's final event has no
// heading and contributes nothing.
func Aggregate(evs []events.RawEvent, actions []Action, opts Options) map[int]ActionFeatures {
	out := make(map[int]ActionFeatures, len(actions))
	for _, act := range actions {
		acc := &actionAccumulator{}
		for i := act.Start; i < act.End; i++ {
			acc.addPoint(evs[i])
			next := i + 1
			if next == len(evs) || (next == act.End && opts.ConfineAnglesToAction) {
				continue
			}
			acc.addAngle(Heading(evs[i], evs[next]))
		}
		out[act.ID] = acc.features()
	}
	return out
}

// Broadcast attaches each action's features to every member event's row.
func Broadcast(perEvent []EventFeatures, actions []Action, perAction map[int]ActionFeatures) []Row {
	rows := make([]Row, len(perEvent))
	for _, act := range actions {
		shared := perAction[act.ID]
		for i := act.Start; i < act.End; i++ {
			rows[i] = Row{EventFeatures: perEvent[i], ActionFeatures: shared}
		}
	}
	return rows
}
