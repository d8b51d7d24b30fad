//go:build !darwin

package events

import (
	"context"
	"time"
)

// syntheticSource replays a short scripted session: start hotkey, a movement,
// a click, a drag, the stop hotkey, then one trailing move that must be dropped.
type syntheticSource struct {
	clock func() time.Time
}

func defaultSource(clock func() time.Time) Source {
	return syntheticSource{clock: clock}
}

func (s syntheticSource) Stream(ctx context.Context, emit func(Sample) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	base := unixSeconds(s.clock())
	at := func(offset float64, button Button, state State, x, y float64) Sample {
		ts := base + offset
		return PointerSample(RawEvent{RecordTime: ts, ClientTime: ts, Button: button, State: state, X: x, Y: y})
	}

	timeline := []Sample{
		KeySample("f2"),
		at(0.00, ButtonNone, StateMove, 100, 100),
		at(0.02, ButtonNone, StateMove, 103, 104),
		at(0.04, ButtonNone, StateMove, 109, 112),
		at(0.06, ButtonNone, StateMove, 118, 121),
		at(0.10, ButtonLeft, StatePressed, 118, 121),
		at(0.18, ButtonLeft, StateReleased, 118, 121),
		at(0.30, ButtonLeft, StatePressed, 118, 121),
		at(0.34, ButtonNone, StateDrag, 125, 121),
		at(0.38, ButtonNone, StateDrag, 140, 126),
		at(0.42, ButtonNone, StateDrag, 160, 140),
		at(0.50, ButtonLeft, StateReleased, 160, 140),
		KeySample("f3"),
		at(0.60, ButtonNone, StateMove, 170, 150),
	}

	for _, sample := range timeline {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(sample); err != nil {
			return err
		}
	}
	return nil
}
