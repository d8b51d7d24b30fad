package events

// Button names the pointer button attached to a raw event.
type Button string

// State names the pointer motion state of a raw event.
type State string

const (
	ButtonNone   Button = "NoButton"
	ButtonLeft   Button = "Left"
	ButtonRight  Button = "Right"
	ButtonMiddle Button = "Middle"
	ButtonScroll Button = "Scroll"
)

const (
	StateMove     State = "Move"
	StatePressed  State = "Pressed"
	StateReleased State = "Released"
	StateDrag     State = "Drag"
	StateScroll   State = "Scroll"
)

// RawEvent is one row of a session file. Values are never mutated after decode.
type RawEvent struct {
	RecordTime float64
	ClientTime float64
	Button     Button
	State      State
	X          float64
	Y          float64
}

// SampleKind distinguishes pointer rows from control keys in a capture stream.
type SampleKind int

const (
	SamplePointer SampleKind = iota
	SampleKey
)

// Sample is a single item emitted by a capture Source.
type Sample struct {
	Kind  SampleKind
	Event RawEvent
	// Key is the lower-case key name ("f2", "f3", ...) for SampleKey samples.
	Key string
}

// PointerSample wraps a raw event as a capture sample.
func PointerSample(ev RawEvent) Sample {
	return Sample{Kind: SamplePointer, Event: ev}
}

// KeySample builds a key press sample.
func KeySample(key string) Sample {
	return Sample{Kind: SampleKey, Key: key}
}
