package features

// ActionType classifies an event by its button and state.
type ActionType string

const (
	MouseMovement ActionType = "Mouse Movement"
	PointClick    ActionType = "Point Click"
	DragAndDrop   ActionType = "Drag and Drop"
	Unknown       ActionType = "Unknown"
)

// EventFeatures are derived from an event and its immediate predecessor.
type EventFeatures struct {
	Type         ActionType
	Distance     float64
	ElapsedTime  float64
	Direction    float64
	Straightness float64
}

// Stats summarises a sample with its population moments and extrema.
type Stats struct {
	Mean float64
	SD   float64
	Max  float64
	Min  float64
}

// ActionFeatures are shared by every event of one action.
type ActionFeatures struct {
	NumPoints   int
	SumOfAngles float64
	Curvature   Stats
	Omega       Stats
}

// Row is one output record: the event features followed by its action's features.
type Row struct {
	EventFeatures
	ActionFeatures
}

// Options tunes the extraction.
type Options struct {
	// ConfineAnglesToAction drops the turning angle an action's last event
	// takes toward the first event of the following action.
	ConfineAnglesToAction bool
}
