package features

import (
	"math"

	"github.com/offlinefirst/mousedynamics/pkg/events"
)

func segmentLength(a, b events.RawEvent) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// Heading is the angle in radians of the vector from a to b.
func Heading(a, b events.RawEvent) float64 {
	return math.Atan2(b.Y-a.Y, b.X-a.X)
}

// Curvature is the interior angle at b of the triangle a-b-c divided by the
// shorter of the two segments meeting at b. Coincident neighbours yield 0.
// Collinear points give an interior angle of π, not 0.
func Curvature(a, b, c events.RawEvent) float64 {
	ab := segmentLength(a, b)
	bc := segmentLength(b, c)
	ac := segmentLength(a, c)
	if ab*bc == 0 {
		return 0
	}
	cosine := (ab*ab + bc*bc - ac*ac) / (2 * ab * bc)
	cosine = math.Max(-1, math.Min(1, cosine))
	return math.Acos(cosine) / math.Min(ab, bc)
}

// AngularVelocity divides the heading from a to b by the client time between
// them. Simultaneous events yield 0.
func AngularVelocity(a, b events.RawEvent) float64 {
	dt := b.ClientTime - a.ClientTime
	if dt == 0 {
		return 0
	}
	return Heading(a, b) / dt
}
