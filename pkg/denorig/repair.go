package denorig

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/xmlongan/jmomden/pkg/bcast"
	"github.com/xmlongan/jmomden/pkg/numerr"
)

const (
	// ScalarFloor replaces a non-positive scalar density.
	ScalarFloor = 1e-10
	// VectorFloor caps the replacement for non-positive entries of a vector.
	VectorFloor = 1e-7
)

// Repair summarises what MakePositive changed.
type Repair struct {
	Count int     // number of values replaced
	Min   float64 // smallest replaced value
	Max   float64 // largest replaced value
	Fill  float64 // replacement value
}

// MakePositive replaces non-positive densities by a small positive value.
// A scalar <= 0 becomes ScalarFloor. In a vector, entries <= 0 become
// min(VectorFloor, smallest positive entry); a vector with no positive entry
// cannot be repaired and yields ErrDegenerate. Positive entries, +Inf
// included, are returned unchanged and the input is never modified.
//
// NaN is neither positive nor <= 0: it is passed through unrepaired, and
// the result is strictly positive only for NaN-free input.
func MakePositive(values bcast.Value, warn bool, logger zerolog.Logger) (bcast.Value, Repair, error) {
	if values.IsScalar() {
		x := values.Float()
		if !(x <= 0) {
			return values, Repair{}, nil
		}
		r := Repair{Count: 1, Min: x, Max: x, Fill: ScalarFloor}
		report(r, warn, logger)
		return bcast.Scalar(ScalarFloor), r, nil
	}

	xs := values.Slice()
	r := Repair{Min: math.Inf(1), Max: math.Inf(-1)}
	minPos := math.Inf(1)
	positives := 0
	for _, x := range xs {
		switch {
		case x > 0:
			positives++
			minPos = math.Min(minPos, x)
		case x <= 0:
			r.Count++
			r.Min = math.Min(r.Min, x)
			r.Max = math.Max(r.Max, x)
		}
	}
	if r.Count == 0 {
		return values, Repair{}, nil
	}
	if positives == 0 {
		return bcast.Value{}, Repair{}, numerr.Degenerate("denorig: repair without positive densities", r.Max)
	}

	r.Fill = math.Min(VectorFloor, minPos)
	for i, x := range xs {
		if x <= 0 {
			xs[i] = r.Fill
		}
	}
	report(r, warn, logger)
	return bcast.Vector(xs), r, nil
}

func report(r Repair, warn bool, logger zerolog.Logger) {
	if !warn {
		return
	}
	logger.Warn().
		Int("count", r.Count).
		Float64("min", r.Min).
		Float64("max", r.Max).
		Float64("fill", r.Fill).
		Msg("non-positive densities replaced")
}
