package pearson

import "fmt"

// Family names accepted by FitFamily.
const (
	FamilyPearson = "pearson"
	FamilyNormal  = "normal"
)

// Density is what every fitted family provides.
type Density interface {
	PDF(x float64) float64
	PDFEach(xs []float64) []float64
	Mean() float64
	StdDev() float64
}

// FitFamily fits the named family. The Pearson family falls back to a normal
// fit when fewer than four moments are available.
func FitFamily(family string, moments []float64) (Density, error) {
	switch family {
	case FamilyPearson, "":
		if len(moments) < 4 {
			return FitNormal(moments)
		}
		return Fit(moments)
	case FamilyNormal:
		return FitNormal(moments)
	default:
		return nil, fmt.Errorf("pearson: unknown family %q", family)
	}
}
