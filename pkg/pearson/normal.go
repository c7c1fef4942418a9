package pearson

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/xmlongan/jmomden/pkg/numerr"
)

// Normal is a normal auxiliary density matched to the first two moments.
type Normal struct {
	dist distuv.Normal
}

// FitNormal returns the normal density with the mean and variance implied by
// the first two raw moments.
func FitNormal(moments []float64) (*Normal, error) {
	if len(moments) < 2 {
		return nil, numerr.Shapef("pearson: need 2 raw moments, got %d", len(moments))
	}
	v := moments[1] - moments[0]*moments[0]
	if !(v > 0) {
		return nil, numerr.Degenerate("pearson: variance", v)
	}
	return &Normal{dist: distuv.Normal{Mu: moments[0], Sigma: math.Sqrt(v)}}, nil
}

// PDF returns the density at x.
func (n *Normal) PDF(x float64) float64 { return n.dist.Prob(x) }

// PDFEach returns PDF(xs[i]) for each i.
func (n *Normal) PDFEach(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = n.dist.Prob(x)
	}
	return out
}

// Mean returns the fitted mean.
func (n *Normal) Mean() float64 { return n.dist.Mu }

// StdDev returns the fitted standard deviation.
func (n *Normal) StdDev() float64 { return n.dist.Sigma }

func (n *Normal) String() string {
	return fmt.Sprintf("normal mean=%.6g sd=%.6g", n.dist.Mu, n.dist.Sigma)
}
