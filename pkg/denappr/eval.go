package denappr

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/xmlongan/jmomden/pkg/bcast"
	"github.com/xmlongan/jmomden/pkg/gramschmidt"
)

// LikelihoodRatio evaluates sum_ij T[i][j] b_i(z1) b_j(z2).
func (a *Approximator) LikelihoodRatio(z1, z2 bcast.Value) (bcast.Value, error) {
	p, err := bcast.Pair(z1, z2)
	if err != nil {
		return bcast.Value{}, err
	}
	x1, x2 := p.Expand()
	return p.Result(a.ratio(x1, x2)), nil
}

// AuxiliaryDensity evaluates w1(z1) w2(z2).
func (a *Approximator) AuxiliaryDensity(z1, z2 bcast.Value) (bcast.Value, error) {
	p, err := bcast.Pair(z1, z2)
	if err != nil {
		return bcast.Value{}, err
	}
	x1, x2 := p.Expand()
	return p.Result(a.auxiliary(x1, x2)), nil
}

// PseudoDensity evaluates w1(z1) w2(z2) times the likelihood ratio. The
// result may be negative where the truncated series undershoots.
func (a *Approximator) PseudoDensity(z1, z2 bcast.Value) (bcast.Value, error) {
	p, err := bcast.Pair(z1, z2)
	if err != nil {
		return bcast.Value{}, err
	}
	x1, x2 := p.Expand()
	w := a.auxiliary(x1, x2)
	floats.Mul(w, a.ratio(x1, x2))
	return p.Result(w), nil
}

// Ratio is LikelihoodRatio for a single point.
func (a *Approximator) Ratio(z1, z2 float64) float64 {
	return a.ratio([]float64{z1}, []float64{z2})[0]
}

// Density is PseudoDensity for a single point.
func (a *Approximator) Density(z1, z2 float64) float64 {
	return a.w1.PDF(z1) * a.w2.PDF(z2) * a.Ratio(z1, z2)
}

// ratio computes, for every k, sum_i B1[i,k] (T B2)[i,k] where B holds the
// basis polynomials evaluated at the points.
func (a *Approximator) ratio(x1, x2 []float64) []float64 {
	out := make([]float64, len(x1))
	if len(x1) == 0 {
		return out
	}
	b1 := a.basis1.EvalMatrix(x1)
	b2 := a.basis2.EvalMatrix(x2)

	var tb, prod mat.Dense
	tb.Mul(a.tensor, b2)
	prod.MulElem(b1, &tb)

	rows, _ := prod.Dims()
	for i := 0; i < rows; i++ {
		floats.Add(out, prod.RawRowView(i))
	}
	return out
}

func (a *Approximator) auxiliary(x1, x2 []float64) []float64 {
	w := a.w1.PDFEach(x1)
	floats.Mul(w, a.w2.PDFEach(x2))
	return w
}

// Degree returns D.
func (a *Approximator) Degree() int { return a.degree }

// Tensor returns a copy of the correction tensor.
func (a *Approximator) Tensor() *mat.Dense { return mat.DenseCopyOf(a.tensor) }

// Basis1 returns the basis of the first coordinate.
func (a *Approximator) Basis1() gramschmidt.Basis { return a.basis1 }

// Basis2 returns the basis of the second coordinate.
func (a *Approximator) Basis2() gramschmidt.Basis { return a.basis2 }

// Marginal1 returns the auxiliary density of the first coordinate.
func (a *Approximator) Marginal1() Marginal { return a.w1 }

// Marginal2 returns the auxiliary density of the second coordinate.
func (a *Approximator) Marginal2() Marginal { return a.w2 }

// Moments returns copies of the moments the approximator was built from.
func (a *Approximator) Moments() (mu1, mu2 []float64, joint [][]float64) {
	return append([]float64(nil), a.mu1...), append([]float64(nil), a.mu2...), copyTable(a.joint)
}
