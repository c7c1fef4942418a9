package gramschmidt

import (
	"gonum.org/v1/gonum/mat"

	"github.com/xmlongan/jmomden/pkg/polyvect"
)

// Basis is an ordered orthonormal basis b_0..b_D. It is read-only.
type Basis struct {
	polys   []polyvect.PolyVect
	moments []float64
}

// Len returns D+1.
func (b Basis) Len() int { return len(b.polys) }

// Degree returns D.
func (b Basis) Degree() int { return len(b.polys) - 1 }

// At returns b_i.
func (b Basis) At(i int) polyvect.PolyVect { return b.polys[i] }

// Moments returns a copy of the moments (orders 1..2D) the basis was built on.
func (b Basis) Moments() []float64 { return append([]float64(nil), b.moments...) }

// Coefficients returns the coefficient rows, row i holding b_i.
func (b Basis) Coefficients() [][]float64 {
	out := make([][]float64, len(b.polys))
	for i, p := range b.polys {
		out[i] = p.Coef()
	}
	return out
}

// Gram returns the matrix of pairwise inner products, which is the
// identity up to rounding.
func (b Basis) Gram() *mat.Dense {
	n := len(b.polys)
	g := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v, err := b.polys[i].Inner(b.polys[j], b.moments)
			if err != nil {
				panic(err) // lengths are fixed at construction
			}
			g.Set(i, j, v)
			g.Set(j, i, v)
		}
	}
	return g
}

// EvalMatrix returns the (D+1) x len(xs) matrix with entry (i, k) = b_i(xs[k]).
// An empty xs yields an empty matrix (IsEmpty reports true).
func (b Basis) EvalMatrix(xs []float64) *mat.Dense {
	if len(xs) == 0 {
		return &mat.Dense{}
	}
	n := len(b.polys)
	data := make([]float64, n*len(xs))
	for i, p := range b.polys {
		p.EvalTo(data[i*len(xs):(i+1)*len(xs)], xs)
	}
	return mat.NewDense(n, len(xs), data)
}
