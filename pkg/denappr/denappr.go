// Package denappr approximates a bivariate density from raw joint moments.
//
// Each coordinate gets an auxiliary marginal density w and a polynomial
// basis b_0..b_D orthonormal under that coordinate's moments. The joint
// density is approximated by
//
//	f(z1, z2) = w1(z1) w2(z2) sum_ij T[i][j] b_i(z1) b_j(z2)
//
// where T[i][j] = E[b_i(z1) b_j(z2)] is computed from the joint moments.
// The polynomial factor is the likelihood ratio. Because the series is
// truncated, f may be negative far in the tails.
package denappr

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"

	"github.com/xmlongan/jmomden/pkg/gramschmidt"
	"github.com/xmlongan/jmomden/pkg/numerr"
	"github.com/xmlongan/jmomden/pkg/pearson"
)

// Marginal is an auxiliary univariate density.
type Marginal interface {
	PDF(x float64) float64
	PDFEach(xs []float64) []float64
}

// Fitter builds a Marginal from raw moments of orders 1, 2, ...
type Fitter func(moments []float64) (Marginal, error)

// FamilyFitter returns a Fitter for a family known to package pearson.
func FamilyFitter(family string) Fitter {
	return func(moments []float64) (Marginal, error) {
		return pearson.FitFamily(family, moments)
	}
}

type options struct {
	fitter Fitter
	w1, w2 Marginal
	logger zerolog.Logger
}

// Option configures New.
type Option func(*options)

// WithFitter sets how the auxiliary marginals are fitted.
func WithFitter(f Fitter) Option {
	return func(o *options) { o.fitter = f }
}

// WithMarginals uses the given auxiliary densities instead of fitting them.
func WithMarginals(w1, w2 Marginal) Option {
	return func(o *options) { o.w1, o.w2 = w1, w2 }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Approximator holds both bases, both auxiliary marginals and the correction
// tensor. It is immutable once built and safe for concurrent use.
type Approximator struct {
	degree int
	mu1    []float64
	mu2    []float64
	joint  [][]float64
	basis1 gramschmidt.Basis
	basis2 gramschmidt.Basis
	w1, w2 Marginal
	tensor *mat.Dense
}

// New builds an approximator. mu1 and mu2 are raw moments of orders 1..2D of
// each coordinate; joint is the (D+1)x(D+1) matrix E[z1^r z2^c] with
// joint[0][0] within 1e-12 of 1; the stored copy holds exactly 1 there.
func New(mu1, mu2 []float64, joint [][]float64, degree int, opts ...Option) (*Approximator, error) {
	o := options{fitter: FamilyFitter(pearson.FamilyPearson), logger: log.Logger}
	for _, opt := range opts {
		opt(&o)
	}
	if err := checkJoint(joint, degree); err != nil {
		return nil, err
	}

	basis1, err := gramschmidt.Orthonormalize(degree, mu1)
	if err != nil {
		return nil, fmt.Errorf("denappr: basis for first coordinate: %w", err)
	}
	basis2, err := gramschmidt.Orthonormalize(degree, mu2)
	if err != nil {
		return nil, fmt.Errorf("denappr: basis for second coordinate: %w", err)
	}

	w1, w2 := o.w1, o.w2
	if w1 == nil {
		if w1, err = o.fitter(mu1); err != nil {
			return nil, fmt.Errorf("denappr: auxiliary density for first coordinate: %w", err)
		}
	}
	if w2 == nil {
		if w2, err = o.fitter(mu2); err != nil {
			return nil, fmt.Errorf("denappr: auxiliary density for second coordinate: %w", err)
		}
	}

	jm := copyTable(joint)
	jm[0][0] = 1

	a := &Approximator{
		degree: degree,
		mu1:    basis1.Moments(),
		mu2:    basis2.Moments(),
		joint:  jm,
		basis1: basis1,
		basis2: basis2,
		w1:     w1,
		w2:     w2,
	}
	a.tensor = correctionTensor(basis1, basis2, a.joint)

	o.logger.Debug().
		Int("degree", degree).
		Float64("t00", a.tensor.At(0, 0)).
		Msg("correction tensor built")
	return a, nil
}

// correctionTensor returns T = B1 M B2^T where row i of B holds the
// coefficients of b_i and M is the joint moment matrix, i.e.
// T[i][j] = sum_rc b1_i[r] b2_j[c] M[r][c].
func correctionTensor(b1, b2 gramschmidt.Basis, joint [][]float64) *mat.Dense {
	n := b1.Len()
	c1 := mat.NewDense(n, n, nil)
	c2 := mat.NewDense(n, n, nil)
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		c1.SetRow(i, b1.At(i).Coef())
		c2.SetRow(i, b2.At(i).Coef())
		m.SetRow(i, joint[i][:n])
	}
	var tmp, t mat.Dense
	tmp.Mul(c1, m)
	t.Mul(&tmp, c2.T())
	return &t
}

func checkJoint(joint [][]float64, degree int) error {
	if degree < 0 {
		return fmt.Errorf("denappr: negative degree %d", degree)
	}
	if len(joint) != degree+1 {
		return numerr.Shapef("denappr: joint moment matrix has %d rows, want %d", len(joint), degree+1)
	}
	for r, row := range joint {
		if len(row) != degree+1 {
			return numerr.Shapef("denappr: joint moment row %d has %d entries, want %d", r, len(row), degree+1)
		}
	}
	if math.Abs(joint[0][0]-1) > 1e-12 {
		return numerr.Shapef("denappr: joint moment (0,0) is %g, want 1", joint[0][0])
	}
	return nil
}

func copyTable(t [][]float64) [][]float64 {
	out := make([][]float64, len(t))
	for i, row := range t {
		out[i] = append([]float64(nil), row...)
	}
	return out
}
