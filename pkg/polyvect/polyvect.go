// Package polyvect represents univariate polynomials by their coefficient
// vectors in the monomial basis, with an inner product induced by a
// sequence of raw moments rather than by an explicit density.
package polyvect

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/xmlongan/jmomden/pkg/bcast"
	"github.com/xmlongan/jmomden/pkg/numerr"
)

// PolyVect is the polynomial c[0] + c[1] x + ... + c[n] x^n.
// Its length is fixed at construction; arithmetic returns new values.
type PolyVect struct {
	coef []float64
}

// New returns the polynomial with the given coefficients, lowest order first.
func New(coef []float64) PolyVect {
	return PolyVect{coef: append([]float64(nil), coef...)}
}

// Monomial returns x^n padded to degree+1 coefficients.
func Monomial(n, degree int) PolyVect {
	if n < 0 || n > degree {
		panic(fmt.Sprintf("polyvect: monomial order %d outside [0, %d]", n, degree))
	}
	coef := make([]float64, degree+1)
	coef[n] = 1
	return PolyVect{coef: coef}
}

// Len returns the number of coefficients.
func (p PolyVect) Len() int { return len(p.coef) }

// Degree returns Len()-1, the highest representable order.
func (p PolyVect) Degree() int { return len(p.coef) - 1 }

// At returns the coefficient of x^i.
func (p PolyVect) At(i int) float64 { return p.coef[i] }

// Coef returns a copy of the coefficients.
func (p PolyVect) Coef() []float64 { return append([]float64(nil), p.coef...) }

// Eval evaluates the polynomial at x with Horner's rule.
func (p PolyVect) Eval(x float64) float64 {
	var s float64
	for i := len(p.coef) - 1; i >= 0; i-- {
		s = s*x + p.coef[i]
	}
	return s
}

// EvalTo evaluates the polynomial at every element of xs, storing the result
// in dst. dst is allocated when nil and must otherwise have len(xs).
func (p PolyVect) EvalTo(dst, xs []float64) []float64 {
	if dst == nil {
		dst = make([]float64, len(xs))
	}
	if len(dst) != len(xs) {
		panic("polyvect: destination length mismatch")
	}
	for k := range dst {
		dst[k] = 0
	}
	for i := len(p.coef) - 1; i >= 0; i-- {
		floats.Mul(dst, xs)
		floats.AddConst(p.coef[i], dst)
	}
	return dst
}

// EvalValue evaluates at a scalar or elementwise along a vector.
func (p PolyVect) EvalValue(x bcast.Value) bcast.Value {
	if x.IsScalar() {
		return bcast.Scalar(p.Eval(x.Float()))
	}
	return bcast.Vector(p.EvalTo(nil, x.Slice()))
}

// Add returns p + q.
func (p PolyVect) Add(q PolyVect) (PolyVect, error) {
	if err := sameLen("add", p, q); err != nil {
		return PolyVect{}, err
	}
	return PolyVect{coef: floats.AddTo(make([]float64, p.Len()), p.coef, q.coef)}, nil
}

// Sub returns p - q.
func (p PolyVect) Sub(q PolyVect) (PolyVect, error) {
	if err := sameLen("subtract", p, q); err != nil {
		return PolyVect{}, err
	}
	return PolyVect{coef: floats.SubTo(make([]float64, p.Len()), p.coef, q.coef)}, nil
}

// Scale returns k p.
func (p PolyVect) Scale(k float64) PolyVect {
	return PolyVect{coef: floats.ScaleTo(make([]float64, p.Len()), k, p.coef)}
}

// Div returns p / k.
func (p PolyVect) Div(k float64) (PolyVect, error) {
	if k == 0 {
		return PolyVect{}, fmt.Errorf("polyvect: divide %v: %w", p, numerr.ErrDivision)
	}
	return p.Scale(1 / k), nil
}

// Inner returns the bilinear form sum_i sum_j p_i q_j m(i+j), where
// m(0) = 1 and m(k) = moments[k-1]. The moments must cover orders
// 1..2*Degree() exactly.
func (p PolyVect) Inner(q PolyVect, moments []float64) (float64, error) {
	if err := sameLen("inner product", p, q); err != nil {
		return 0, err
	}
	if len(moments) != 2*p.Degree() {
		return 0, numerr.Shapef("polyvect: inner product of degree %d needs %d moments, got %d",
			p.Degree(), 2*p.Degree(), len(moments))
	}
	var f float64
	for i, ci := range p.coef {
		for j, dj := range q.coef {
			m := 1.0
			if i+j > 0 {
				m = moments[i+j-1]
			}
			f += ci * dj * m
		}
	}
	return f, nil
}

// Norm returns the square root of Inner(p, p). A non-positive radicand means
// the moments do not describe a valid distribution at this degree and is
// reported as a degeneracy.
func (p PolyVect) Norm(moments []float64) (float64, error) {
	sq, err := p.Inner(p, moments)
	if err != nil {
		return 0, err
	}
	if !(sq > 0) {
		return 0, &numerr.DegeneracyError{Op: "polyvect: norm", Degree: -1, Value: sq}
	}
	return math.Sqrt(sq), nil
}

func (p PolyVect) String() string {
	parts := make([]string, len(p.coef))
	for i, c := range p.coef {
		parts[i] = fmt.Sprintf("%.7g", c)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func sameLen(op string, p, q PolyVect) error {
	if p.Len() != q.Len() {
		return numerr.Shapef("polyvect: %s lengths %d and %d", op, p.Len(), q.Len())
	}
	return nil
}
