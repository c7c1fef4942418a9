// Package bcast holds the operand type used by the density evaluators.
//
// A Value is explicitly tagged as a single number or as a sequence, so the
// broadcasting path never depends on inspecting shapes at runtime:
//
//	scalar x scalar  -> scalar
//	scalar x vector  -> vector, the scalar held fixed
//	vector x vector  -> vector, paired elementwise (equal lengths only)
//
// There is no outer-product broadcasting.
package bcast

import (
	"fmt"

	"github.com/xmlongan/jmomden/pkg/numerr"
)

// Value is either a scalar or a fixed-length sequence of float64.
type Value struct {
	xs     []float64
	scalar bool
}

// Scalar wraps a single number.
func Scalar(x float64) Value {
	return Value{xs: []float64{x}, scalar: true}
}

// Vector wraps a sequence. The slice is copied.
func Vector(xs []float64) Value {
	return Value{xs: append([]float64(nil), xs...)}
}

// IsScalar reports whether v was built with Scalar.
func (v Value) IsScalar() bool { return v.scalar }

// Len returns 1 for scalars and the sequence length otherwise.
func (v Value) Len() int { return len(v.xs) }

// At returns the i-th element. For scalars every index returns the value.
func (v Value) At(i int) float64 {
	if v.scalar {
		return v.xs[0]
	}
	return v.xs[i]
}

// Float returns the scalar value. It panics if v is a vector.
func (v Value) Float() float64 {
	if !v.scalar {
		panic("bcast: Float called on vector value")
	}
	return v.xs[0]
}

// Slice returns a copy of the underlying values.
func (v Value) Slice() []float64 {
	return append([]float64(nil), v.xs...)
}

// Map applies f elementwise and keeps the tag.
func (v Value) Map(f func(float64) float64) Value {
	out := make([]float64, len(v.xs))
	for i, x := range v.xs {
		out[i] = f(x)
	}
	return Value{xs: out, scalar: v.scalar}
}

func (v Value) String() string {
	if v.scalar {
		return fmt.Sprintf("%g", v.xs[0])
	}
	return fmt.Sprintf("%v", v.xs)
}

// Pairing is the result of matching two operands.
type Pairing struct {
	a, b   Value
	n      int
	scalar bool
}

// Pair matches two operands according to the package broadcasting rules.
func Pair(a, b Value) (Pairing, error) {
	switch {
	case a.scalar && b.scalar:
		return Pairing{a: a, b: b, n: 1, scalar: true}, nil
	case a.scalar:
		return Pairing{a: a, b: b, n: b.Len()}, nil
	case b.scalar:
		return Pairing{a: a, b: b, n: a.Len()}, nil
	case a.Len() != b.Len():
		return Pairing{}, numerr.Shapef("paired sequences of length %d and %d", a.Len(), b.Len())
	default:
		return Pairing{a: a, b: b, n: a.Len()}, nil
	}
}

// Len is the number of evaluation points.
func (p Pairing) Len() int { return p.n }

// IsScalar reports whether both operands were scalars.
func (p Pairing) IsScalar() bool { return p.scalar }

// Expand returns both operands as slices of length Len.
func (p Pairing) Expand() (a, b []float64) {
	return expand(p.a, p.n), expand(p.b, p.n)
}

// Result tags ys with the pairing's shape. ys must have length Len.
func (p Pairing) Result(ys []float64) Value {
	if p.scalar {
		return Scalar(ys[0])
	}
	return Value{xs: ys}
}

func expand(v Value, n int) []float64 {
	if !v.scalar {
		return v.Slice()
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = v.xs[0]
	}
	return out
}
