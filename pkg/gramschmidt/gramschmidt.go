// Package gramschmidt builds polynomial bases that are orthonormal under the
// inner product induced by a raw moment sequence.
package gramschmidt

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/xmlongan/jmomden/pkg/numerr"
	"github.com/xmlongan/jmomden/pkg/polyvect"
)

// Builder runs the classical Gram-Schmidt process over the monomials
// 1, x, ..., x^D.
type Builder struct {
	degree  int
	moments []float64
	basis   []polyvect.PolyVect
	logger  zerolog.Logger
}

// New prepares a builder for a basis of the given degree. moments holds raw
// moments of orders 1, 2, ...; at least 2*degree are required and only that
// many are kept.
func New(degree int, moments []float64) (*Builder, error) {
	if degree < 0 {
		return nil, fmt.Errorf("gramschmidt: negative degree %d", degree)
	}
	if len(moments) < 2*degree {
		return nil, numerr.Shapef("gramschmidt: degree %d needs at least %d moments, got %d",
			degree, 2*degree, len(moments))
	}
	return &Builder{
		degree:  degree,
		moments: append([]float64(nil), moments[:2*degree]...),
		basis:   []polyvect.PolyVect{polyvect.Monomial(0, degree)},
		logger:  log.Logger,
	}, nil
}

// WithLogger sets the logger used for debug output.
func (b *Builder) WithLogger(l zerolog.Logger) *Builder {
	b.logger = l
	return b
}

// Built returns the number of basis polynomials available so far.
func (b *Builder) Built() int { return len(b.basis) }

// Next builds b_n from x^n and b_0..b_{n-1}. n must equal Built().
func (b *Builder) Next(n int) (polyvect.PolyVect, error) {
	if n != len(b.basis) {
		return polyvect.PolyVect{}, fmt.Errorf("gramschmidt: degree %d requested with %d polynomials built: %w",
			n, len(b.basis), numerr.ErrSequencing)
	}
	if n > b.degree {
		return polyvect.PolyVect{}, fmt.Errorf("gramschmidt: degree %d exceeds basis degree %d: %w",
			n, b.degree, numerr.ErrSequencing)
	}

	xn := polyvect.Monomial(n, b.degree)
	r := xn
	for i, bi := range b.basis {
		proj, err := xn.Inner(bi, b.moments)
		if err != nil {
			return polyvect.PolyVect{}, fmt.Errorf("gramschmidt: project x^%d on b_%d: %w", n, i, err)
		}
		if r, err = r.Sub(bi.Scale(proj)); err != nil {
			return polyvect.PolyVect{}, err
		}
	}

	norm, err := r.Norm(b.moments)
	if err != nil {
		var de *numerr.DegeneracyError
		if errors.As(err, &de) {
			return polyvect.PolyVect{}, &numerr.DegeneracyError{Op: "gramschmidt: normalize", Degree: n, Value: de.Value}
		}
		return polyvect.PolyVect{}, err
	}
	bn, err := r.Div(norm)
	if err != nil {
		return polyvect.PolyVect{}, err
	}
	b.basis = append(b.basis, bn)
	return bn, nil
}

// Build completes the basis up to the builder's degree.
func (b *Builder) Build() (Basis, error) {
	for n := len(b.basis); n <= b.degree; n++ {
		if _, err := b.Next(n); err != nil {
			b.logger.Debug().Err(err).Int("degree", n).Msg("basis construction failed")
			return Basis{}, err
		}
	}
	b.logger.Debug().Int("degree", b.degree).Msg("orthonormal basis built")
	return Basis{
		polys:   append([]polyvect.PolyVect(nil), b.basis...),
		moments: append([]float64(nil), b.moments...),
	}, nil
}

// Orthonormalize is New followed by Build.
func Orthonormalize(degree int, moments []float64) (Basis, error) {
	b, err := New(degree, moments)
	if err != nil {
		return Basis{}, err
	}
	return b.Build()
}
