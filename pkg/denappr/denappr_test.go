package denappr

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/xmlongan/jmomden/pkg/bcast"
	"github.com/xmlongan/jmomden/pkg/jointmom"
	"github.com/xmlongan/jmomden/pkg/numerr"
	"github.com/xmlongan/jmomden/pkg/pearson"
)

func submatrix(t jointmom.Table, d int) [][]float64 {
	out := make([][]float64, d+1)
	for r := range out {
		out[r] = append([]float64(nil), t[r][:d+1]...)
	}
	return out
}

func build(t *testing.T, tb jointmom.Table, d int, opts ...Option) *Approximator {
	t.Helper()
	a, err := New(tb.Marginal1(2*d), tb.Marginal2(2*d), submatrix(tb, d), d, opts...)
	require.NoError(t, err)
	return a
}

func skewedTable(t *testing.T) jointmom.Table {
	t.Helper()
	a, err := jointmom.BivariateNormal(0, 0, 1, 0.8, 0.3, 8)
	require.NoError(t, err)
	b, err := jointmom.BivariateNormal(1.2, 0.5, 0.6, 1.1, -0.2, 8)
	require.NoError(t, err)
	m, err := jointmom.Mixture([]float64{0.7, 0.3}, a, b)
	require.NoError(t, err)
	return m
}

func TestTensorIndependentNormal(t *testing.T) {
	n := jointmom.NormalMoments(0, 1, 8)
	a := build(t, jointmom.Independent(n, n), 4)

	tensor := a.Tensor()
	r, c := tensor.Dims()
	require.Equal(t, 5, r)
	require.Equal(t, 5, c)
	assert.Equal(t, 1.0, tensor.At(0, 0))
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if i == 0 && j == 0 {
				continue
			}
			assert.InDelta(t, 0, tensor.At(i, j), 1e-9, "T[%d][%d]", i, j)
		}
	}

	// product case: the likelihood ratio is identically one
	lr, err := a.LikelihoodRatio(bcast.Vector([]float64{-2, 0, 1.5}), bcast.Scalar(0.3))
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 1, 1}, lr.Slice(), 1e-9)
}

func TestTensorZerothCoefficient(t *testing.T) {
	a := build(t, skewedTable(t), 4)
	assert.Equal(t, 1.0, a.Tensor().At(0, 0))

	t.Run("rounded (0,0) entry", func(t *testing.T) {
		tb := skewedTable(t)
		joint := submatrix(tb, 4)
		joint[0][0] = 1 + 1e-13
		a, err := New(tb.Marginal1(8), tb.Marginal2(8), joint, 4)
		require.NoError(t, err)
		assert.Equal(t, 1.0, a.Tensor().At(0, 0))
		assert.Equal(t, 1+1e-13, joint[0][0], "caller's matrix is left alone")
	})
}

func TestTensorSymmetry(t *testing.T) {
	tb, err := jointmom.BivariateNormal(0.3, 0.3, 1.2, 1.2, 0.6, 8)
	require.NoError(t, err)
	a := build(t, tb, 4)

	tensor := a.Tensor()
	assert.True(t, mat.EqualApprox(tensor, tensor.T(), 1e-10))
	// E[b1(z1) b1(z2)] is the correlation for equal marginals
	assert.InDelta(t, 0.6, tensor.At(1, 1), 1e-9)
}

func TestTensorMatchesDefinition(t *testing.T) {
	tb := skewedTable(t)
	a := build(t, tb, 3)
	joint := submatrix(tb, 3)

	tensor := a.Tensor()
	for i := 0; i <= 3; i++ {
		for j := 0; j <= 3; j++ {
			bi, bj := a.Basis1().At(i), a.Basis2().At(j)
			var want float64
			for r := 0; r <= 3; r++ {
				for c := 0; c <= 3; c++ {
					want += bi.At(r) * bj.At(c) * joint[r][c]
				}
			}
			assert.InDelta(t, want, tensor.At(i, j), 1e-9, "T[%d][%d]", i, j)
		}
	}
}

func TestBroadcasting(t *testing.T) {
	a := build(t, skewedTable(t), 4)
	xs := []float64{-1, 0, 0.5, 2}
	ys := []float64{0.2, -0.4, 1, 1.5}

	t.Run("scalar x scalar", func(t *testing.T) {
		v, err := a.PseudoDensity(bcast.Scalar(0.5), bcast.Scalar(1))
		require.NoError(t, err)
		require.True(t, v.IsScalar())
		assert.InDelta(t, a.Density(0.5, 1), v.Float(), 1e-14)
	})

	t.Run("scalar x vector", func(t *testing.T) {
		v, err := a.LikelihoodRatio(bcast.Scalar(0.5), bcast.Vector(ys))
		require.NoError(t, err)
		require.False(t, v.IsScalar())
		require.Equal(t, len(ys), v.Len())
		for k, y := range ys {
			assert.InDelta(t, a.Ratio(0.5, y), v.At(k), 1e-12)
		}
	})

	t.Run("vector x scalar", func(t *testing.T) {
		v, err := a.AuxiliaryDensity(bcast.Vector(xs), bcast.Scalar(1))
		require.NoError(t, err)
		require.Equal(t, len(xs), v.Len())
		for k, x := range xs {
			assert.InDelta(t, a.Marginal1().PDF(x)*a.Marginal2().PDF(1), v.At(k), 1e-14)
		}
	})

	t.Run("vector x vector", func(t *testing.T) {
		v, err := a.PseudoDensity(bcast.Vector(xs), bcast.Vector(ys))
		require.NoError(t, err)
		require.Equal(t, len(xs), v.Len())
		for k := range xs {
			assert.InDelta(t, a.Density(xs[k], ys[k]), v.At(k), 1e-12)
		}
	})

	t.Run("unequal vectors", func(t *testing.T) {
		_, err := a.PseudoDensity(bcast.Vector(xs), bcast.Vector(ys[:2]))
		assert.True(t, errors.Is(err, numerr.ErrShape))
		_, err = a.LikelihoodRatio(bcast.Vector(xs), bcast.Vector(ys[:2]))
		assert.True(t, errors.Is(err, numerr.ErrShape))
		_, err = a.AuxiliaryDensity(bcast.Vector(xs), bcast.Vector(ys[:2]))
		assert.True(t, errors.Is(err, numerr.ErrShape))
	})

	t.Run("empty vector", func(t *testing.T) {
		v, err := a.PseudoDensity(bcast.Scalar(0), bcast.Vector(nil))
		require.NoError(t, err)
		assert.Equal(t, 0, v.Len())
	})
}

func TestPseudoDensityIsProduct(t *testing.T) {
	a := build(t, skewedTable(t), 4)
	for _, p := range [][2]float64{{0, 0}, {1, -0.5}, {-1.5, 2}} {
		want := a.Marginal1().PDF(p[0]) * a.Marginal2().PDF(p[1]) * a.Ratio(p[0], p[1])
		assert.InDelta(t, want, a.Density(p[0], p[1]), 1e-14)
	}
}

func TestSeriesIntegratesToOne(t *testing.T) {
	// With normal auxiliaries on an exactly normal table the series is exact.
	tb, err := jointmom.BivariateNormal(0, 0, 1, 1, 0, 8)
	require.NoError(t, err)
	a := build(t, tb, 4, WithFitter(FamilyFitter(pearson.FamilyNormal)))

	const h = 0.05
	var sum float64
	for x := -8.0; x <= 8; x += h {
		for y := -8.0; y <= 8; y += h {
			sum += a.Density(x, y)
		}
	}
	assert.InDelta(t, 1, sum*h*h, 1e-3)
	assert.InDelta(t, 1/(2*math.Pi), a.Density(0, 0), 1e-9)
}

type constMarginal float64

func (c constMarginal) PDF(float64) float64 { return float64(c) }
func (c constMarginal) PDFEach(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i := range out {
		out[i] = float64(c)
	}
	return out
}

func TestOptions(t *testing.T) {
	a := build(t, skewedTable(t), 2, WithMarginals(constMarginal(2), constMarginal(3)))
	assert.InDelta(t, 6*a.Ratio(0.1, 0.2), a.Density(0.1, 0.2), 1e-14)

	called := 0
	fitter := func(m []float64) (Marginal, error) {
		called++
		return constMarginal(1), nil
	}
	build(t, skewedTable(t), 2, WithFitter(fitter))
	assert.Equal(t, 2, called)

	mu1, mu2, joint := a.Moments()
	assert.Len(t, mu1, 4)
	assert.Len(t, mu2, 4)
	assert.Len(t, joint, 3)
	assert.Equal(t, 2, a.Degree())
}

func TestNewErrors(t *testing.T) {
	tb := skewedTable(t)
	mu1, mu2 := tb.Marginal1(8), tb.Marginal2(8)

	t.Run("joint matrix size", func(t *testing.T) {
		_, err := New(mu1, mu2, submatrix(tb, 3), 4)
		assert.True(t, errors.Is(err, numerr.ErrShape))
	})

	t.Run("ragged joint matrix", func(t *testing.T) {
		joint := submatrix(tb, 4)
		joint[2] = joint[2][:3]
		_, err := New(mu1, mu2, joint, 4)
		assert.True(t, errors.Is(err, numerr.ErrShape))
	})

	t.Run("joint (0,0) entry", func(t *testing.T) {
		joint := submatrix(tb, 4)
		joint[0][0] = 0.9
		_, err := New(mu1, mu2, joint, 4)
		assert.True(t, errors.Is(err, numerr.ErrShape))
	})

	t.Run("too few moments", func(t *testing.T) {
		_, err := New(mu1[:6], mu2, submatrix(tb, 4), 4)
		assert.True(t, errors.Is(err, numerr.ErrShape))
	})

	t.Run("degenerate moments", func(t *testing.T) {
		twoPoint := []float64{0, 1, 0, 1, 0, 1, 0, 1}
		_, err := New(twoPoint, mu2, submatrix(tb, 4), 4)
		assert.True(t, errors.Is(err, numerr.ErrDegenerate))
	})

	t.Run("fitter failure", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := New(mu1, mu2, submatrix(tb, 4), 4, WithFitter(func([]float64) (Marginal, error) {
			return nil, boom
		}))
		assert.True(t, errors.Is(err, boom))
	})
}
