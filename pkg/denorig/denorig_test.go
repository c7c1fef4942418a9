package denorig

import (
	"bytes"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/xmlongan/jmomden/pkg/bcast"
	"github.com/xmlongan/jmomden/pkg/jointmom"
	"github.com/xmlongan/jmomden/pkg/numerr"
)

// skewedTable is a two-component bivariate normal mixture, correlated and
// skewed, with moments up to total order 8.
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

func TestDecorrelationCoefficient(t *testing.T) {
	tb, err := jointmom.BivariateNormal(0.5, -0.2, 1.5, 0.7, 0.6, 4)
	require.NoError(t, err)
	c, err := DecorrelationCoefficient(tb)
	require.NoError(t, err)
	assert.InDelta(t, -0.6*0.7/1.5, c, 1e-12)

	// z2 = c v + y is uncorrelated with v
	cov := TransformedMoment(1, 1, tb, c) - TransformedMoment(1, 0, tb, c)*TransformedMoment(0, 1, tb, c)
	assert.InDelta(t, 0, cov, 1e-12)

	t.Run("degenerate variance", func(t *testing.T) {
		bad := tb.Clone()
		bad[2][0] = bad[1][0] * bad[1][0]
		_, err := DecorrelationCoefficient(bad)
		assert.True(t, errors.Is(err, numerr.ErrDegenerate))
	})
}

func TestTransformedMoment(t *testing.T) {
	tb := skewedTable(t)

	t.Run("first coordinate is unchanged", func(t *testing.T) {
		for n := 0; n <= 8; n++ {
			assert.Equal(t, tb.At(n, 0), TransformedMoment(n, 0, tb, -0.37))
		}
	})

	t.Run("no decorrelation", func(t *testing.T) {
		for n := 0; n <= 4; n++ {
			for m := 0; m <= 4; m++ {
				assert.Equal(t, tb.At(n, m), TransformedMoment(n, m, tb, 0))
			}
		}
	})

	t.Run("binomial expansion", func(t *testing.T) {
		c := 0.4
		// E[(c v + y)^2] = c^2 E[v^2] + 2c E[v y] + E[y^2]
		want := c*c*tb.At(2, 0) + 2*c*tb.At(1, 1) + tb.At(0, 2)
		assert.InDelta(t, want, TransformedMoment(0, 2, tb, c), 1e-12)
	})
}

func TestNewErrors(t *testing.T) {
	tb := skewedTable(t)

	_, err := New(tb, 0)
	assert.Error(t, err)

	_, err = New(tb, 5)
	assert.True(t, errors.Is(err, numerr.ErrShape), "order 8 table cannot support degree 5")

	_, err = New(nil, 2)
	assert.True(t, errors.Is(err, numerr.ErrShape))

	bad := tb.Clone()
	bad[2][0] = 0
	_, err = New(bad, 4)
	assert.True(t, errors.Is(err, numerr.ErrDegenerate))
}

func TestImplicitUnitMoment(t *testing.T) {
	tb := skewedTable(t)
	tb[0][0] = 0
	d, err := New(tb, 4)
	require.NoError(t, err)
	assert.Equal(t, 1.0, d.RawMoments().At(0, 0))
	assert.Equal(t, 0.0, tb[0][0], "input table is not modified")
}

func TestJointDensityBivariateNormal(t *testing.T) {
	const (
		mu1, mu2 = 0.5, -0.2
		s1, s2   = 1.5, 0.7
		rho      = 0.6
	)
	tb, err := jointmom.BivariateNormal(mu1, mu2, s1, s2, rho, 8)
	require.NoError(t, err)
	d, err := New(tb, DefaultDegree)
	require.NoError(t, err)

	cov := mat.NewSymDense(2, []float64{s1 * s1, rho * s1 * s2, rho * s1 * s2, s2 * s2})
	ref, ok := distmv.NewNormal([]float64{mu1, mu2}, cov, nil)
	require.True(t, ok)

	vs := []float64{-1, 0, 0.5, 1.2, 2}
	ys := []float64{-1, -0.5, 0, 0.3, 0.4}
	got, err := d.JointDensity(bcast.Vector(vs), bcast.Vector(ys))
	require.NoError(t, err)
	for k := range vs {
		assert.InEpsilon(t, ref.Prob([]float64{vs[k], ys[k]}), got.At(k), 1e-6, "(%v, %v)", vs[k], ys[k])
	}
}

func TestJacobianInvariance(t *testing.T) {
	d, err := New(skewedTable(t), 4)
	require.NoError(t, err)

	for _, p := range [][2]float64{{0, 0}, {-1, 0.5}, {1.5, -1}, {2.5, 2}} {
		v, y := p[0], p[1]
		got, err := d.JointDensity(bcast.Scalar(v), bcast.Scalar(y))
		require.NoError(t, err)
		want := d.Approximator().Density(v, d.C()*v+y)
		assert.InDelta(t, want, got.Float(), 1e-14*(1+abs(want)))
	}
}

func TestTransformShapes(t *testing.T) {
	d, err := New(skewedTable(t), 2)
	require.NoError(t, err)
	c := d.C()

	z1, z2, err := d.Transform(bcast.Scalar(1), bcast.Scalar(2))
	require.NoError(t, err)
	assert.True(t, z1.IsScalar())
	assert.True(t, z2.IsScalar())
	assert.Equal(t, c+2, z2.Float())

	z1, z2, err = d.Transform(bcast.Scalar(1), bcast.Vector([]float64{0, 1}))
	require.NoError(t, err)
	assert.True(t, z1.IsScalar())
	assert.Equal(t, []float64{c, c + 1}, z2.Slice())

	z1, z2, err = d.Transform(bcast.Vector([]float64{1, 2}), bcast.Scalar(0))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, z1.Slice())
	assert.Equal(t, []float64{c, 2 * c}, z2.Slice())

	_, _, err = d.Transform(bcast.Vector([]float64{1, 2}), bcast.Vector([]float64{0}))
	assert.True(t, errors.Is(err, numerr.ErrShape))
}

func TestConditionalShortcut(t *testing.T) {
	d, err := New(skewedTable(t), 4)
	require.NoError(t, err)

	ys := []float64{-1, -0.3, 0, 0.4, 1.1}
	for _, v := range []float64{-1, 0, 0.5, 1.5} {
		short, err := d.ConditionalDensity(bcast.Vector(ys), bcast.Scalar(v), WithRepair(false))
		require.NoError(t, err)
		long, err := d.ConditionalDensityByMarginal(bcast.Vector(ys), bcast.Scalar(v))
		require.NoError(t, err)
		require.Equal(t, len(ys), short.Len())
		for k := range ys {
			assert.InDelta(t, long.At(k), short.At(k), 1e-9*(1+abs(long.At(k))), "v=%v y=%v", v, ys[k])
		}
	}

	t.Run("definition", func(t *testing.T) {
		v, y := 0.5, 0.25
		got, err := d.ConditionalDensity(bcast.Scalar(y), bcast.Scalar(v), WithRepair(false))
		require.NoError(t, err)
		a := d.Approximator()
		z2 := d.C()*v + y
		assert.InDelta(t, a.Marginal2().PDF(z2)*a.Ratio(v, z2), got.Float(), 1e-12)
	})
}

type countingObserver struct{ repairs []Repair }

func (c *countingObserver) ObserveRepair(r Repair) { c.repairs = append(c.repairs, r) }

func TestConditionalRepair(t *testing.T) {
	var buf bytes.Buffer
	obs := &countingObserver{}
	d, err := New(skewedTable(t), 4, WithLogger(zerolog.New(&buf).Level(zerolog.WarnLevel)), WithRepairObserver(obs))
	require.NoError(t, err)

	// at v = 0 the truncated series is negative for y = -6 and y = -4
	ys := bcast.Vector([]float64{-6, -4, 0, 2})
	raw, err := d.ConditionalDensity(ys, bcast.Scalar(0), WithRepair(false))
	require.NoError(t, err)
	require.Less(t, raw.At(0), 0.0)
	require.Less(t, raw.At(1), 0.0)
	require.Greater(t, raw.At(2), 0.0)
	require.Greater(t, raw.At(3), 0.0)
	assert.Empty(t, obs.repairs)

	fixed, err := d.ConditionalDensity(ys, bcast.Scalar(0))
	require.NoError(t, err)
	assert.Equal(t, VectorFloor, fixed.At(0))
	assert.Equal(t, VectorFloor, fixed.At(1))
	assert.Equal(t, raw.At(2), fixed.At(2))
	assert.Equal(t, raw.At(3), fixed.At(3))
	require.Len(t, obs.repairs, 1)
	assert.Equal(t, 2, obs.repairs[0].Count)
	assert.Empty(t, buf.String(), "no warning unless requested")

	_, err = d.ConditionalDensity(ys, bcast.Scalar(0), WithWarn(true))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "non-positive densities replaced")
	assert.Contains(t, buf.String(), `"count":2`)

	scalar, err := d.ConditionalDensity(bcast.Scalar(-4), bcast.Scalar(0))
	require.NoError(t, err)
	assert.Equal(t, ScalarFloor, scalar.Float())
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
