// Package denorig approximates the joint and conditional densities of two
// correlated variables (v, y) from their raw joint moments.
//
// The pair is first decorrelated by the unit-Jacobian map
//
//	(z1, z2) = (v, c v + y),  c = -Cov(v, y) / Var(v),
//
// the raw moments are carried over to (z1, z2) by binomial expansion, and
// the density of (z1, z2) is approximated with package denappr.
package denorig

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat/combin"

	"github.com/xmlongan/jmomden/pkg/bcast"
	"github.com/xmlongan/jmomden/pkg/denappr"
	"github.com/xmlongan/jmomden/pkg/jointmom"
	"github.com/xmlongan/jmomden/pkg/numerr"
)

// DefaultDegree is the expansion degree used when callers have no preference.
const DefaultDegree = 4

// RepairObserver is notified whenever positivity repair changes values.
type RepairObserver interface {
	ObserveRepair(r Repair)
}

type options struct {
	apprOpts []denappr.Option
	logger   zerolog.Logger
	observer RepairObserver
}

// Option configures New.
type Option func(*options)

// WithApproximatorOptions forwards options to denappr.New.
func WithApproximatorOptions(opts ...denappr.Option) Option {
	return func(o *options) { o.apprOpts = append(o.apprOpts, opts...) }
}

// WithLogger sets the logger for construction and repair diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRepairObserver registers an observer for positivity repairs.
func WithRepairObserver(obs RepairObserver) Option {
	return func(o *options) { o.observer = obs }
}

// Density is the density approximation in the original coordinates.
type Density struct {
	jmom     jointmom.Table
	degree   int
	c        float64
	appr     *denappr.Approximator
	logger   zerolog.Logger
	observer RepairObserver
}

// New builds the approximation from jmom[i][j] = E[v^i y^j] for total order
// up to 2*degree. jmom[0][0] is taken to be 1 whatever it holds.
func New(jmom [][]float64, degree int, opts ...Option) (*Density, error) {
	o := options{logger: log.Logger}
	for _, opt := range opts {
		opt(&o)
	}
	if degree < 1 {
		return nil, fmt.Errorf("denorig: degree must be at least 1, got %d", degree)
	}
	if len(jmom) == 0 {
		return nil, numerr.Shapef("denorig: empty moment table")
	}
	tb := jointmom.Table(jmom).Clone()
	if len(tb[0]) > 0 {
		tb[0][0] = 1
	}
	if err := tb.Validate(2 * degree); err != nil {
		return nil, fmt.Errorf("denorig: %w", err)
	}

	c, err := DecorrelationCoefficient(tb)
	if err != nil {
		return nil, err
	}

	n := 2 * degree
	mu1 := make([]float64, n)
	mu2 := make([]float64, n)
	for k := 1; k <= n; k++ {
		mu1[k-1] = TransformedMoment(k, 0, tb, c)
		mu2[k-1] = TransformedMoment(0, k, tb, c)
	}
	joint := make([][]float64, degree+1)
	for r := range joint {
		joint[r] = make([]float64, degree+1)
		for s := range joint[r] {
			joint[r][s] = TransformedMoment(r, s, tb, c)
		}
	}

	appr, err := denappr.New(mu1, mu2, joint, degree, append([]denappr.Option{denappr.WithLogger(o.logger)}, o.apprOpts...)...)
	if err != nil {
		return nil, fmt.Errorf("denorig: %w", err)
	}
	o.logger.Debug().Int("degree", degree).Float64("c", c).Msg("density approximation ready")

	return &Density{
		jmom:     tb,
		degree:   degree,
		c:        c,
		appr:     appr,
		logger:   o.logger,
		observer: o.observer,
	}, nil
}

// DecorrelationCoefficient returns c = -Cov(v, y) / Var(v), which makes
// c v + y uncorrelated with v.
func DecorrelationCoefficient(jmom [][]float64) (float64, error) {
	m1, m2 := jmom[1][0], jmom[0][1]
	cov := jmom[1][1] - m1*m2
	v := jmom[2][0] - m1*m1
	if !(v > 0) {
		return 0, numerr.Degenerate("denorig: variance of first variable", v)
	}
	return -cov / v, nil
}

// TransformedMoment returns E[z1^n z2^m] for z1 = v, z2 = c v + y:
//
//	sum_{i=0}^{m} C(m, i) c^i E[v^(n+i) y^(m-i)].
func TransformedMoment(n, m int, jmom [][]float64, c float64) float64 {
	var f float64
	ci := 1.0
	for i := 0; i <= m; i++ {
		f += float64(combin.Binomial(m, i)) * ci * jmom[n+i][m-i]
		ci *= c
	}
	return f
}

// Degree returns the expansion degree.
func (d *Density) Degree() int { return d.degree }

// C returns the decorrelation coefficient.
func (d *Density) C() float64 { return d.c }

// Approximator returns the approximation in transformed coordinates.
func (d *Density) Approximator() *denappr.Approximator { return d.appr }

// RawMoments returns a copy of the original moment table.
func (d *Density) RawMoments() jointmom.Table { return d.jmom.Clone() }

// Transform maps (v, y) to (z1, z2) = (v, c v + y). z1 keeps the shape of v;
// z2 takes the broadcast shape of the pair.
func (d *Density) Transform(v, y bcast.Value) (z1, z2 bcast.Value, err error) {
	p, err := bcast.Pair(v, y)
	if err != nil {
		return bcast.Value{}, bcast.Value{}, err
	}
	vs, ys := p.Expand()
	for k := range ys {
		ys[k] += d.c * vs[k]
	}
	return v, p.Result(ys), nil
}
