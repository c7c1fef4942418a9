// Package pearson fits auxiliary marginal densities from raw moments.
//
// The Pearson system covers the normal, beta, gamma, Student-like and
// inverse-beta shapes with a single rule: the log-density derivative is
// the rational function -(a + t) / (b0 + b1 t + b2 t^2) of the standardized
// coordinate t. Its four coefficients follow from the mean, variance,
// skewness and kurtosis.
package pearson

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/integrate/quad"

	"github.com/xmlongan/jmomden/pkg/numerr"
)

// quadrature nodes used to normalize the density
const quadNodes = 512

const eps = 1e-10

// Kind names the member of the Pearson family a fit belongs to.
type Kind string

const (
	KindNormal Kind = "normal"
	KindI      Kind = "I"
	KindII     Kind = "II"
	KindIII    Kind = "III"
	KindIV     Kind = "IV"
	KindV      Kind = "V"
	KindVI     Kind = "VI"
	KindVII    Kind = "VII"
)

// Pearson is a density of the Pearson system.
type Pearson struct {
	mean, sd   float64
	a          float64
	b0, b1, b2 float64
	lo, hi     float64 // support in standardized coordinates
	logZ       float64
}

// Fit returns the Pearson density matching the first four raw moments.
func Fit(moments []float64) (*Pearson, error) {
	if len(moments) < 4 {
		return nil, numerr.Shapef("pearson: need 4 raw moments, got %d", len(moments))
	}
	m1, m2, m3, m4 := moments[0], moments[1], moments[2], moments[3]
	mu2 := m2 - m1*m1
	if !(mu2 > 0) {
		return nil, numerr.Degenerate("pearson: variance", mu2)
	}
	mu3 := m3 - 3*m1*m2 + 2*m1*m1*m1
	mu4 := m4 - 4*m1*m3 + 6*m1*m1*m2 - 3*m1*m1*m1*m1

	sd := math.Sqrt(mu2)
	skew := mu3 / (mu2 * sd)
	beta1 := skew * skew
	beta2 := mu4 / (mu2 * mu2)

	den := 10*beta2 - 12*beta1 - 18
	if math.Abs(den) < eps {
		return nil, numerr.Degenerate("pearson: coefficient denominator", den)
	}
	p := &Pearson{
		mean: m1,
		sd:   sd,
		b0:   (4*beta2 - 3*beta1) / den,
		b1:   skew * (beta2 + 3) / den,
		b2:   (2*beta2 - 3*beta1 - 6) / den,
	}
	p.a = p.b1
	if !(p.b0 > 0) {
		return nil, numerr.Degenerate("pearson: b0", p.b0)
	}
	p.lo, p.hi = p.support()

	z := p.integrate()
	if !(z > 0) || math.IsInf(z, 0) {
		return nil, numerr.Degenerate("pearson: normalizing constant", z)
	}
	p.logZ = math.Log(z)
	return p, nil
}

// PDF returns the density at x.
func (p *Pearson) PDF(x float64) float64 {
	t := (x - p.mean) / p.sd
	if t <= p.lo || t >= p.hi {
		return 0
	}
	return math.Exp(-p.antiderivative(t)-p.logZ) / p.sd
}

// PDFEach returns PDF(xs[i]) for each i.
func (p *Pearson) PDFEach(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = p.PDF(x)
	}
	return out
}

// Mean returns the fitted mean.
func (p *Pearson) Mean() float64 { return p.mean }

// StdDev returns the fitted standard deviation.
func (p *Pearson) StdDev() float64 { return p.sd }

// Support returns the open interval outside which the density is zero.
func (p *Pearson) Support() (lo, hi float64) {
	return p.mean + p.sd*p.lo, p.mean + p.sd*p.hi
}

// Coefficients returns a, b0, b1, b2 in standardized coordinates.
func (p *Pearson) Coefficients() (a, b0, b1, b2 float64) {
	return p.a, p.b0, p.b1, p.b2
}

// Type classifies the fit.
func (p *Pearson) Type() Kind {
	switch {
	case math.Abs(p.b1) < eps && math.Abs(p.b2) < eps:
		return KindNormal
	case math.Abs(p.b2) < eps:
		return KindIII
	case math.Abs(p.b1) < eps && p.b2 > 0:
		return KindVII
	case math.Abs(p.b1) < eps:
		return KindII
	}
	kappa := p.b1 * p.b1 / (4 * p.b0 * p.b2)
	switch {
	case kappa < 0:
		return KindI
	case math.Abs(kappa-1) < 1e-9:
		return KindV
	case kappa < 1:
		return KindIV
	default:
		return KindVI
	}
}

func (p *Pearson) String() string {
	lo, hi := p.Support()
	return fmt.Sprintf("pearson type %s mean=%.6g sd=%.6g support=(%.6g, %.6g)", p.Type(), p.mean, p.sd, lo, hi)
}

// q evaluates the quadratic b0 + b1 t + b2 t^2.
func (p *Pearson) q(t float64) float64 {
	return p.b0 + t*(p.b1+t*p.b2)
}

// support returns the widest interval around 0 on which q > 0.
func (p *Pearson) support() (lo, hi float64) {
	lo, hi = math.Inf(-1), math.Inf(1)
	var roots []float64
	switch {
	case math.Abs(p.b2) < eps && math.Abs(p.b1) < eps:
	case math.Abs(p.b2) < eps:
		roots = []float64{-p.b0 / p.b1}
	default:
		disc := p.b1*p.b1 - 4*p.b2*p.b0
		if disc >= 0 {
			s := math.Sqrt(disc)
			roots = []float64{(-p.b1 - s) / (2 * p.b2), (-p.b1 + s) / (2 * p.b2)}
		}
	}
	for _, r := range roots {
		if r < 0 && r > lo {
			lo = r
		}
		if r > 0 && r < hi {
			hi = r
		}
	}
	return lo, hi
}

// antiderivative returns F(t) = integral from 0 to t of (a + s) / q(s) ds,
// so that the unnormalized density is exp(-F(t)).
func (p *Pearson) antiderivative(t float64) float64 {
	a, b0, b1, b2 := p.a, p.b0, p.b1, p.b2
	switch {
	case math.Abs(b2) < eps && math.Abs(b1) < eps:
		return (a*t + t*t/2) / b0
	case math.Abs(b2) < eps:
		return t/b1 + (a-b0/b1)/b1*math.Log1p(b1*t/b0)
	}

	f := math.Log1p(t*(b1+t*b2)/b0) / (2 * b2)
	k := a - b1/(2*b2)
	disc := b1*b1 - 4*b2*b0
	u := 2*b2*t + b1
	var g float64
	switch {
	case math.Abs(disc) < eps:
		g = 2/b1 - 2/u
	case disc < 0:
		s := math.Sqrt(-disc)
		g = 2 / s * (math.Atan(u/s) - math.Atan(b1/s))
	default:
		s := math.Sqrt(disc)
		g = (math.Log(math.Abs((u-s)/(u+s))) - math.Log(math.Abs((b1-s)/(b1+s)))) / s
	}
	return f + k*g
}

// integrate returns the integral of exp(-F) over the support, mapping
// infinite ends onto a bounded interval first.
func (p *Pearson) integrate() float64 {
	dens := func(t float64) float64 {
		if t <= p.lo || t >= p.hi {
			return 0
		}
		return math.Exp(-p.antiderivative(t))
	}
	loInf, hiInf := math.IsInf(p.lo, -1), math.IsInf(p.hi, 1)
	switch {
	case loInf && hiInf:
		return quad.Fixed(func(s float64) float64 {
			d := 1 - s*s
			return dens(s/d) * (1 + s*s) / (d * d)
		}, -1, 1, quadNodes, quad.Legendre{}, 0)
	case hiInf:
		return quad.Fixed(func(s float64) float64 {
			d := 1 - s
			return dens(p.lo+s/d) / (d * d)
		}, 0, 1, quadNodes, quad.Legendre{}, 0)
	case loInf:
		return quad.Fixed(func(s float64) float64 {
			d := 1 - s
			return dens(p.hi-s/d) / (d * d)
		}, 0, 1, quadNodes, quad.Legendre{}, 0)
	default:
		return quad.Fixed(dens, p.lo, p.hi, quadNodes, quad.Legendre{}, 0)
	}
}
