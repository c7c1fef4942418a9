package denorig

import (
	"gonum.org/v1/gonum/floats"

	"github.com/xmlongan/jmomden/pkg/bcast"
)

type condOptions struct {
	repair bool
	warn   bool
}

// CondOption configures ConditionalDensity.
type CondOption func(*condOptions)

// WithRepair turns positivity repair on or off. It is on by default.
func WithRepair(on bool) CondOption {
	return func(o *condOptions) { o.repair = on }
}

// WithWarn logs a warning whenever repair changes values. Off by default.
func WithWarn(on bool) CondOption {
	return func(o *condOptions) { o.warn = on }
}

// JointDensity returns the approximate density of (v, y). The transform has
// unit Jacobian so no rescaling is applied. Values may be negative in the
// tails.
func (d *Density) JointDensity(v, y bcast.Value) (bcast.Value, error) {
	z1, z2, err := d.Transform(v, y)
	if err != nil {
		return bcast.Value{}, err
	}
	return d.appr.PseudoDensity(z1, z2)
}

// ConditionalDensity returns the density of y given v. The marginal density
// of v cancels against the w1(z1) factor of the joint density, so only
// w2(z2) times the likelihood ratio is evaluated.
func (d *Density) ConditionalDensity(y, v bcast.Value, opts ...CondOption) (bcast.Value, error) {
	o := condOptions{repair: true}
	for _, opt := range opts {
		opt(&o)
	}
	z1, z2, err := d.Transform(v, y)
	if err != nil {
		return bcast.Value{}, err
	}
	ratio, err := d.appr.LikelihoodRatio(z1, z2)
	if err != nil {
		return bcast.Value{}, err
	}
	den := d.appr.Marginal2().PDFEach(z2.Slice())
	floats.Mul(den, ratio.Slice())

	var out bcast.Value
	if ratio.IsScalar() {
		out = bcast.Scalar(den[0])
	} else {
		out = bcast.Vector(den)
	}
	if !o.repair {
		return out, nil
	}
	out, r, err := MakePositive(out, o.warn, d.logger)
	if err != nil {
		return bcast.Value{}, err
	}
	if r.Count > 0 && d.observer != nil {
		d.observer.ObserveRepair(r)
	}
	return out, nil
}

// ConditionalDensityByMarginal computes the conditional density as the
// joint density divided by w1(z1). It is an alternative to
// ConditionalDensity kept for comparison; it is not used by default and
// returns Inf or NaN where w1 vanishes. No repair is applied.
func (d *Density) ConditionalDensityByMarginal(y, v bcast.Value) (bcast.Value, error) {
	joint, err := d.JointDensity(v, y)
	if err != nil {
		return bcast.Value{}, err
	}
	p, err := bcast.Pair(v, y)
	if err != nil {
		return bcast.Value{}, err
	}
	vs, _ := p.Expand()
	vals := joint.Slice()
	floats.Div(vals, d.appr.Marginal1().PDFEach(vs))
	return p.Result(vals), nil
}
