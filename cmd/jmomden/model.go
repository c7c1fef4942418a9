package main

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/xmlongan/jmomden/internal/momentfile"
	"github.com/xmlongan/jmomden/pkg/denappr"
	"github.com/xmlongan/jmomden/pkg/denorig"
)

// modelFlags select the moments file and approximation settings
type modelFlags struct {
	moments string
	degree  int
	family  string
}

func (m *modelFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&m.moments, "moments", "m", "", "Moments file (YAML or JSON)")
	fs.IntVarP(&m.degree, "degree", "d", 0, "Approximation degree (overrides the file and config)")
	fs.StringVar(&m.family, "family", "", "Marginal family (pearson|normal)")
}

// resolve reads the moments file. Flags win over the file, which wins over
// the configuration.
func (c *cli) resolve(m *modelFlags) (*momentfile.Model, error) {
	path := m.moments
	if path == "" {
		path = c.cfg.Model.MomentsFile
	}
	if path == "" {
		return nil, errors.New("no moments file: pass --moments or set model.moments_file")
	}
	f, err := momentfile.Load(path)
	if err != nil {
		return nil, err
	}
	if m.degree > 0 {
		f.Degree = m.degree
	}
	if m.family != "" {
		f.Family = m.family
	}
	return f.Resolve(c.cfg.Model.Degree, c.cfg.Model.Family)
}

// density builds the approximation described by the model flags
func (c *cli) density(m *modelFlags) (*denorig.Density, error) {
	model, err := c.resolve(m)
	if err != nil {
		return nil, err
	}
	log.Debug().
		Int("degree", model.Degree).
		Str("family", model.Family).
		Str("hash", model.Hash).
		Msg("building density")

	d, err := denorig.New(model.Table, model.Degree,
		denorig.WithLogger(log.Logger),
		denorig.WithApproximatorOptions(
			denappr.WithFitter(denappr.FamilyFitter(model.Family)),
			denappr.WithLogger(log.Logger),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build density: %w", err)
	}
	return d, nil
}
