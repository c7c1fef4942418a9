// Package momentfile reads raw joint-moment tables from YAML documents.
//
// A document either lists the table directly
//
//	degree: 4
//	moments:
//	  - [1, 0, 1, 0, 3]
//	  - [0, 0.5, 0, 1.5]
//	  ...
//
// or describes a bivariate normal, or a mixture of them, whose exact
// moments are generated up to total order 2*degree.
package momentfile

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"gopkg.in/yaml.v3"

	"github.com/xmlongan/jmomden/pkg/jointmom"
)

// Normal describes a bivariate normal distribution
type Normal struct {
	Mu1 float64 `yaml:"mu1" json:"mu1"`
	Mu2 float64 `yaml:"mu2" json:"mu2"`
	S1  float64 `yaml:"s1" json:"s1"`
	S2  float64 `yaml:"s2" json:"s2"`
	Rho float64 `yaml:"rho" json:"rho"`
}

// Component is one weighted mixture component
type Component struct {
	Weight float64 `yaml:"weight" json:"weight"`
	Normal `yaml:",inline"`
}

// File is the document layout, shared by YAML files and JSON requests
type File struct {
	Degree  int         `yaml:"degree" json:"degree,omitempty"`
	Family  string      `yaml:"family" json:"family,omitempty"`
	Moments [][]float64 `yaml:"moments" json:"moments,omitempty"`
	Normal  *Normal     `yaml:"normal" json:"normal,omitempty"`
	Mixture []Component `yaml:"mixture" json:"mixture,omitempty"`
}

// Model is a resolved moment table ready to build a density from
type Model struct {
	Degree int
	Family string
	Table  jointmom.Table
	Hash   string
}

// Load reads and parses the document at path
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read moments file %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("moments file %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes and validates a document
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse moments YAML: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks that exactly one source is given
func (f *File) Validate() error {
	sources := 0
	if len(f.Moments) > 0 {
		sources++
	}
	if f.Normal != nil {
		sources++
	}
	if len(f.Mixture) > 0 {
		sources++
	}
	if sources != 1 {
		return fmt.Errorf("expected exactly one of moments, normal or mixture, found %d", sources)
	}
	if f.Degree < 0 {
		return fmt.Errorf("negative degree %d", f.Degree)
	}
	return nil
}

// Resolve produces the moment table. Degree and family fall back to the
// given defaults when the document leaves them out.
func (f *File) Resolve(degree int, family string) (*Model, error) {
	if f.Degree > 0 {
		degree = f.Degree
	}
	if f.Family != "" {
		family = f.Family
	}
	if degree < 1 {
		return nil, fmt.Errorf("degree must be at least 1, got %d", degree)
	}
	order := 2 * degree

	var (
		tb  jointmom.Table
		err error
	)
	switch {
	case len(f.Moments) > 0:
		tb = jointmom.Table(f.Moments).Clone()
		if len(tb[0]) > 0 {
			tb[0][0] = 1
		}
		err = tb.Validate(order)
	case f.Normal != nil:
		n := f.Normal
		tb, err = jointmom.BivariateNormal(n.Mu1, n.Mu2, n.S1, n.S2, n.Rho, order)
	default:
		weights := make([]float64, len(f.Mixture))
		tables := make([]jointmom.Table, len(f.Mixture))
		for k, c := range f.Mixture {
			weights[k] = c.Weight
			tables[k], err = jointmom.BivariateNormal(c.Mu1, c.Mu2, c.S1, c.S2, c.Rho, order)
			if err != nil {
				return nil, fmt.Errorf("mixture component %d: %w", k, err)
			}
		}
		tb, err = jointmom.Mixture(weights, tables...)
	}
	if err != nil {
		return nil, err
	}

	return &Model{
		Degree: degree,
		Family: family,
		Table:  tb,
		Hash:   Hash(tb, degree, family),
	}, nil
}

// Hash returns a content hash of the part of tb that a degree-D model
// reads, together with the degree and family. The (0,0) entry is hashed as 1.
func Hash(tb jointmom.Table, degree int, family string) string {
	d := xxhash.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(degree))
	d.Write(buf[:])
	d.WriteString(family)

	n := 2 * degree
	for i := 0; i <= n && i < len(tb); i++ {
		for j := 0; j <= n-i && j < len(tb[i]); j++ {
			x := tb[i][j]
			if i == 0 && j == 0 {
				x = 1
			}
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(x))
			d.Write(buf[:])
		}
	}
	return strconv.FormatUint(d.Sum64(), 16)
}
