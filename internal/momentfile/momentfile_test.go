package momentfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmlongan/jmomden/pkg/jointmom"
)

func TestResolveTable(t *testing.T) {
	f, err := Parse([]byte(`
degree: 1
moments:
  - [0, 0, 1]
  - [0, 0.5]
  - [1]
`))
	require.NoError(t, err)
	m, err := f.Resolve(4, "pearson")
	require.NoError(t, err)
	assert.Equal(t, 1, m.Degree, "document degree wins")
	assert.Equal(t, "pearson", m.Family)
	assert.Equal(t, 1.0, m.Table[0][0])
	assert.Equal(t, 0.0, f.Moments[0][0], "document is not modified")
	assert.NotEmpty(t, m.Hash)

	_, err = f.Resolve(0, "")
	require.NoError(t, err, "degree comes from the document")

	f.Degree = 0
	_, err = f.Resolve(2, "")
	assert.Error(t, err, "table too small for degree 2")
}

func TestResolveNormal(t *testing.T) {
	f, err := Parse([]byte(`
family: normal
normal: {mu1: 0, mu2: 1, s1: 1, s2: 2, rho: 0.5}
`))
	require.NoError(t, err)
	m, err := f.Resolve(2, "pearson")
	require.NoError(t, err)
	assert.Equal(t, "normal", m.Family)
	assert.Equal(t, 4, m.Table.Order())

	want, err := jointmom.BivariateNormal(0, 1, 1, 2, 0.5, 4)
	require.NoError(t, err)
	assert.Equal(t, want, m.Table)
}

func TestResolveMixture(t *testing.T) {
	f, err := Parse([]byte(`
degree: 2
mixture:
  - {weight: 0.25, mu1: 0, mu2: 0, s1: 1, s2: 1, rho: 0}
  - {weight: 0.75, mu1: 1, mu2: -1, s1: 0.5, s2: 2, rho: 0.3}
`))
	require.NoError(t, err)
	m, err := f.Resolve(0, "")
	require.NoError(t, err)
	assert.InDelta(t, 0.75, m.Table[1][0], 1e-12)
	assert.InDelta(t, -0.75, m.Table[0][1], 1e-12)

	f.Mixture[0].Weight = 0.5
	_, err = f.Resolve(0, "")
	assert.Error(t, err, "weights no longer sum to one")
}

func TestParseErrors(t *testing.T) {
	tests := map[string]string{
		"no source":    "degree: 2\n",
		"two sources":  "normal: {s1: 1, s2: 1}\nmoments: [[1]]\n",
		"bad yaml":     "moments: [[1, 2]\n",
		"negative deg": "degree: -1\nnormal: {s1: 1, s2: 1}\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.yaml")
	require.NoError(t, os.WriteFile(path, []byte("normal: {s1: 1, s2: 1}\n"), 0o644))
	f, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, f.Normal)

	_, err = Load(filepath.Join(t.TempDir(), "none.yaml"))
	assert.Error(t, err)
}

func TestHash(t *testing.T) {
	a, err := jointmom.BivariateNormal(0, 0, 1, 1, 0.2, 6)
	require.NoError(t, err)

	h := Hash(a, 2, "pearson")
	assert.Equal(t, h, Hash(a.Clone(), 2, "pearson"))
	assert.NotEqual(t, h, Hash(a, 3, "pearson"))
	assert.NotEqual(t, h, Hash(a, 2, "normal"))

	b := a.Clone()
	b[6][0] = 99
	assert.Equal(t, h, Hash(b, 2, "pearson"), "entries beyond order 2D are ignored")
	b[0][0] = 0
	assert.Equal(t, h, Hash(b, 2, "pearson"), "(0,0) is always 1")
	b[1][1] = 0.3
	assert.NotEqual(t, h, Hash(b, 2, "pearson"))
}
