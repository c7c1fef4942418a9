package service

import (
	"time"

	"github.com/xmlongan/jmomden/internal/persistence"
	"github.com/xmlongan/jmomden/pkg/denorig"
)

// Model is a built density approximation registered under an id
type Model struct {
	ID        string
	Hash      string
	Degree    int
	Family    string
	CreatedAt time.Time

	density *denorig.Density
}

// Density returns the underlying approximation
func (m *Model) Density() *denorig.Density { return m.density }

// Snapshot captures the model inputs and derived quantities
func (m *Model) Snapshot() persistence.Snapshot {
	a := m.density.Approximator()

	n := 2 * m.Degree
	raw := m.density.RawMoments()
	moments := make([][]float64, n+1)
	for i := range moments {
		moments[i] = append([]float64(nil), raw[i][:n-i+1]...)
	}

	t := a.Tensor()
	rows, _ := t.Dims()
	tensor := make([][]float64, rows)
	for i := range tensor {
		tensor[i] = append([]float64(nil), t.RawRowView(i)...)
	}

	return persistence.Snapshot{
		ID:        m.ID,
		Hash:      m.Hash,
		Degree:    m.Degree,
		Family:    m.Family,
		C:         m.density.C(),
		Moments:   moments,
		Basis1:    a.Basis1().Coefficients(),
		Basis2:    a.Basis2().Coefficients(),
		Tensor:    tensor,
		CreatedAt: m.CreatedAt,
	}
}
