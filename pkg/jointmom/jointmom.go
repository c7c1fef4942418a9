// Package jointmom produces raw joint moment tables for reference
// distributions. A Table t holds t[i][j] = E[X^i Y^j] for i + j <= order.
package jointmom

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/combin"

	"github.com/xmlongan/jmomden/pkg/numerr"
)

// Table is a triangular table of raw joint moments.
type Table [][]float64

// Order returns the highest total order the table covers.
func (t Table) Order() int { return len(t) - 1 }

// At returns E[X^i Y^j].
func (t Table) At(i, j int) float64 { return t[i][j] }

// Validate checks that t covers total order n and that t[0][0] is 1.
func (t Table) Validate(n int) error {
	if len(t) < n+1 {
		return numerr.Shapef("jointmom: table has %d rows, order %d needs %d", len(t), n, n+1)
	}
	for i := 0; i <= n; i++ {
		if len(t[i]) < n-i+1 {
			return numerr.Shapef("jointmom: row %d has %d entries, order %d needs %d", i, len(t[i]), n, n-i+1)
		}
	}
	if t[0][0] != 1 {
		return numerr.Shapef("jointmom: E[X^0 Y^0] is %g, want 1", t[0][0])
	}
	return nil
}

// Marginal1 returns E[X^k] for k = 1..n.
func (t Table) Marginal1(n int) []float64 {
	out := make([]float64, n)
	for k := 1; k <= n; k++ {
		out[k-1] = t[k][0]
	}
	return out
}

// Marginal2 returns E[Y^k] for k = 1..n.
func (t Table) Marginal2(n int) []float64 {
	out := make([]float64, n)
	for k := 1; k <= n; k++ {
		out[k-1] = t[0][k]
	}
	return out
}

// Clone returns a deep copy.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	for i, row := range t {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

// NormalMoments returns E[X^k], k = 1..n, for X ~ N(mu, sigma^2).
func NormalMoments(mu, sigma float64, n int) []float64 {
	out := make([]float64, n)
	for k := 1; k <= n; k++ {
		var s float64
		for a := 0; a <= k; a++ {
			s += float64(combin.Binomial(k, a)) * math.Pow(mu, float64(k-a)) * centralNormal(sigma, a)
		}
		out[k-1] = s
	}
	return out
}

// BivariateNormal returns the raw joint moments up to the given total order
// of a bivariate normal with means mu1, mu2, standard deviations s1, s2 and
// correlation rho.
func BivariateNormal(mu1, mu2, s1, s2, rho float64, order int) (Table, error) {
	if order < 0 {
		return nil, fmt.Errorf("jointmom: negative order %d", order)
	}
	if !(s1 > 0) || !(s2 > 0) {
		return nil, fmt.Errorf("jointmom: standard deviations must be positive, got %g and %g", s1, s2)
	}
	if math.Abs(rho) > 1 {
		return nil, fmt.Errorf("jointmom: correlation %g outside [-1, 1]", rho)
	}

	// V = beta U + W with W independent of U
	beta := rho * s2 / s1
	sw := s2 * math.Sqrt(1-rho*rho)
	central := func(a, b int) float64 {
		var s float64
		for k := 0; k <= b; k++ {
			s += float64(combin.Binomial(b, k)) * math.Pow(beta, float64(k)) *
				centralNormal(s1, a+k) * centralNormal(sw, b-k)
		}
		return s
	}

	t := make(Table, order+1)
	for i := 0; i <= order; i++ {
		t[i] = make([]float64, order-i+1)
		for j := 0; j <= order-i; j++ {
			var s float64
			for a := 0; a <= i; a++ {
				for b := 0; b <= j; b++ {
					s += float64(combin.Binomial(i, a)*combin.Binomial(j, b)) *
						math.Pow(mu1, float64(i-a)) * math.Pow(mu2, float64(j-b)) * central(a, b)
				}
			}
			t[i][j] = s
		}
	}
	t[0][0] = 1
	return t, nil
}

// Independent returns the table of two independent variables with raw
// moments m1 and m2 (orders 1..n each). The table order is the shorter length.
func Independent(m1, m2 []float64) Table {
	n := len(m1)
	if len(m2) < n {
		n = len(m2)
	}
	raw := func(m []float64, k int) float64 {
		if k == 0 {
			return 1
		}
		return m[k-1]
	}
	t := make(Table, n+1)
	for i := 0; i <= n; i++ {
		t[i] = make([]float64, n-i+1)
		for j := 0; j <= n-i; j++ {
			t[i][j] = raw(m1, i) * raw(m2, j)
		}
	}
	return t
}

// Mixture returns the moments of the mixture sum_k weights[k] tables[k].
// Weights must be non-negative and sum to one; tables must share an order.
func Mixture(weights []float64, tables ...Table) (Table, error) {
	if len(weights) != len(tables) || len(tables) == 0 {
		return nil, numerr.Shapef("jointmom: %d weights for %d tables", len(weights), len(tables))
	}
	var total float64
	for _, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("jointmom: negative mixture weight %g", w)
		}
		total += w
	}
	if math.Abs(total-1) > 1e-9 {
		return nil, fmt.Errorf("jointmom: mixture weights sum to %g", total)
	}
	order := tables[0].Order()
	for k, tb := range tables {
		if err := tb.Validate(order); err != nil {
			return nil, fmt.Errorf("jointmom: mixture component %d: %w", k, err)
		}
	}
	out := make(Table, order+1)
	for i := 0; i <= order; i++ {
		out[i] = make([]float64, order-i+1)
		for j := range out[i] {
			for k, tb := range tables {
				out[i][j] += weights[k] * tb[i][j]
			}
		}
	}
	out[0][0] = 1
	return out, nil
}

// centralNormal returns E[Z^k] for Z ~ N(0, sigma^2).
func centralNormal(sigma float64, k int) float64 {
	if k%2 == 1 {
		return 0
	}
	v := 1.0
	for j := k - 1; j > 0; j -= 2 {
		v *= float64(j)
	}
	return v * math.Pow(sigma, float64(k))
}
