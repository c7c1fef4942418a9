// Package report prints the inputs and intermediate results of a density
// approximation as aligned text tables.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"gonum.org/v1/gonum/mat"

	"github.com/xmlongan/jmomden/pkg/denappr"
	"github.com/xmlongan/jmomden/pkg/denorig"
	"github.com/xmlongan/jmomden/pkg/gramschmidt"
	"github.com/xmlongan/jmomden/pkg/jointmom"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
}

func num(x float64) string {
	return strconv.FormatFloat(x, 'g', 8, 64)
}

func header(tw *tabwriter.Writer, first string, n int, label string) {
	cols := []string{first}
	for j := 0; j < n; j++ {
		cols = append(cols, fmt.Sprintf("%s%d", label, j))
	}
	fmt.Fprintln(tw, strings.Join(cols, "\t")+"\t")
}

// Moments prints E[v^i y^j] for total order up to 2*degree.
func Moments(w io.Writer, jmom jointmom.Table, degree int) error {
	n := 2 * degree
	if err := jmom.Validate(n); err != nil {
		return err
	}
	fmt.Fprintf(w, "Raw joint moments E[v^i y^j], total order <= %d\n", n)
	tw := newTable(w)
	header(tw, "i\\j", n+1, "")
	for i := 0; i <= n; i++ {
		fmt.Fprintf(tw, "%d\t", i)
		for j := 0; j <= n-i; j++ {
			fmt.Fprintf(tw, "%s\t", num(jmom[i][j]))
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

// Transformed prints the decorrelation coefficient and the moments of the
// transformed pair handed to the approximator.
func Transformed(w io.Writer, d *denorig.Density) error {
	mu1, mu2, joint := d.Approximator().Moments()
	fmt.Fprintf(w, "Decorrelation z2 = c v + y, c = %s\n", num(d.C()))

	tw := newTable(w)
	fmt.Fprintln(tw, "k\tE[z1^k]\tE[z2^k]\t")
	for k := range mu1 {
		fmt.Fprintf(tw, "%d\t%s\t%s\t\n", k+1, num(mu1[k]), num(mu2[k]))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w, "Joint moments E[z1^r z2^s]")
	tw = newTable(w)
	header(tw, "r\\s", len(joint), "")
	for r, row := range joint {
		fmt.Fprintf(tw, "%d\t", r)
		for _, x := range row {
			fmt.Fprintf(tw, "%s\t", num(x))
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

// Basis prints the coefficients of both orthonormal bases, lowest power
// first.
func Basis(w io.Writer, a *denappr.Approximator) error {
	for i, b := range []gramschmidt.Basis{a.Basis1(), a.Basis2()} {
		fmt.Fprintf(w, "Orthonormal basis for z%d\n", i+1)
		tw := newTable(w)
		header(tw, "poly", b.Degree()+1, "x^")
		for k := 0; k < b.Len(); k++ {
			fmt.Fprintf(tw, "b%d\t", k)
			for _, c := range b.At(k).Coef() {
				fmt.Fprintf(tw, "%s\t", num(c))
			}
			fmt.Fprintln(tw)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// Tensor prints the correction tensor.
func Tensor(w io.Writer, a *denappr.Approximator) error {
	fmt.Fprintln(w, "Correction tensor T[i][j] = E[b_i(z1) b_j(z2)]")
	return matrix(w, a.Tensor(), "i\\j")
}

func matrix(w io.Writer, m mat.Matrix, corner string) error {
	r, c := m.Dims()
	tw := newTable(w)
	header(tw, corner, c, "")
	for i := 0; i < r; i++ {
		fmt.Fprintf(tw, "%d\t", i)
		for j := 0; j < c; j++ {
			fmt.Fprintf(tw, "%s\t", num(m.At(i, j)))
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

// Marginals prints the auxiliary marginal densities when they describe
// themselves.
func Marginals(w io.Writer, a *denappr.Approximator) error {
	for i, m := range []denappr.Marginal{a.Marginal1(), a.Marginal2()} {
		desc := "(no description)"
		if s, ok := m.(fmt.Stringer); ok {
			desc = s.String()
		}
		if _, err := fmt.Fprintf(w, "Auxiliary density w%d: %s\n", i+1, desc); err != nil {
			return err
		}
	}
	return nil
}

// All prints every section for d, separated by blank lines.
func All(w io.Writer, d *denorig.Density) error {
	a := d.Approximator()
	sections := []func() error{
		func() error { return Moments(w, d.RawMoments(), d.Degree()) },
		func() error { return Transformed(w, d) },
		func() error { return Marginals(w, a) },
		func() error { return Basis(w, a) },
		func() error { return Tensor(w, a) },
	}
	for i, s := range sections {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if err := s(); err != nil {
			return err
		}
	}
	return nil
}
