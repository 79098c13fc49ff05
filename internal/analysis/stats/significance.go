package stats

import (
	"math"
	"sort"
)

// The p-values below are asymptotic approximations and assume independent
// samples. Callers pass a shrunk effective n and must surface the caveat; do
// not present these as exact tests.

// PearsonPValue is the two-sided Fisher-z normal approximation.
func PearsonPValue(r float64, n int) float64 {
	if n < 4 {
		return 1
	}
	ar := math.Abs(r)
	if ar >= 1 {
		return 0
	}
	z := math.Atanh(ar) * math.Sqrt(float64(n-3))
	return 2 * normSF(z)
}

// SpearmanPValue uses the t = rho*sqrt((n-2)/(1-rho^2)) approximation with a
// normal tail.
func SpearmanPValue(rho float64, n int) float64 {
	if n < 4 {
		return 1
	}
	ar := math.Abs(rho)
	if ar >= 1 {
		return 0
	}
	t := ar * math.Sqrt(float64(n-2)/(1-ar*ar))
	return 2 * normSF(t)
}

// normSF is the standard normal survival function P(Z > x).
func normSF(x float64) float64 {
	return 0.5 * math.Erfc(x/math.Sqrt2)
}

// BenjaminiHochberg converts raw p-values into FDR q-values across one
// matrix run, preserving input order. q[i] is the smallest FDR level at
// which cell i would be accepted.
func BenjaminiHochberg(ps []float64) []float64 {
	n := len(ps)
	qs := make([]float64, n)
	if n == 0 {
		return qs
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return ps[idx[a]] < ps[idx[b]] })
	minQ := 1.0
	for k := n - 1; k >= 0; k-- {
		q := ps[idx[k]] * float64(n) / float64(k+1)
		if q < minQ {
			minQ = q
		}
		if minQ > 1 {
			minQ = 1
		}
		qs[idx[k]] = minQ
	}
	return qs
}
