// Package stats provides the robust statistics shared by every analysis
// stage. All functions are pure; inputs are never mutated.
package stats

import (
	"math"
	"sort"
)

// madToSigma rescales MAD to approximate one standard deviation under
// normality.
const madToSigma = 1.4826

// iqrToSigma rescales the interquartile range the same way.
const iqrToSigma = 1.349

const tinyScale = 1e-9

func Median(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

// Quantile returns the q-quantile (0..1) with linear interpolation.
func Quantile(xs []float64, q float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	if q <= 0 {
		return s[0]
	}
	if q >= 1 {
		return s[len(s)-1]
	}
	pos := q * float64(len(s)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return s[lo]
	}
	frac := pos - float64(lo)
	return s[lo]*(1-frac) + s[hi]*frac
}

type ScaleMethod string

const (
	ScaleMAD   ScaleMethod = "mad"
	ScaleIQR   ScaleMethod = "iqr"
	ScaleFloor ScaleMethod = "floor"
)

// Scale is a robust location/spread estimate for one sample.
type Scale struct {
	Center float64
	Spread float64
	Method ScaleMethod
}

// RobustScale estimates center and spread. MAD degenerates on quantized or
// stepped series (too many ties), so it falls back to IQR, and finally to a
// floor derived from the sample range so a near-zero denominator cannot
// manufacture extreme z-scores.
func RobustScale(xs []float64) Scale {
	center := Median(xs)
	if len(xs) == 0 {
		return Scale{Center: center, Spread: math.NaN(), Method: ScaleFloor}
	}
	dev := make([]float64, len(xs))
	lo, hi := xs[0], xs[0]
	for i, x := range xs {
		dev[i] = math.Abs(x - center)
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	if mad := Median(dev) * madToSigma; mad > tinyScale {
		return Scale{Center: center, Spread: mad, Method: ScaleMAD}
	}
	if iqr := (Quantile(xs, 0.75) - Quantile(xs, 0.25)) / iqrToSigma; iqr > tinyScale {
		return Scale{Center: center, Spread: iqr, Method: ScaleIQR}
	}
	floor := math.Max(tinyScale, 0.01*(hi-lo))
	return Scale{Center: center, Spread: floor, Method: ScaleFloor}
}

func (s Scale) Z(x float64) float64 {
	if s.Spread <= 0 || math.IsNaN(s.Spread) {
		return 0
	}
	return (x - s.Center) / s.Spread
}

func ZScores(xs []float64, s Scale) []float64 {
	zs := make([]float64, len(xs))
	for i, x := range xs {
		zs[i] = s.Z(x)
	}
	return zs
}

// RanksAverage assigns 1-based ranks with ties receiving the average of the
// positions they span.
func RanksAverage(xs []float64) []float64 {
	n := len(xs)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })
	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && xs[idx[j+1]] == xs[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}
	return ranks
}

// Pearson computes r via one-pass sums. Returns 0 when either side has zero
// variance.
func Pearson(x, y []float64) float64 {
	n := len(x)
	if n == 0 || n != len(y) {
		return 0
	}
	var sx, sy, sxx, syy, sxy float64
	for i := 0; i < n; i++ {
		sx += x[i]
		sy += y[i]
		sxx += x[i] * x[i]
		syy += y[i] * y[i]
		sxy += x[i] * y[i]
	}
	fn := float64(n)
	cov := sxy - sx*sy/fn
	vx := sxx - sx*sx/fn
	vy := syy - sy*sy/fn
	if vx <= 0 || vy <= 0 {
		return 0
	}
	r := cov / math.Sqrt(vx*vy)
	if r > 1 {
		r = 1
	}
	if r < -1 {
		r = -1
	}
	return r
}

// Spearman is the Pearson correlation of average-tie ranks.
func Spearman(x, y []float64) float64 {
	if len(x) != len(y) || len(x) == 0 {
		return 0
	}
	return Pearson(RanksAverage(x), RanksAverage(y))
}

// Lag1Autocorr estimates first-order serial correlation, used to shrink the
// effective sample size of correlation tests.
func Lag1Autocorr(xs []float64) float64 {
	n := len(xs)
	if n < 3 {
		return 0
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(n)
	var num, den float64
	for i := 0; i < n; i++ {
		d := xs[i] - mean
		den += d * d
		if i > 0 {
			num += d * (xs[i-1] - mean)
		}
	}
	if den <= 0 {
		return 0
	}
	r := num / den
	if r > 1 {
		r = 1
	}
	if r < -1 {
		r = -1
	}
	return r
}

// EffectiveSampleSize shrinks n for serially correlated pairs
// (Pyper-Peterman first-order form). Result is clamped to [4, n]: the
// Fisher-z p-value degenerates to 1 below n=4, and shrinkage must stay a
// penalty, never an automatic verdict.
func EffectiveSampleSize(n int, r1x, r1y float64) int {
	if n <= 4 {
		return n
	}
	prod := r1x * r1y
	if prod <= 0 {
		return n
	}
	neff := float64(n) * (1 - prod) / (1 + prod)
	if neff < 4 {
		neff = 4
	}
	if neff > float64(n) {
		neff = float64(n)
	}
	return int(math.Floor(neff))
}
