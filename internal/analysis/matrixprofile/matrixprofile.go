// Package matrixprofile computes the self-join nearest-neighbor distance
// profile of one series: motifs are windows with unusually close neighbors,
// anomalies are windows with no close neighbor anywhere.
package matrixprofile

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/domain/entity"
)

type Options struct {
	Window        int
	ExclusionZone int
	TopK          int
	MaxPoints     int
	MinSeparation int
}

func (o Options) withDefaults() Options {
	if o.ExclusionZone <= 0 {
		o.ExclusionZone = o.Window / 2
	}
	if o.TopK <= 0 {
		o.TopK = 3
	}
	if o.MinSeparation <= 0 {
		o.MinSeparation = o.Window
	}
	return o
}

// noNeighbor marks a window with no valid neighbor outside the exclusion
// zone. Kept finite so result payloads stay JSON-encodable.
const noNeighbor = -1.0

const cancelCheckEvery = 32

// Compute z-normalizes every length-m window and finds each window's nearest
// non-trivial neighbor via dist = sqrt(2m(1-corr)). Windows overlapping a
// gap are invalid: profile -1, index -1, excluded from motifs and anomalies.
func Compute(ctx context.Context, s *entity.Series, opts Options, progress func(done, total int)) (*entity.MatrixProfileResult, error) {
	opts = opts.withDefaults()
	m := opts.Window

	vals, valid, stride := prepare(s, opts.MaxPoints)
	n := len(vals)
	res := &entity.MatrixProfileResult{
		SensorID:      s.SensorID,
		WindowLen:     m,
		ExclusionZone: opts.ExclusionZone,
		Downsampled:   stride > 1,
		Stride:        stride,
	}
	nw := n - m + 1
	if nw < 2 {
		return res, nil
	}

	mean, std, winValid := windowStats(vals, valid, m)

	profile := make([]float64, nw)
	index := make([]int, nw)
	for i := range profile {
		profile[i] = noNeighbor
		index[i] = -1
	}

	update := func(i, j int, d float64) {
		if profile[i] == noNeighbor || d < profile[i] {
			profile[i] = d
			index[i] = j
		}
	}

	totalDiags := nw - 1 - opts.ExclusionZone
	done := 0
	fm := float64(m)
	maxDist := math.Sqrt(4 * fm)

	for k := opts.ExclusionZone + 1; k < nw; k++ {
		if done%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		// Running dot product along the diagonal: one multiply in, one out
		// per step.
		dot := 0.0
		for t := 0; t < m; t++ {
			dot += vals[t] * vals[t+k]
		}
		for i := 0; ; i++ {
			j := i + k
			if j >= nw {
				break
			}
			if i > 0 {
				dot += vals[i+m-1]*vals[j+m-1] - vals[i-1]*vals[j-1]
			}
			if !winValid[i] || !winValid[j] {
				continue
			}
			d := znormDist(dot, mean[i], mean[j], std[i], std[j], fm, maxDist)
			update(i, j, d)
			update(j, i, d)
		}
		done++
		if progress != nil {
			progress(done, totalDiags)
		}
	}

	res.Profile = profile
	res.ProfileIndex = index
	res.Motifs = pick(profile, index, winValid, opts, false, windowTs(s, stride))
	res.Anomalies = pick(profile, index, winValid, opts, true, windowTs(s, stride))
	return res, nil
}

// znormDist is the z-normalized Euclidean distance via the correlation
// identity. Z-normalization is undefined at zero variance, so near-constant
// windows take a heuristic value: two flats match perfectly, a flat against
// anything else is maximally far.
func znormDist(dot, mi, mj, si, sj, m, maxDist float64) float64 {
	const eps = 1e-10
	flatI, flatJ := si < eps, sj < eps
	if flatI && flatJ {
		return 0
	}
	if flatI || flatJ {
		return maxDist
	}
	corr := (dot - m*mi*mj) / (m * si * sj)
	if corr > 1 {
		corr = 1
	}
	if corr < -1 {
		corr = -1
	}
	return math.Sqrt(2 * m * (1 - corr))
}

// prepare extracts per-bucket values (gaps marked invalid), downsampling by
// block mean when the series exceeds the point budget.
func prepare(s *entity.Series, maxPoints int) ([]float64, []bool, int) {
	n := s.Len()
	stride := 1
	if maxPoints > 0 && n > maxPoints {
		stride = (n + maxPoints - 1) / maxPoints
	}
	out := make([]float64, 0, n/stride+1)
	valid := make([]bool, 0, n/stride+1)
	for i := 0; i < n; i += stride {
		sum, cnt := 0.0, 0
		for j := i; j < i+stride && j < n; j++ {
			if v := s.Buckets[j].Value; v != nil {
				sum += *v
				cnt++
			}
		}
		if cnt > 0 {
			out = append(out, sum/float64(cnt))
			valid = append(valid, true)
		} else {
			out = append(out, 0)
			valid = append(valid, false)
		}
	}
	return out, valid, stride
}

func windowStats(vals []float64, valid []bool, m int) (mean, std []float64, winValid []bool) {
	n := len(vals)
	nw := n - m + 1
	mean = make([]float64, nw)
	std = make([]float64, nw)
	winValid = make([]bool, nw)

	cum := make([]float64, n+1)
	cum2 := make([]float64, n+1)
	badCum := make([]int, n+1)
	for i, v := range vals {
		cum[i+1] = cum[i] + v
		cum2[i+1] = cum2[i] + v*v
		bad := 0
		if !valid[i] {
			bad = 1
		}
		badCum[i+1] = badCum[i] + bad
	}
	fm := float64(m)
	for i := 0; i < nw; i++ {
		winValid[i] = badCum[i+m]-badCum[i] == 0
		mu := (cum[i+m] - cum[i]) / fm
		va := (cum2[i+m]-cum2[i])/fm - mu*mu
		if va < 0 {
			va = 0
		}
		mean[i] = mu
		std[i] = math.Sqrt(va)
	}
	return mean, std, winValid
}

func windowTs(s *entity.Series, stride int) func(i int) time.Time {
	if s.Len() == 0 {
		return func(int) time.Time { return time.Time{} }
	}
	start := s.Buckets[0].Start
	step := time.Duration(stride) * s.Interval
	return func(i int) time.Time { return start.Add(time.Duration(i) * step) }
}

// pick selects top-k windows by profile distance with a minimum index
// separation, so one dominant region cannot fill the whole list with
// overlapping windows.
func pick(profile []float64, index []int, winValid []bool, opts Options, largest bool, ts func(int) time.Time) []entity.ProfileMatch {
	order := make([]int, 0, len(profile))
	for i := range profile {
		if winValid[i] && index[i] >= 0 {
			order = append(order, i)
		}
	}
	sort.Slice(order, func(a, b int) bool {
		if largest {
			return profile[order[a]] > profile[order[b]]
		}
		return profile[order[a]] < profile[order[b]]
	})

	var out []entity.ProfileMatch
	for _, i := range order {
		if len(out) >= opts.TopK {
			break
		}
		tooClose := false
		for _, p := range out {
			if absInt(p.Index-i) < opts.MinSeparation {
				tooClose = true
				break
			}
		}
		if tooClose {
			continue
		}
		out = append(out, entity.ProfileMatch{
			Index:         i,
			NeighborIndex: index[i],
			Distance:      profile[i],
			Ts:            ts(i),
		})
	}
	return out
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
