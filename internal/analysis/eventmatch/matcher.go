// Package eventmatch aligns two sensors' event streams across a bounded set
// of lags and scores how well they move together.
package eventmatch

import (
	"math"
	"sort"
	"time"

	"github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/analysis/stats"
	"github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/domain/entity"
)

type Options struct {
	ToleranceBuckets  int
	MaxLagBuckets     int
	MinOverlap        int
	ZCap              float64
	EpisodeGapBuckets int
}

func (o Options) withDefaults() Options {
	if o.ToleranceBuckets <= 0 {
		o.ToleranceBuckets = 2
	}
	if o.MinOverlap <= 0 {
		o.MinOverlap = 3
	}
	if o.ZCap <= 0 {
		// Weight cap: one extreme event must not dominate F1.
		o.ZCap = 5
	}
	if o.EpisodeGapBuckets <= 0 {
		o.EpisodeGapBuckets = 30
	}
	return o
}

// ambiguityRatio: lags scoring within this fraction of the best are close
// enough that the top-3 list is worth reporting.
const ambiguityRatio = 0.9

type pair struct {
	f, c  int
	dt    time.Duration
	score float64
}

// Match searches lags and returns the best one-to-one alignment. A positive
// best lag means the candidate's events trail the focus's by that many
// seconds.
func Match(focus, cand []entity.SensorEvent, interval time.Duration, opts Options) *entity.EventMatchResult {
	opts = opts.withDefaults()
	res := &entity.EventMatchResult{Direction: entity.MatchUnknown}
	if len(focus) > 0 {
		res.FocusID = focus[0].SensorID
	}
	if len(cand) > 0 {
		res.CandidateID = cand[0].SensorID
	}
	if len(focus) == 0 || len(cand) == 0 {
		res.Reason = entity.ReasonInsufficientOverlap
		return res
	}

	type lagResult struct {
		lag     int
		f1      float64
		overlap int
		meanDt  time.Duration
		pairs   []pair
	}
	var valid []lagResult
	for lag := -opts.MaxLagBuckets; lag <= opts.MaxLagBuckets; lag++ {
		pairs := alignOneToOne(focus, cand, time.Duration(lag)*interval, time.Duration(opts.ToleranceBuckets)*interval, opts.ZCap)
		if len(pairs) < opts.MinOverlap {
			continue
		}
		valid = append(valid, lagResult{
			lag:     lag,
			f1:      weightedF1(focus, cand, pairs, opts.ZCap),
			overlap: len(pairs),
			meanDt:  meanOffset(pairs),
			pairs:   pairs,
		})
	}
	if len(valid) == 0 {
		res.Reason = entity.ReasonInsufficientOverlap
		return res
	}

	// Every lag within tolerance of the true offset matches the same pairs
	// and ties on F1, so ties break on alignment tightness first. Preferring
	// the smaller |lag| outright would collapse any true lag below the
	// tolerance to zero.
	sort.Slice(valid, func(a, b int) bool {
		if valid[a].f1 != valid[b].f1 {
			return valid[a].f1 > valid[b].f1
		}
		if valid[a].meanDt != valid[b].meanDt {
			return valid[a].meanDt < valid[b].meanDt
		}
		return absInt(valid[a].lag) < absInt(valid[b].lag)
	})
	best := valid[0]

	res.BestLagSec = best.lag * int(interval.Seconds())
	res.Overlap = best.overlap
	res.F1 = best.f1

	if len(valid) > 1 && valid[1].f1 >= ambiguityRatio*best.f1 {
		for i := 0; i < len(valid) && i < 3; i++ {
			res.TopLags = append(res.TopLags, entity.LagScore{
				LagSec:  valid[i].lag * int(interval.Seconds()),
				F1:      valid[i].f1,
				Overlap: valid[i].overlap,
			})
		}
	}

	res.Direction = directionality(focus, cand, best.pairs)
	res.Episodes = episodes(focus, cand, best.pairs, res.BestLagSec, interval, opts)
	return res
}

// alignOneToOne greedily matches nearest pairs within the tolerance window.
// Each event on either side matches at most once, so duplicate matches
// cannot inflate overlap.
func alignOneToOne(focus, cand []entity.SensorEvent, lag, tol time.Duration, zCap float64) []pair {
	var all []pair
	for fi := range focus {
		want := focus[fi].BucketTs.Add(lag)
		for ci := range cand {
			dt := cand[ci].BucketTs.Sub(want)
			if dt < 0 {
				dt = -dt
			}
			if dt > tol {
				continue
			}
			all = append(all, pair{
				f:     fi,
				c:     ci,
				dt:    dt,
				score: math.Min(capz(focus[fi].MagnitudeZ, zCap), capz(cand[ci].MagnitudeZ, zCap)),
			})
		}
	}
	sort.Slice(all, func(a, b int) bool {
		if all[a].dt != all[b].dt {
			return all[a].dt < all[b].dt
		}
		return all[a].score > all[b].score
	})
	usedF := make(map[int]bool, len(focus))
	usedC := make(map[int]bool, len(cand))
	var out []pair
	for _, p := range all {
		if usedF[p.f] || usedC[p.c] {
			continue
		}
		usedF[p.f] = true
		usedC[p.c] = true
		out = append(out, p)
	}
	return out
}

func weightedF1(focus, cand []entity.SensorEvent, pairs []pair, zCap float64) float64 {
	var wfAll, wcAll, wfHit, wcHit float64
	for _, e := range focus {
		wfAll += capz(e.MagnitudeZ, zCap)
	}
	for _, e := range cand {
		wcAll += capz(e.MagnitudeZ, zCap)
	}
	for _, p := range pairs {
		wfHit += capz(focus[p.f].MagnitudeZ, zCap)
		wcHit += capz(cand[p.c].MagnitudeZ, zCap)
	}
	if wfAll <= 0 || wcAll <= 0 {
		return 0
	}
	recall := wfHit / wfAll
	precision := wcHit / wcAll
	if precision+recall <= 0 {
		return 0
	}
	return 2 * precision * recall / (precision + recall)
}

// directionality labels sign agreement of matched events, confirmed by the
// correlation of signed magnitudes when enough pairs exist.
func directionality(focus, cand []entity.SensorEvent, pairs []pair) entity.MatchDirection {
	if len(pairs) == 0 {
		return entity.MatchUnknown
	}
	same := 0
	var zf, zc []float64
	for _, p := range pairs {
		a, b := focus[p.f].MagnitudeZ, cand[p.c].MagnitudeZ
		if (a >= 0) == (b >= 0) {
			same++
		}
		zf = append(zf, a)
		zc = append(zc, b)
	}
	frac := float64(same) / float64(len(pairs))
	var label entity.MatchDirection
	switch {
	case frac >= 0.7:
		label = entity.MatchSame
	case frac <= 0.3:
		label = entity.MatchOpposite
	default:
		return entity.MatchUnknown
	}
	if len(pairs) >= 5 {
		r := stats.Pearson(zf, zc)
		if (label == entity.MatchSame && r < 0) || (label == entity.MatchOpposite && r > 0) {
			return entity.MatchUnknown
		}
	}
	return label
}

// episodes groups matched focus events separated by at most the episode gap
// into contiguous windows for UI drill-down.
func episodes(focus, cand []entity.SensorEvent, pairs []pair, lagSec int, interval time.Duration, opts Options) []entity.Episode {
	if len(pairs) == 0 {
		return nil
	}
	sorted := append([]pair(nil), pairs...)
	sort.Slice(sorted, func(a, b int) bool {
		return focus[sorted[a].f].BucketTs.Before(focus[sorted[b].f].BucketTs)
	})
	maxGap := time.Duration(opts.EpisodeGapBuckets) * interval

	var out []entity.Episode
	flush := func(group []pair) {
		if len(group) == 0 {
			return
		}
		ep := entity.Episode{
			StartTs:   focus[group[0].f].BucketTs,
			EndTs:     focus[group[len(group)-1].f].BucketTs,
			LagSec:    lagSec,
			NumPoints: len(group),
		}
		peak, sum := 0.0, 0.0
		for _, p := range group {
			sum += p.score
			if p.score > peak {
				peak = p.score
			}
		}
		ep.ScoreMean = sum / float64(len(group))
		ep.ScorePeak = peak
		// Coverage: matched share of focus events inside the window.
		inWindow := 0
		for _, e := range focus {
			if !e.BucketTs.Before(ep.StartTs) && !e.BucketTs.After(ep.EndTs) {
				inWindow++
			}
		}
		if inWindow > 0 {
			ep.Coverage = float64(len(group)) / float64(inWindow)
		}
		out = append(out, ep)
	}

	var group []pair
	for i, p := range sorted {
		if i > 0 {
			gap := focus[p.f].BucketTs.Sub(focus[sorted[i-1].f].BucketTs)
			if gap > maxGap {
				flush(group)
				group = nil
			}
		}
		group = append(group, p)
	}
	flush(group)
	return out
}

func meanOffset(pairs []pair) time.Duration {
	if len(pairs) == 0 {
		return 0
	}
	var sum time.Duration
	for _, p := range pairs {
		sum += p.dt
	}
	return sum / time.Duration(len(pairs))
}

func capz(z, limit float64) float64 {
	a := math.Abs(z)
	if a > limit {
		return limit
	}
	return a
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
