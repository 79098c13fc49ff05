// Package events derives discrete change events from one bucketed series,
// plus a distribution-feature embedding used for cheap candidate
// shortlisting.
package events

import (
	"math"
	"sort"
	"time"

	"github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/analysis/stats"
	"github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/domain/entity"
)

type Config struct {
	ThresholdZ      float64
	Adaptive        bool
	GapMaxBuckets   int
	NMSWindow       int
	Deseason        bool
	ExcludeBoundary bool
}

func (c Config) withDefaults() Config {
	if c.ThresholdZ <= 0 {
		c.ThresholdZ = 3.0
	}
	if c.GapMaxBuckets <= 0 {
		c.GapMaxBuckets = 2
	}
	if c.NMSWindow <= 0 {
		c.NMSWindow = 3
	}
	return c
}

const deseasonMinSpan = 48 * time.Hour

type Result struct {
	Events          []entity.SensorEvent
	Embedding       entity.Embedding
	DeseasonApplied bool
	DeseasonSkipped string
}

// Detect z-scores gap-aware bucket deltas against the series' own robust
// noise scale and keeps threshold crossings after non-maximum suppression.
func Detect(s *entity.Series, cfg Config) Result {
	cfg = cfg.withDefaults()
	res := Result{}

	vals, idx := s.Values()
	if len(vals) < 3 {
		return res
	}

	if cfg.Deseason {
		span := time.Duration(s.Len()) * s.Interval
		if span >= deseasonMinSpan {
			vals = deseason(s, vals, idx)
			res.DeseasonApplied = true
		} else {
			res.DeseasonSkipped = "window shorter than 2 days"
		}
	}

	res.Embedding = embed(s, vals)

	// Deltas only between buckets close enough in time; a delta spanning a
	// wide gap says nothing about a change at a moment.
	deltas := make([]float64, 0, len(vals)-1)
	deltaIdx := make([]int, 0, len(vals)-1)
	for i := 1; i < len(vals); i++ {
		if idx[i]-idx[i-1] > cfg.GapMaxBuckets {
			continue
		}
		deltas = append(deltas, vals[i]-vals[i-1])
		deltaIdx = append(deltaIdx, idx[i])
	}
	if len(deltas) < 2 {
		return res
	}

	scale := stats.RobustScale(deltas)
	zs := stats.ZScores(deltas, scale)

	thr := cfg.ThresholdZ
	if cfg.Adaptive {
		abs := make([]float64, len(zs))
		for i, z := range zs {
			abs[i] = math.Abs(z)
		}
		if floor := 1.5 * stats.Quantile(abs, 0.95); floor > thr {
			thr = floor
		}
	}

	type cand struct {
		bucket int
		z      float64
	}
	var cands []cand
	for i, z := range zs {
		if math.Abs(z) >= thr {
			cands = append(cands, cand{bucket: deltaIdx[i], z: z})
		}
	}

	// Non-maximum suppression: adjacent buckets crossing threshold on the
	// same excursion count once, keeping the strongest.
	sort.Slice(cands, func(a, b int) bool { return math.Abs(cands[a].z) > math.Abs(cands[b].z) })
	taken := make([]int, 0, len(cands))
	for _, c := range cands {
		ok := true
		for _, tb := range taken {
			if abs(c.bucket-tb) <= cfg.NMSWindow {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		taken = append(taken, c.bucket)
		dir := entity.DirectionUp
		if c.z < 0 {
			dir = entity.DirectionDown
		}
		ev := entity.SensorEvent{
			SensorID:   s.SensorID,
			BucketTs:   s.Buckets[c.bucket].Start,
			MagnitudeZ: c.z,
			Direction:  dir,
			Boundary:   c.bucket <= cfg.NMSWindow || c.bucket >= s.Len()-1-cfg.NMSWindow,
		}
		if cfg.ExcludeBoundary && ev.Boundary {
			continue
		}
		res.Events = append(res.Events, ev)
	}

	sort.Slice(res.Events, func(a, b int) bool { return res.Events[a].BucketTs.Before(res.Events[b].BucketTs) })
	return res
}

// deseason subtracts the hour-of-day mean so diurnal cycles do not read as
// events. Only called for windows spanning at least two days.
func deseason(s *entity.Series, vals []float64, idx []int) []float64 {
	var hourSum [24]float64
	var hourN [24]int
	for i, v := range vals {
		h := s.Buckets[idx[i]].Start.UTC().Hour()
		hourSum[h] += v
		hourN[h]++
	}
	out := make([]float64, len(vals))
	for i, v := range vals {
		h := s.Buckets[idx[i]].Start.UTC().Hour()
		if hourN[h] > 0 {
			out[i] = v - hourSum[h]/float64(hourN[h])
		} else {
			out[i] = v
		}
	}
	return out
}

// embed summarizes level and shape of the window. This embedding carries no
// temporal-alignment information; it shortlists candidates that look alike,
// it cannot say whether they moved together.
func embed(s *entity.Series, vals []float64) entity.Embedding {
	sc := stats.RobustScale(vals)
	mean := 0.0
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))
	spikes := 0
	for _, v := range vals {
		if math.Abs(sc.Z(v)) > 2 {
			spikes++
		}
	}
	return entity.Embedding{
		Center:    sc.Center,
		Scale:     sc.Spread,
		Skew:      sc.Z(mean),
		SpikeRate: float64(spikes) / float64(len(vals)),
		Coverage:  s.Coverage(),
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
