// Package cooccur scans many sensors' events bucket-by-bucket for
// synchronized changes, downweighting buckets where most of the pool fired
// at once.
package cooccur

import (
	"math"
	"sort"
	"time"

	"github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/domain/entity"
)

const (
	ModeFocus  = "focus"
	ModeSystem = "system"
)

type Options struct {
	Mode         string
	FocusID      string
	MaxBuckets   int
	MinGroupSize int
}

func (o Options) withDefaults() Options {
	if o.Mode == "" {
		if o.FocusID != "" {
			o.Mode = ModeFocus
		} else {
			o.Mode = ModeSystem
		}
	}
	if o.MaxBuckets <= 0 {
		o.MaxBuckets = 50
	}
	if o.MinGroupSize < 2 {
		o.MinGroupSize = 2
	}
	return o
}

// groupWeight is the IDF-like downweighting factor. A bucket where the whole
// pool fired usually reflects a shared external cause, not a pairwise
// relationship, so its weight approaches the floor as groupSize approaches
// poolSize; a two-sensor bucket keeps most of its weight.
func groupWeight(groupSize, poolSize int) float64 {
	if poolSize < 2 || groupSize < 1 {
		return 1
	}
	return math.Log(1+float64(poolSize)/float64(groupSize)) / math.Log(1+float64(poolSize))
}

// Scan groups events by bucket timestamp. The undownweighted severity is
// reported beside the weighted one so the downweighting is auditable.
func Scan(eventsBySensor map[string][]entity.SensorEvent, poolSize int, opts Options) *entity.CooccurrenceResult {
	opts = opts.withDefaults()

	// Per bucket, strongest |z| per sensor.
	type participant map[string]float64
	byTs := make(map[time.Time]participant)
	for id, evs := range eventsBySensor {
		for _, e := range evs {
			p := byTs[e.BucketTs]
			if p == nil {
				p = make(participant)
				byTs[e.BucketTs] = p
			}
			if z := math.Abs(e.MagnitudeZ); z > p[id] {
				p[id] = z
			}
		}
	}

	res := &entity.CooccurrenceResult{Mode: opts.Mode, PoolSize: poolSize}
	for ts, p := range byTs {
		if len(p) < opts.MinGroupSize {
			continue
		}
		if opts.Mode == ModeFocus {
			if _, ok := p[opts.FocusID]; !ok {
				continue
			}
		}
		b := entity.CooccurrenceBucket{Ts: ts, GroupSize: len(p)}
		for id, z := range p {
			b.SensorIDs = append(b.SensorIDs, id)
			b.RawSeverity += z
		}
		sort.Strings(b.SensorIDs)
		b.WeightedSeverity = b.RawSeverity * groupWeight(b.GroupSize, poolSize)
		b.FocusSeverity = p[opts.FocusID]
		res.Buckets = append(res.Buckets, b)
	}

	sort.Slice(res.Buckets, func(a, b int) bool {
		ba, bb := res.Buckets[a], res.Buckets[b]
		if opts.Mode == ModeFocus && ba.FocusSeverity != bb.FocusSeverity {
			return ba.FocusSeverity > bb.FocusSeverity
		}
		if ba.WeightedSeverity != bb.WeightedSeverity {
			return ba.WeightedSeverity > bb.WeightedSeverity
		}
		return ba.Ts.Before(bb.Ts)
	})
	if len(res.Buckets) > opts.MaxBuckets {
		res.Buckets = res.Buckets[:opts.MaxBuckets]
	}
	return res
}

// FocusScores folds a scan into per-candidate evidence: for every bucket the
// focus participated in, each co-firing candidate accrues the bucket weight
// scaled by the weaker of the two severities.
func FocusScores(res *entity.CooccurrenceResult, focusID string, eventsBySensor map[string][]entity.SensorEvent) map[string]entity.CooccurrenceScore {
	zAt := make(map[string]map[time.Time]float64)
	for id, evs := range eventsBySensor {
		m := make(map[time.Time]float64, len(evs))
		for _, e := range evs {
			if z := math.Abs(e.MagnitudeZ); z > m[e.BucketTs] {
				m[e.BucketTs] = z
			}
		}
		zAt[id] = m
	}

	out := make(map[string]entity.CooccurrenceScore)
	for _, b := range res.Buckets {
		zf, ok := zAt[focusID][b.Ts]
		if !ok {
			continue
		}
		w := groupWeight(b.GroupSize, res.PoolSize)
		for _, id := range b.SensorIDs {
			if id == focusID {
				continue
			}
			sc := out[id]
			sc.Score += w * math.Min(zf, zAt[id][b.Ts])
			sc.SharedBuckets++
			out[id] = sc
		}
	}
	return out
}
