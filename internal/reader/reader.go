// Package reader turns raw samples into fixed-stride bucketed series. It is
// the only stage that touches the time-series store; everything downstream
// operates on in-memory series.
package reader

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/domain/entity"
)

type SampleSource interface {
	ReadSamples(ctx context.Context, sensorIDs []string, start, end time.Time) (map[string][]entity.RawSample, error)
}

type SensorLookup interface {
	Sensor(id string) (entity.Sensor, bool)
}

const (
	QualityGoodOnly = "good_only"
	QualityAny      = "any"
)

type Reader struct {
	source  SampleSource
	sensors SensorLookup
	log     *logrus.Entry
}

func New(source SampleSource, sensors SensorLookup) *Reader {
	return &Reader{
		source:  source,
		sensors: sensors,
		log:     logrus.WithField("component", "reader"),
	}
}

type Request struct {
	SensorIDs []string
	Spec      entity.ReadSpec
}

// Read fetches and buckets one series per sensor. Unknown sensors are
// skipped with a diagnostic instead of failing the whole read; every
// returned series has one bucket per stride, gaps included.
func (r *Reader) Read(ctx context.Context, req Request) ([]entity.Series, []entity.SkippedSensor, error) {
	known := make([]string, 0, len(req.SensorIDs))
	var skipped []entity.SkippedSensor
	kinds := make(map[string]entity.SensorKind, len(req.SensorIDs))
	for _, id := range req.SensorIDs {
		s, ok := r.sensors.Sensor(id)
		if !ok {
			r.log.WithField("sensor_id", id).Warn("sensor not found, skipping")
			skipped = append(skipped, entity.SkippedSensor{SensorID: id, Reason: "sensor not found"})
			continue
		}
		known = append(known, id)
		kinds[id] = s.Kind
	}
	if len(known) == 0 {
		return nil, skipped, nil
	}

	samples, err := r.source.ReadSamples(ctx, known, req.Spec.Start, req.Spec.End)
	if err != nil {
		return nil, skipped, fmt.Errorf("read samples: %w", err)
	}

	series := make([]entity.Series, 0, len(known))
	for _, id := range known {
		agg := resolveAggregation(req.Spec.Aggregation, kinds[id])
		s := bucketize(id, samples[id], req.Spec, agg, kinds[id] == entity.KindCircular)
		series = append(series, s)
		switch kinds[id] {
		case entity.KindCircular:
			// Downstream correlation and event detection on raw degrees
			// would see the 0/360 wrap as a jump.
			sin, cos := SinCos(&s)
			series = append(series, sin, cos)
		case entity.KindCounter:
			series = append(series, DeriveDelta(&s))
		}
	}
	return series, skipped, nil
}

// resolveAggregation maps auto onto a type-aware rule: state and counter
// sensors take the last sample (sum over a resetting counter would bake in
// reset artifacts), pulse accumulators sum, continuous analog averages.
func resolveAggregation(agg entity.Aggregation, kind entity.SensorKind) entity.Aggregation {
	if agg != "" && agg != entity.AggAuto {
		return agg
	}
	switch kind {
	case entity.KindState, entity.KindCounter:
		return entity.AggLast
	case entity.KindPulse:
		return entity.AggSum
	default:
		return entity.AggAvg
	}
}

func bucketize(sensorID string, samples []entity.RawSample, spec entity.ReadSpec, agg entity.Aggregation, circular bool) entity.Series {
	interval := spec.Interval()
	n := spec.NumBuckets()
	minSamples := spec.MinSamplesPerBucket
	if minSamples < 1 {
		minSamples = 1
	}
	goodOnly := spec.QualityPolicy != QualityAny

	type acc struct {
		sum, min, max  float64
		sinSum, cosSum float64
		last           float64
		lastTs         time.Time
		count          int
	}
	accs := make([]acc, n)
	for _, smp := range samples {
		if goodOnly && smp.Quality == entity.QualityBad {
			continue
		}
		if smp.Ts.Before(spec.Start) || !smp.Ts.Before(spec.End) {
			continue
		}
		i := int(smp.Ts.Sub(spec.Start) / interval)
		if i < 0 || i >= n {
			continue
		}
		a := &accs[i]
		if a.count == 0 {
			a.min, a.max = smp.Value, smp.Value
		} else {
			a.min = math.Min(a.min, smp.Value)
			a.max = math.Max(a.max, smp.Value)
		}
		a.sum += smp.Value
		if circular {
			rad := smp.Value * math.Pi / 180
			a.sinSum += math.Sin(rad)
			a.cosSum += math.Cos(rad)
		}
		if a.count == 0 || smp.Ts.After(a.lastTs) {
			a.last = smp.Value
			a.lastTs = smp.Ts
		}
		a.count++
	}

	buckets := make([]entity.Bucket, n)
	for i := 0; i < n; i++ {
		b := entity.Bucket{
			SensorID:    sensorID,
			Start:       spec.Start.Add(time.Duration(i) * interval),
			SampleCount: accs[i].count,
			Quality:     entity.QualityGood,
		}
		if accs[i].count < minSamples {
			// Insufficient coverage is a gap, never an interpolation.
			b.Quality = entity.QualityBad
			buckets[i] = b
			continue
		}
		var v float64
		switch agg {
		case entity.AggAvg:
			if circular {
				// Direct averaging of circular quantities wraps at 0/360;
				// use the vector mean instead.
				v = math.Atan2(accs[i].sinSum, accs[i].cosSum) * 180 / math.Pi
				if v < 0 {
					v += 360
				}
			} else {
				v = accs[i].sum / float64(accs[i].count)
			}
		case entity.AggSum:
			v = accs[i].sum
		case entity.AggMin:
			v = accs[i].min
		case entity.AggMax:
			v = accs[i].max
		default:
			v = accs[i].last
		}
		b.Value = &v
		buckets[i] = b
	}

	return entity.Series{SensorID: sensorID, Interval: interval, Buckets: buckets}
}

// SinCos decomposes a circular (degree-valued) series into sine and cosine
// component series so downstream consumers can correlate and detect events
// without wrap-around artifacts.
func SinCos(s *entity.Series) (entity.Series, entity.Series) {
	sin := entity.Series{SensorID: s.SensorID + ".sin", Interval: s.Interval, Buckets: make([]entity.Bucket, len(s.Buckets))}
	cos := entity.Series{SensorID: s.SensorID + ".cos", Interval: s.Interval, Buckets: make([]entity.Bucket, len(s.Buckets))}
	for i := range s.Buckets {
		b := s.Buckets[i]
		sb, cb := b, b
		sb.SensorID, cb.SensorID = sin.SensorID, cos.SensorID
		if b.Value != nil {
			rad := *b.Value * math.Pi / 180
			sv, cv := math.Sin(rad), math.Cos(rad)
			sb.Value, cb.Value = &sv, &cv
		}
		sin.Buckets[i] = sb
		cos.Buckets[i] = cb
	}
	return sin, cos
}

// DeriveDelta turns a cumulative counter series (bucketed as last) into
// per-bucket increments. A negative step is a counter reset and becomes a
// gap rather than a bogus negative delta.
func DeriveDelta(s *entity.Series) entity.Series {
	out := entity.Series{SensorID: s.SensorID + ".delta", Interval: s.Interval, Buckets: make([]entity.Bucket, len(s.Buckets))}
	var prev *float64
	for i := range s.Buckets {
		b := s.Buckets[i]
		nb := entity.Bucket{SensorID: out.SensorID, Start: b.Start, SampleCount: b.SampleCount, Quality: b.Quality}
		if b.Value != nil && prev != nil {
			d := *b.Value - *prev
			if d >= 0 {
				nb.Value = &d
			}
		}
		if b.Value != nil {
			prev = b.Value
		} else {
			prev = nil
		}
		out.Buckets[i] = nb
	}
	return out
}
