package reader

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/domain/entity"
)

type fakeSource struct {
	samples map[string][]entity.RawSample
}

func (f *fakeSource) ReadSamples(_ context.Context, ids []string, _, _ time.Time) (map[string][]entity.RawSample, error) {
	out := make(map[string][]entity.RawSample)
	for _, id := range ids {
		out[id] = f.samples[id]
	}
	return out, nil
}

type fakeLookup map[string]entity.Sensor

func (f fakeLookup) Sensor(id string) (entity.Sensor, bool) {
	s, ok := f[id]
	return s, ok
}

func specFor(start time.Time, buckets int) entity.ReadSpec {
	return entity.ReadSpec{
		Start:       start,
		End:         start.Add(time.Duration(buckets) * time.Minute),
		IntervalSec: 60,
	}
}

func TestReadAlignsAndPreservesGaps(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{samples: map[string][]entity.RawSample{
		"temp_1": {
			{SensorID: "temp_1", Ts: start.Add(10 * time.Second), Value: 10, Quality: entity.QualityGood},
			{SensorID: "temp_1", Ts: start.Add(30 * time.Second), Value: 20, Quality: entity.QualityGood},
			// bucket 1 empty: gap
			{SensorID: "temp_1", Ts: start.Add(2*time.Minute + 5*time.Second), Value: 30, Quality: entity.QualityGood},
		},
	}}
	r := New(src, fakeLookup{"temp_1": {ID: "temp_1", Kind: entity.KindAnalog}})

	series, skipped, err := r.Read(context.Background(), Request{
		SensorIDs: []string{"temp_1"},
		Spec:      specFor(start, 3),
	})
	require.NoError(t, err)
	assert.Empty(t, skipped)
	require.Len(t, series, 1)
	s := series[0]
	require.Len(t, s.Buckets, 3)

	require.NotNil(t, s.Buckets[0].Value)
	assert.Equal(t, 15.0, *s.Buckets[0].Value) // analog -> avg
	assert.Nil(t, s.Buckets[1].Value)          // gap preserved
	require.NotNil(t, s.Buckets[2].Value)
	assert.Equal(t, 30.0, *s.Buckets[2].Value)
	assert.Equal(t, start.Add(2*time.Minute), s.Buckets[2].Start)
}

func TestReadSkipsUnknownSensor(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	r := New(&fakeSource{}, fakeLookup{"known": {ID: "known", Kind: entity.KindAnalog}})

	series, skipped, err := r.Read(context.Background(), Request{
		SensorIDs: []string{"known", "ghost"},
		Spec:      specFor(start, 2),
	})
	require.NoError(t, err)
	assert.Len(t, series, 1)
	require.Len(t, skipped, 1)
	assert.Equal(t, "ghost", skipped[0].SensorID)
}

func TestAutoAggregationByKind(t *testing.T) {
	cases := []struct {
		kind entity.SensorKind
		want entity.Aggregation
	}{
		{entity.KindState, entity.AggLast},
		{entity.KindCounter, entity.AggLast},
		{entity.KindPulse, entity.AggSum},
		{entity.KindAnalog, entity.AggAvg},
		{entity.KindCircular, entity.AggAvg},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, resolveAggregation(entity.AggAuto, c.kind), string(c.kind))
	}
	// Explicit aggregation wins over auto resolution.
	assert.Equal(t, entity.AggMax, resolveAggregation(entity.AggMax, entity.KindCounter))
}

func TestQualityFilterAndMinSamples(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{samples: map[string][]entity.RawSample{
		"s": {
			{SensorID: "s", Ts: start.Add(time.Second), Value: 5, Quality: entity.QualityBad},
			{SensorID: "s", Ts: start.Add(2 * time.Second), Value: 7, Quality: entity.QualityGood},
		},
	}}
	r := New(src, fakeLookup{"s": {ID: "s", Kind: entity.KindAnalog}})

	spec := specFor(start, 1)
	spec.MinSamplesPerBucket = 2
	series, _, err := r.Read(context.Background(), Request{SensorIDs: []string{"s"}, Spec: spec})
	require.NoError(t, err)
	// Only one good sample against a 2-sample gate: gap.
	assert.Nil(t, series[0].Buckets[0].Value)

	spec.MinSamplesPerBucket = 1
	series, _, err = r.Read(context.Background(), Request{SensorIDs: []string{"s"}, Spec: spec})
	require.NoError(t, err)
	require.NotNil(t, series[0].Buckets[0].Value)
	assert.Equal(t, 7.0, *series[0].Buckets[0].Value)
}

func TestCircularVectorMean(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	// 350 and 10 degrees straddle north; the arithmetic mean (180) is the
	// wrap-around artifact the vector mean avoids.
	src := &fakeSource{samples: map[string][]entity.RawSample{
		"wind_dir": {
			{SensorID: "wind_dir", Ts: start.Add(time.Second), Value: 350, Quality: entity.QualityGood},
			{SensorID: "wind_dir", Ts: start.Add(2 * time.Second), Value: 10, Quality: entity.QualityGood},
		},
	}}
	r := New(src, fakeLookup{"wind_dir": {ID: "wind_dir", Kind: entity.KindCircular}})

	series, _, err := r.Read(context.Background(), Request{SensorIDs: []string{"wind_dir"}, Spec: specFor(start, 1)})
	require.NoError(t, err)
	require.NotNil(t, series[0].Buckets[0].Value)
	v := *series[0].Buckets[0].Value
	if v > 180 {
		v -= 360
	}
	assert.InDelta(t, 0.0, v, 1e-9)
}

func TestReadExpandsCircularIntoComponents(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{samples: map[string][]entity.RawSample{
		"wind_dir": {
			{SensorID: "wind_dir", Ts: start.Add(time.Second), Value: 90, Quality: entity.QualityGood},
		},
	}}
	r := New(src, fakeLookup{"wind_dir": {ID: "wind_dir", Kind: entity.KindCircular}})

	series, _, err := r.Read(context.Background(), Request{SensorIDs: []string{"wind_dir"}, Spec: specFor(start, 1)})
	require.NoError(t, err)
	require.Len(t, series, 3)
	assert.Equal(t, "wind_dir", series[0].SensorID)
	assert.Equal(t, "wind_dir.sin", series[1].SensorID)
	assert.Equal(t, "wind_dir.cos", series[2].SensorID)
	require.NotNil(t, series[1].Buckets[0].Value)
	assert.InDelta(t, 1.0, *series[1].Buckets[0].Value, 1e-12)
}

func TestReadExpandsCounterIntoDeltas(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{samples: map[string][]entity.RawSample{
		"ctr": {
			{SensorID: "ctr", Ts: start.Add(time.Second), Value: 100, Quality: entity.QualityGood},
			{SensorID: "ctr", Ts: start.Add(time.Minute + time.Second), Value: 107, Quality: entity.QualityGood},
		},
	}}
	r := New(src, fakeLookup{"ctr": {ID: "ctr", Kind: entity.KindCounter}})

	series, _, err := r.Read(context.Background(), Request{SensorIDs: []string{"ctr"}, Spec: specFor(start, 2)})
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, "ctr", series[0].SensorID)
	d := series[1]
	assert.Equal(t, "ctr.delta", d.SensorID)
	assert.Nil(t, d.Buckets[0].Value)
	require.NotNil(t, d.Buckets[1].Value)
	assert.Equal(t, 7.0, *d.Buckets[1].Value)
}

func TestSinCosDecomposition(t *testing.T) {
	v := 90.0
	s := entity.Series{SensorID: "dir", Interval: time.Minute, Buckets: []entity.Bucket{
		{SensorID: "dir", Value: &v},
		{SensorID: "dir"}, // gap
	}}
	sin, cos := SinCos(&s)
	require.NotNil(t, sin.Buckets[0].Value)
	assert.InDelta(t, 1.0, *sin.Buckets[0].Value, 1e-12)
	assert.InDelta(t, 0.0, *cos.Buckets[0].Value, 1e-12)
	assert.Nil(t, sin.Buckets[1].Value)
	assert.Nil(t, cos.Buckets[1].Value)
}

func TestDeriveDeltaHandlesCounterReset(t *testing.T) {
	vals := []float64{100, 110, 5, 12}
	s := entity.Series{SensorID: "ctr", Interval: time.Minute}
	for _, v := range vals {
		v := v
		s.Buckets = append(s.Buckets, entity.Bucket{SensorID: "ctr", Value: &v})
	}
	d := DeriveDelta(&s)
	assert.Nil(t, d.Buckets[0].Value)
	require.NotNil(t, d.Buckets[1].Value)
	assert.Equal(t, 10.0, *d.Buckets[1].Value)
	assert.Nil(t, d.Buckets[2].Value) // reset, not a -105 delta
	require.NotNil(t, d.Buckets[3].Value)
	assert.Equal(t, 7.0, *d.Buckets[3].Value)
}
