package matrixprofile

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/domain/entity"
)

func seriesOf(vals []*float64) entity.Series {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s := entity.Series{SensorID: "mp", Interval: time.Minute}
	for i, v := range vals {
		s.Buckets = append(s.Buckets, entity.Bucket{
			SensorID: "mp",
			Start:    start.Add(time.Duration(i) * time.Minute),
			Value:    v,
			Quality:  entity.QualityGood,
		})
	}
	return s
}

func ptr(v float64) *float64 { return &v }

func periodic(n, period int) []*float64 {
	out := make([]*float64, n)
	for i := 0; i < n; i++ {
		out[i] = ptr(math.Sin(2 * math.Pi * float64(i) / float64(period)))
	}
	return out
}

func TestPeriodicSignalHasNearZeroProfile(t *testing.T) {
	const period = 20
	s := seriesOf(periodic(200, period))
	opts := Options{Window: 10}

	res, err := Compute(context.Background(), &s, opts, nil)
	require.NoError(t, err)
	require.NotEmpty(t, res.Profile)

	for i, d := range res.Profile {
		require.NotEqual(t, noNeighbor, d, "window %d has no neighbor", i)
		assert.Less(t, d, 0.05, "window %d", i)
		assert.False(t, math.IsNaN(d))
		ni := res.ProfileIndex[i]
		require.GreaterOrEqual(t, ni, 0)
		assert.Greater(t, absInt(ni-i), res.ExclusionZone, "neighbor inside exclusion zone at %d", i)
	}
}

func TestAnomalyWindowStandsOut(t *testing.T) {
	vals := periodic(300, 20)
	// One novel shape in the middle of the periodic signal.
	for i := 150; i < 160; i++ {
		vals[i] = ptr(5 + float64(i%3))
	}
	s := seriesOf(vals)

	res, err := Compute(context.Background(), &s, Options{Window: 10, TopK: 3}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, res.Anomalies)

	top := res.Anomalies[0]
	assert.InDelta(t, 150, top.Index, 12)
	assert.Greater(t, top.Distance, res.Motifs[0].Distance)

	// Top-k anomalies respect the minimum index separation.
	for i := 0; i < len(res.Anomalies); i++ {
		for j := i + 1; j < len(res.Anomalies); j++ {
			assert.GreaterOrEqual(t, absInt(res.Anomalies[i].Index-res.Anomalies[j].Index), 10)
		}
	}
}

func TestDegenerateFlatSeriesProducesNoNaN(t *testing.T) {
	vals := make([]*float64, 100)
	for i := range vals {
		vals[i] = ptr(42.0)
	}
	s := seriesOf(vals)

	res, err := Compute(context.Background(), &s, Options{Window: 8}, nil)
	require.NoError(t, err)
	for i, d := range res.Profile {
		assert.False(t, math.IsNaN(d), "NaN at %d", i)
		// Flat against flat matches perfectly under the fallback.
		assert.Equal(t, 0.0, d)
	}
}

func TestGapWindowsExcluded(t *testing.T) {
	vals := periodic(120, 20)
	vals[60] = nil
	s := seriesOf(vals)

	res, err := Compute(context.Background(), &s, Options{Window: 10}, nil)
	require.NoError(t, err)
	// Every window covering bucket 60 is invalid.
	for i := 51; i <= 60; i++ {
		assert.Equal(t, noNeighbor, res.Profile[i])
		assert.Equal(t, -1, res.ProfileIndex[i])
	}
	for _, mo := range res.Motifs {
		assert.False(t, mo.Index >= 51 && mo.Index <= 60)
	}
}

func TestDownsamplingHonorsBudget(t *testing.T) {
	s := seriesOf(periodic(2000, 40))
	res, err := Compute(context.Background(), &s, Options{Window: 10, MaxPoints: 500}, nil)
	require.NoError(t, err)
	assert.True(t, res.Downsampled)
	assert.Equal(t, 4, res.Stride)
	assert.LessOrEqual(t, len(res.Profile), 500)
}

func TestComputeCancellation(t *testing.T) {
	s := seriesOf(periodic(400, 20))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Compute(ctx, &s, Options{Window: 10}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProgressReported(t *testing.T) {
	s := seriesOf(periodic(60, 20))
	var last, total int
	_, err := Compute(context.Background(), &s, Options{Window: 10}, func(d, tot int) {
		last, total = d, tot
	})
	require.NoError(t, err)
	assert.Equal(t, total, last)
	assert.Greater(t, total, 0)
}
