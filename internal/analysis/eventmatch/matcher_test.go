package eventmatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/domain/entity"
)

var t0 = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func ev(sensor string, bucket int, z float64) entity.SensorEvent {
	dir := entity.DirectionUp
	if z < 0 {
		dir = entity.DirectionDown
	}
	return entity.SensorEvent{
		SensorID:   sensor,
		BucketTs:   t0.Add(time.Duration(bucket) * time.Minute),
		MagnitudeZ: z,
		Direction:  dir,
	}
}

// Synthetic spikes at buckets 100, 500, 900 with the candidate trailing by
// one bucket (60s) and up to two buckets of jitter.
func TestMatchRecoversFixedLag(t *testing.T) {
	focus := []entity.SensorEvent{
		ev("voltage_A", 100, 4),
		ev("voltage_A", 500, 5),
		ev("voltage_A", 900, 6),
	}
	cand := []entity.SensorEvent{
		ev("current_A", 101+2, 4), // +2 bucket jitter
		ev("current_A", 501, 5),
		ev("current_A", 901-1, 6), // -1 bucket jitter
	}

	res := Match(focus, cand, time.Minute, Options{
		ToleranceBuckets: 2,
		MaxLagBuckets:    2,
		MinOverlap:       3,
	})
	assert.Equal(t, 60, res.BestLagSec)
	assert.Equal(t, 3, res.Overlap)
	assert.Equal(t, entity.MatchSame, res.Direction)
	require.Len(t, res.Episodes, 3)
	for _, ep := range res.Episodes {
		assert.Equal(t, 60, ep.LagSec)
		assert.Equal(t, 1, ep.NumPoints)
	}
}

// A clean one-bucket lag is smaller than the tolerance window, so lags 0..2
// all match the same pairs with identical F1. Alignment tightness must pick
// the true lag, not collapse to zero.
func TestMatchRecoversLagInsideTolerance(t *testing.T) {
	focus := []entity.SensorEvent{
		ev("voltage_A", 100, 4),
		ev("voltage_A", 500, 5),
		ev("voltage_A", 900, 6),
	}
	cand := []entity.SensorEvent{
		ev("current_A", 101, 4),
		ev("current_A", 501, 5),
		ev("current_A", 901, 6),
	}

	res := Match(focus, cand, time.Minute, Options{
		ToleranceBuckets: 2,
		MaxLagBuckets:    2,
		MinOverlap:       3,
	})
	assert.Equal(t, 60, res.BestLagSec)
	assert.Equal(t, 3, res.Overlap)
	assert.InDelta(t, 1.0, res.F1, 1e-9)
}

func TestMatchOneToOneNotManyToOne(t *testing.T) {
	// Three focus events cluster around one candidate event; only one may
	// match.
	focus := []entity.SensorEvent{
		ev("f", 10, 3),
		ev("f", 11, 3),
		ev("f", 12, 3),
		ev("f", 50, 3),
		ev("f", 60, 3),
	}
	cand := []entity.SensorEvent{
		ev("c", 11, 3),
		ev("c", 50, 3),
		ev("c", 60, 3),
	}

	res := Match(focus, cand, time.Minute, Options{ToleranceBuckets: 2, MaxLagBuckets: 0, MinOverlap: 3})
	assert.Equal(t, 3, res.Overlap)
}

func TestMatchMinOverlapGate(t *testing.T) {
	focus := []entity.SensorEvent{ev("f", 10, 3), ev("f", 400, 3)}
	cand := []entity.SensorEvent{ev("c", 10, 3), ev("c", 400, 3)}

	res := Match(focus, cand, time.Minute, Options{ToleranceBuckets: 1, MaxLagBuckets: 1, MinOverlap: 3})
	assert.Equal(t, entity.ReasonInsufficientOverlap, res.Reason)
	assert.Equal(t, 0, res.Overlap)
	assert.Empty(t, res.Episodes)
}

func TestMatchOppositeDirection(t *testing.T) {
	var focus, cand []entity.SensorEvent
	for i := 0; i < 6; i++ {
		focus = append(focus, ev("f", i*100, 4))
		cand = append(cand, ev("c", i*100, -4))
	}
	res := Match(focus, cand, time.Minute, Options{ToleranceBuckets: 1, MaxLagBuckets: 0})
	assert.Equal(t, entity.MatchOpposite, res.Direction)
}

func TestMatchZCapBoundsExtremeEvent(t *testing.T) {
	// One extreme unmatched candidate event. Uncapped it would crush
	// precision; capped, the matched weight still dominates.
	focus := []entity.SensorEvent{ev("f", 10, 4), ev("f", 20, 4), ev("f", 30, 4)}
	cand := []entity.SensorEvent{
		ev("c", 10, 4),
		ev("c", 20, 4),
		ev("c", 30, 4),
		ev("c", 200, 500), // extreme, unmatched
	}
	res := Match(focus, cand, time.Minute, Options{ToleranceBuckets: 1, MaxLagBuckets: 0, ZCap: 5})
	// precision = 12/(12+5) with the cap, so F1 stays well above 0.5.
	assert.Greater(t, res.F1, 0.7)
}

func TestMatchAmbiguousLagsReported(t *testing.T) {
	// A strictly periodic focus pattern matches equally well at several
	// lags.
	var focus, cand []entity.SensorEvent
	for i := 0; i < 10; i++ {
		focus = append(focus, ev("f", i*10, 3))
		cand = append(cand, ev("c", i*10, 3))
	}
	res := Match(focus, cand, time.Minute, Options{ToleranceBuckets: 1, MaxLagBuckets: 20})
	require.NotEmpty(t, res.TopLags)
	assert.LessOrEqual(t, len(res.TopLags), 3)
	assert.Equal(t, 0, res.BestLagSec) // lag 0 aligns exactly
}

func TestEpisodeGrouping(t *testing.T) {
	var focus, cand []entity.SensorEvent
	// Two bursts of three aligned events, far apart.
	for _, base := range []int{0, 500} {
		for i := 0; i < 3; i++ {
			focus = append(focus, ev("f", base+i*5, 4))
			cand = append(cand, ev("c", base+i*5, 4))
		}
	}
	res := Match(focus, cand, time.Minute, Options{ToleranceBuckets: 1, MaxLagBuckets: 0, EpisodeGapBuckets: 30})
	require.Len(t, res.Episodes, 2)
	for _, ep := range res.Episodes {
		assert.Equal(t, 3, ep.NumPoints)
		assert.InDelta(t, 1.0, ep.Coverage, 1e-9)
		assert.Equal(t, 4.0, ep.ScorePeak)
	}
}
