package usecase

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/domain/entity"
	"github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/reader"
)

var t0 = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func seriesFrom(id string, interval time.Duration, vals []*float64) entity.Series {
	s := entity.Series{SensorID: id, Interval: interval}
	for i, v := range vals {
		s.Buckets = append(s.Buckets, entity.Bucket{
			SensorID: id,
			Start:    t0.Add(time.Duration(i) * interval),
			Value:    v,
			Quality:  entity.QualityGood,
		})
	}
	return s
}

// stepSeries is flat with upward level shifts at the given buckets.
func stepSeries(id string, n int, interval time.Duration, steps ...int) entity.Series {
	vals := make([]*float64, n)
	level := 0.0
	next := 0
	for i := 0; i < n; i++ {
		if next < len(steps) && i == steps[next] {
			level += 10
			next++
		}
		v := level
		vals[i] = &v
	}
	return seriesFrom(id, interval, vals)
}

type fakeReader struct {
	series map[string]entity.Series
}

func (f *fakeReader) Read(_ context.Context, req reader.Request) ([]entity.Series, []entity.SkippedSensor, error) {
	var out []entity.Series
	var skipped []entity.SkippedSensor
	for _, id := range req.SensorIDs {
		if s, ok := f.series[id]; ok {
			out = append(out, s)
		} else {
			skipped = append(skipped, entity.SkippedSensor{SensorID: id, Reason: "sensor not found"})
		}
	}
	return out, skipped, nil
}

type fakeGraph struct {
	derived map[string]bool
}

func (f *fakeGraph) IDs() []string { return nil }

func (f *fakeGraph) Dependency(_, candidateID string) entity.DependencyStatus {
	if f.derived[candidateID] {
		return entity.DependencyDerived
	}
	return entity.DependencyIndependent
}

func readSpec(n int) entity.ReadSpec {
	return entity.ReadSpec{
		Start:       t0,
		End:         t0.Add(time.Duration(n) * time.Minute),
		IntervalSec: 60,
	}
}

func TestEventMatchPipelineRecoversLag(t *testing.T) {
	const n = 1000
	interval := time.Minute
	f := &fakeReader{series: map[string]entity.Series{
		"focus": stepSeries("focus", n, interval, 100, 500, 900),
		"cand":  stepSeries("cand", n, interval, 101, 501, 901),
	}}
	u := NewAnalysisUseCase(f, &fakeGraph{})

	var phases []string
	res, warnings, err := u.EventMatch(context.Background(), &entity.EventMatchParams{
		FocusID:          "focus",
		CandidateID:      "cand",
		Read:             readSpec(n),
		ToleranceBuckets: 2,
		MaxLagSec:        300,
	}, func(phase string, _, _ int) { phases = append(phases, phase) })
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Contains(t, phases, "read")

	assert.Equal(t, 60, res.BestLagSec)
	assert.Equal(t, 3, res.Overlap)
	assert.Len(t, res.Episodes, 3)
	assert.Equal(t, "focus", res.FocusID)
	assert.Equal(t, "cand", res.CandidateID)
}

func TestEventMatchMissingFocusFails(t *testing.T) {
	u := NewAnalysisUseCase(&fakeReader{series: map[string]entity.Series{}}, &fakeGraph{})
	_, _, err := u.EventMatch(context.Background(), &entity.EventMatchParams{
		FocusID: "ghost", CandidateID: "also-ghost", Read: readSpec(100),
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no readable series")
}

func TestCorrelationMatrixPipeline(t *testing.T) {
	const n = 200
	a := make([]*float64, n)
	b := make([]*float64, n)
	for i := 0; i < n; i++ {
		x := math.Sin(float64(i) / 7)
		y := 2*x + 0.01*float64(i%5)
		a[i], b[i] = &x, &y
	}
	f := &fakeReader{series: map[string]entity.Series{
		"a": seriesFrom("a", time.Minute, a),
		"b": seriesFrom("b", time.Minute, b),
	}}
	u := NewAnalysisUseCase(f, &fakeGraph{})

	res, warnings, err := u.CorrelationMatrix(context.Background(), &entity.CorrelationMatrixParams{
		SensorIDs: []string{"a", "b", "ghost"},
		Read:      readSpec(n),
		Mode:      "levels",
	}, nil)
	require.NoError(t, err)
	require.Len(t, res.Cells, 1)
	assert.Equal(t, entity.CellSignificant, res.Cells[0].Status)
	assert.Greater(t, res.Cells[0].R, 0.9)

	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "ghost")
	require.Len(t, res.Skipped, 1)
}

func TestMatrixProfilePipeline(t *testing.T) {
	const n = 400
	vals := make([]*float64, n)
	for i := 0; i < n; i++ {
		v := math.Sin(2 * math.Pi * float64(i) / 20)
		vals[i] = &v
	}
	f := &fakeReader{series: map[string]entity.Series{"s": seriesFrom("s", time.Minute, vals)}}
	u := NewAnalysisUseCase(f, &fakeGraph{})

	res, _, err := u.MatrixProfile(context.Background(), &entity.MatrixProfileParams{
		SensorID:  "s",
		Read:      readSpec(n),
		WindowLen: 10,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "s", res.SensorID)
	assert.Len(t, res.Profile, n-10+1)
	assert.NotEmpty(t, res.Motifs)
}

func TestRelatedSensorsPipeline(t *testing.T) {
	const n = 1000
	interval := time.Minute
	quiet := make([]*float64, n)
	for i := range quiet {
		v := 1.0
		quiet[i] = &v
	}
	f := &fakeReader{series: map[string]entity.Series{
		"focus":  stepSeries("focus", n, interval, 100, 400, 700),
		"trail":  stepSeries("trail", n, interval, 101, 401, 701),
		"mirror": stepSeries("mirror", n, interval, 100, 400, 700),
		"quiet":  seriesFrom("quiet", interval, quiet),
	}}
	g := &fakeGraph{derived: map[string]bool{"mirror": true}}
	u := NewAnalysisUseCase(f, g)

	res, _, err := u.RelatedSensors(context.Background(), &entity.RelatedSensorsParams{
		FocusID:          "focus",
		CandidateIDs:     []string{"trail", "mirror", "quiet"},
		Read:             readSpec(n),
		ToleranceBuckets: 2,
		MaxLagSec:        300,
	}, nil)
	require.NoError(t, err)

	require.NotEmpty(t, res.Candidates)
	assert.Equal(t, "trail", res.Candidates[0].SensorID)
	require.NotNil(t, res.Candidates[0].Evidence.Event)
	assert.Equal(t, 60, res.Candidates[0].Evidence.Event.BestLagSec)

	reasons := map[string]entity.ReasonCode{}
	for _, e := range res.Excluded {
		reasons[e.SensorID] = e.Reason
	}
	assert.Equal(t, entity.ReasonDerivedFromFocus, reasons["mirror"])
	assert.Contains(t, reasons, "quiet")
	assert.Equal(t, 2, res.Coverage.EvaluatedCount)
	assert.NotEmpty(t, res.Caveats)
}

// The ranker's correlation channel runs on deltas. A shared linear trend
// (levels r near 1) with unrelated per-bucket movement must not register as
// correlation evidence.
func TestRelatedSensorsCorrelationUsesDeltas(t *testing.T) {
	const n = 300
	ramp := make([]*float64, n)
	wobble := make([]*float64, n)
	for i := 0; i < n; i++ {
		v := float64(i)
		ramp[i] = &v
		w := float64(i) + 4*math.Sin(float64(i))
		wobble[i] = &w
	}
	f := &fakeReader{series: map[string]entity.Series{
		"focus": seriesFrom("focus", time.Minute, ramp),
		"cand":  seriesFrom("cand", time.Minute, wobble),
	}}
	u := NewAnalysisUseCase(f, &fakeGraph{})

	res, _, err := u.RelatedSensors(context.Background(), &entity.RelatedSensorsParams{
		FocusID:           "focus",
		CandidateIDs:      []string{"cand"},
		Read:              readSpec(n),
		EnableCorrelation: true,
	}, nil)
	require.NoError(t, err)

	var cell *entity.CorrelationCell
	for _, c := range res.Candidates {
		if c.SensorID == "cand" {
			cell = c.Evidence.CorrelationContext
		}
	}
	require.NotNil(t, cell)
	assert.NotEqual(t, entity.CellSignificant, cell.Status)
	assert.Less(t, math.Abs(cell.R), 0.5)
}

// 50 eligible candidates with a limit of 20 must still disclose the full
// population: eligible_count=50, 20 evaluated, 30 truncated ids.
func TestRelatedSensorsEligibleCountIncludesTruncated(t *testing.T) {
	const n = 300
	series := map[string]entity.Series{"focus": stepSeries("focus", n, time.Minute, 50)}
	ids := make([]string, 50)
	for i := range ids {
		ids[i] = fmt.Sprintf("c%02d", i)
		flat := make([]*float64, n)
		for j := range flat {
			v := 1.0
			flat[j] = &v
		}
		series[ids[i]] = seriesFrom(ids[i], time.Minute, flat)
	}
	u := NewAnalysisUseCase(&fakeReader{series: series}, &fakeGraph{})

	res, warnings, err := u.RelatedSensors(context.Background(), &entity.RelatedSensorsParams{
		FocusID:        "focus",
		CandidateIDs:   ids,
		Read:           readSpec(n),
		CandidateLimit: 20,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 50, res.Coverage.EligibleCount)
	assert.Equal(t, 20, res.Coverage.EvaluatedCount)
	assert.Len(t, res.Coverage.TruncatedCandidateIDs, 30)
	assert.NotEmpty(t, warnings)
}

func TestRelatedSensorsCancellation(t *testing.T) {
	const n = 500
	series := map[string]entity.Series{"focus": stepSeries("focus", n, time.Minute, 50)}
	ids := []string{}
	for _, id := range []string{"c1", "c2", "c3"} {
		series[id] = stepSeries(id, n, time.Minute, 51)
		ids = append(ids, id)
	}
	u := NewAnalysisUseCase(&fakeReader{series: series}, &fakeGraph{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := u.RelatedSensors(ctx, &entity.RelatedSensorsParams{
		FocusID: "focus", CandidateIDs: ids, Read: readSpec(n),
	}, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunDispatch(t *testing.T) {
	f := &fakeReader{series: map[string]entity.Series{
		"focus": stepSeries("focus", 200, time.Minute, 50),
		"cand":  stepSeries("cand", 200, time.Minute, 51),
	}}
	u := NewAnalysisUseCase(f, &fakeGraph{})

	out, _, err := u.Run(context.Background(), &entity.EventMatchParams{
		FocusID: "focus", CandidateID: "cand", Read: readSpec(200), MaxLagSec: 120,
	}, nil)
	require.NoError(t, err)
	_, ok := out.(*entity.EventMatchResult)
	assert.True(t, ok)
}
