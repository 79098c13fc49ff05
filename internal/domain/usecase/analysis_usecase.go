package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/analysis/cooccur"
	"github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/analysis/correlation"
	"github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/analysis/eventmatch"
	"github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/analysis/events"
	"github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/analysis/matrixprofile"
	"github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/analysis/ranker"
	"github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/domain/entity"
	"github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/reader"
)

type SeriesReader interface {
	Read(ctx context.Context, req reader.Request) ([]entity.Series, []entity.SkippedSensor, error)
}

type SensorGraph interface {
	IDs() []string
	Dependency(focusID, candidateID string) entity.DependencyStatus
}

// ProgressFunc reports coarse phase progress. Implementations must be cheap:
// it is called from inside compute loops.
type ProgressFunc func(phase string, done, total int)

type AnalysisUseCase struct {
	Reader  SeriesReader
	Sensors SensorGraph
	log     *logrus.Entry
}

func NewAnalysisUseCase(r SeriesReader, g SensorGraph) *AnalysisUseCase {
	return &AnalysisUseCase{
		Reader:  r,
		Sensors: g,
		log:     logrus.WithField("component", "analysis"),
	}
}

// Run dispatches one validated job. The switch is exhaustive over JobKind.
// Warnings carry non-fatal degradations (skipped sensors, deseason skips)
// that belong on the job record rather than in the result payload.
func (u *AnalysisUseCase) Run(ctx context.Context, params entity.JobParams, progress ProgressFunc) (any, []string, error) {
	switch p := params.(type) {
	case *entity.CorrelationMatrixParams:
		return u.CorrelationMatrix(ctx, p, progress)
	case *entity.MatrixProfileParams:
		return u.MatrixProfile(ctx, p, progress)
	case *entity.EventMatchParams:
		return u.EventMatch(ctx, p, progress)
	case *entity.CooccurrenceParams:
		return u.Cooccurrence(ctx, p, progress)
	case *entity.RelatedSensorsParams:
		return u.RelatedSensors(ctx, p, progress)
	default:
		return nil, nil, fmt.Errorf("%w: %T", entity.ErrUnknownJobKind, params)
	}
}

func (u *AnalysisUseCase) CorrelationMatrix(ctx context.Context, p *entity.CorrelationMatrixParams, progress ProgressFunc) (*entity.CorrelationMatrixResult, []string, error) {
	series, skipped, err := u.read(ctx, p.SensorIDs, p.Read, progress)
	if err != nil {
		return nil, nil, err
	}
	res, err := correlation.Matrix(ctx, series, correlation.Options{
		Mode:          p.Mode,
		MaxLagBuckets: p.MaxLagBuckets,
		Alpha:         p.Alpha,
		MinAbsR:       p.MinAbsR,
		MinOverlap:    p.MinOverlap,
	}, phased(progress, "correlate"))
	if err != nil {
		return nil, nil, err
	}
	res.Skipped = skipped
	return res, skipWarnings(skipped), nil
}

func (u *AnalysisUseCase) MatrixProfile(ctx context.Context, p *entity.MatrixProfileParams, progress ProgressFunc) (*entity.MatrixProfileResult, []string, error) {
	series, skipped, err := u.read(ctx, []string{p.SensorID}, p.Read, progress)
	if err != nil {
		return nil, nil, err
	}
	if len(series) == 0 {
		return nil, nil, fmt.Errorf("matrix_profile: sensor %q: no readable series", p.SensorID)
	}
	res, err := matrixprofile.Compute(ctx, &series[0], matrixprofile.Options{
		Window:        p.WindowLen,
		ExclusionZone: p.ExclusionZone,
		TopK:          p.TopK,
		MaxPoints:     p.MaxPoints,
	}, phased(progress, "profile"))
	if err != nil {
		return nil, nil, err
	}
	return res, skipWarnings(skipped), nil
}

func (u *AnalysisUseCase) EventMatch(ctx context.Context, p *entity.EventMatchParams, progress ProgressFunc) (*entity.EventMatchResult, []string, error) {
	series, skipped, err := u.read(ctx, []string{p.FocusID, p.CandidateID}, p.Read, progress)
	if err != nil {
		return nil, nil, err
	}
	bySensor := indexSeries(series)
	fs, ok := bySensor[p.FocusID]
	if !ok {
		return nil, nil, fmt.Errorf("event_match: focus %q: no readable series", p.FocusID)
	}
	cs, ok := bySensor[p.CandidateID]
	if !ok {
		return nil, nil, fmt.Errorf("event_match: candidate %q: no readable series", p.CandidateID)
	}

	warnings := skipWarnings(skipped)
	cfg := detectConfig(p.Detect)
	fres := events.Detect(fs, cfg)
	cres := events.Detect(cs, cfg)
	warnings = append(warnings, deseasonWarnings(p.FocusID, fres, p.CandidateID, cres)...)

	res := eventmatch.Match(fres.Events, cres.Events, p.Read.Interval(), eventmatch.Options{
		ToleranceBuckets: p.ToleranceBuckets,
		MaxLagBuckets:    lagBuckets(p.MaxLagSec, p.Read.IntervalSec),
		MinOverlap:       p.MinOverlap,
	})
	res.FocusID = p.FocusID
	res.CandidateID = p.CandidateID
	return res, warnings, nil
}

func (u *AnalysisUseCase) Cooccurrence(ctx context.Context, p *entity.CooccurrenceParams, progress ProgressFunc) (*entity.CooccurrenceResult, []string, error) {
	series, skipped, err := u.read(ctx, p.SensorIDs, p.Read, progress)
	if err != nil {
		return nil, nil, err
	}
	cfg := detectConfig(p.Detect)
	eventsBySensor := make(map[string][]entity.SensorEvent, len(series))
	for i := range series {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		eventsBySensor[series[i].SensorID] = events.Detect(&series[i], cfg).Events
		if progress != nil {
			progress("detect", i+1, len(series))
		}
	}
	res := cooccur.Scan(eventsBySensor, len(series), cooccur.Options{
		FocusID:    p.FocusID,
		MaxBuckets: p.MaxBuckets,
	})
	return res, skipWarnings(skipped), nil
}

func (u *AnalysisUseCase) RelatedSensors(ctx context.Context, p *entity.RelatedSensorsParams, progress ProgressFunc) (*entity.RelatedSensorsResult, []string, error) {
	candidateIDs := p.CandidateIDs
	if len(candidateIDs) == 0 {
		candidateIDs = u.Sensors.IDs()
	}
	pool, truncated := ranker.Pool(p.FocusID, candidateIDs, p.Pinned, p.CandidateLimit)

	series, skipped, err := u.read(ctx, append([]string{p.FocusID}, pool...), p.Read, progress)
	if err != nil {
		return nil, nil, err
	}
	bySensor := indexSeries(series)
	fs, ok := bySensor[p.FocusID]
	if !ok {
		return nil, nil, fmt.Errorf("related_sensors: focus %q: no readable series", p.FocusID)
	}

	warnings := skipWarnings(skipped)
	cfg := detectConfig(p.Detect)
	fres := events.Detect(fs, cfg)
	if fres.DeseasonSkipped != "" {
		warnings = append(warnings, fmt.Sprintf("deseason skipped for %s: %s", p.FocusID, fres.DeseasonSkipped))
	}

	// Detect once per candidate, then fan the events into the matcher and the
	// co-occurrence scan.
	type detected struct {
		series *entity.Series
		events []entity.SensorEvent
	}
	cands := make(map[string]detected, len(pool))
	eventsBySensor := map[string][]entity.SensorEvent{p.FocusID: fres.Events}
	for i, id := range pool {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		s, ok := bySensor[id]
		if !ok {
			continue
		}
		evs := events.Detect(s, cfg).Events
		cands[id] = detected{series: s, events: evs}
		eventsBySensor[id] = evs
		if progress != nil {
			progress("detect", i+1, len(pool))
		}
	}

	coScan := cooccur.Scan(eventsBySensor, len(eventsBySensor), cooccur.Options{FocusID: p.FocusID})
	coScores := cooccur.FocusScores(coScan, p.FocusID, eventsBySensor)

	var cells map[string]*entity.CorrelationCell
	if p.EnableCorrelation {
		candSeries := make([]entity.Series, 0, len(cands))
		for _, id := range pool {
			if d, ok := cands[id]; ok {
				candSeries = append(candSeries, *d.series)
			}
		}
		// The ranker's correlation channel works on deltas: level trends are
		// exactly the shared drift this evidence must not reward.
		cells, err = correlation.Row(ctx, *fs, candSeries, correlation.Options{Mode: "deltas", MinOverlap: p.MinOverlap})
		if err != nil {
			return nil, nil, err
		}
	}

	matchOpts := eventmatch.Options{
		ToleranceBuckets: p.ToleranceBuckets,
		MaxLagBuckets:    lagBuckets(p.MaxLagSec, p.Read.IntervalSec),
		MinOverlap:       p.MinOverlap,
	}
	inputs := make([]ranker.CandidateInput, 0, len(pool))
	for i, id := range pool {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		in := ranker.CandidateInput{
			SensorID:   id,
			Dependency: u.Sensors.Dependency(p.FocusID, id),
		}
		if d, ok := cands[id]; ok {
			in.Coverage = d.series.Coverage()
			in.Events = d.events
			m := eventmatch.Match(fres.Events, d.events, p.Read.Interval(), matchOpts)
			m.FocusID, m.CandidateID = p.FocusID, id
			in.Match = m
			if sc, ok := coScores[id]; ok {
				in.Cooccur = &sc
			}
			in.Correlation = cells[id]
		}
		inputs = append(inputs, in)
		if progress != nil {
			progress("match", i+1, len(pool))
		}
	}

	res := ranker.Rank(p.FocusID, inputs, ranker.Options{
		CandidateLimit:     p.CandidateLimit,
		ResultLimit:        p.ResultLimit,
		MinCoverage:        p.MinCoverage,
		IncludeDerived:     p.IncludeDerived,
		PeriodicityPenalty: p.PeriodicityPenalty,
	})
	res.Coverage.TruncatedCandidateIDs = truncated
	// The eligible population includes sensors the pool stage truncated away,
	// not just the ones handed to the ranker.
	res.Coverage.EligibleCount += len(truncated)
	for _, id := range truncated {
		res.Excluded = append(res.Excluded, entity.ExcludedCandidate{
			SensorID: id, Reason: entity.ReasonTruncatedByLimit,
		})
	}
	if len(truncated) > 0 {
		warnings = append(warnings, fmt.Sprintf("candidate pool truncated to %d of %d eligible sensors", len(pool), len(pool)+len(truncated)))
	}
	return res, warnings, nil
}

func (u *AnalysisUseCase) read(ctx context.Context, ids []string, spec entity.ReadSpec, progress ProgressFunc) ([]entity.Series, []entity.SkippedSensor, error) {
	if progress != nil {
		progress("read", 0, 1)
	}
	start := time.Now()
	series, skipped, err := u.Reader.Read(ctx, reader.Request{SensorIDs: ids, Spec: spec})
	if err != nil {
		return nil, nil, err
	}
	u.log.WithFields(logrus.Fields{
		"sensors":  len(ids),
		"skipped":  len(skipped),
		"duration": time.Since(start),
	}).Debug("series read")
	if progress != nil {
		progress("read", 1, 1)
	}
	return series, skipped, nil
}

func indexSeries(series []entity.Series) map[string]*entity.Series {
	out := make(map[string]*entity.Series, len(series))
	for i := range series {
		out[series[i].SensorID] = &series[i]
	}
	return out
}

func detectConfig(d entity.DetectSpec) events.Config {
	return events.Config{
		ThresholdZ:      d.ThresholdZ,
		Adaptive:        d.Adaptive,
		GapMaxBuckets:   d.GapMaxBuckets,
		NMSWindow:       d.NMSWindow,
		Deseason:        d.Deseason,
		ExcludeBoundary: d.ExcludeBoundary,
	}
}

func lagBuckets(maxLagSec, intervalSec int) int {
	if maxLagSec <= 0 || intervalSec <= 0 {
		return 0
	}
	return maxLagSec / intervalSec
}

func phased(progress ProgressFunc, phase string) func(done, total int) {
	if progress == nil {
		return nil
	}
	return func(done, total int) { progress(phase, done, total) }
}

func skipWarnings(skipped []entity.SkippedSensor) []string {
	var out []string
	for _, s := range skipped {
		out = append(out, fmt.Sprintf("sensor %s skipped: %s", s.SensorID, s.Reason))
	}
	return out
}

func deseasonWarnings(focusID string, f events.Result, candID string, c events.Result) []string {
	var out []string
	if f.DeseasonSkipped != "" {
		out = append(out, fmt.Sprintf("deseason skipped for %s: %s", focusID, f.DeseasonSkipped))
	}
	if c.DeseasonSkipped != "" {
		out = append(out, fmt.Sprintf("deseason skipped for %s: %s", candID, c.DeseasonSkipped))
	}
	return out
}
