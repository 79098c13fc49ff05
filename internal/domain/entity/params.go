package entity

import (
	"encoding/json"
	"fmt"
	"time"
)

// Hard upper bounds. These exist to keep the worst-case duration of a single
// job bounded without mid-computation preemption.
const (
	MaxRangeBuckets   = 100_000
	MaxPoolSize       = 200
	MaxLagBuckets     = 96
	MaxProfileWindow  = 2048
	MaxProfilePoints  = 20_000
	MaxTopK           = 25
	MinIntervalSec    = 10
)

type ReadSpec struct {
	Start               time.Time   `json:"start"`
	End                 time.Time   `json:"end"`
	IntervalSec         int         `json:"interval_sec"`
	Aggregation         Aggregation `json:"aggregation"`
	QualityPolicy       string      `json:"quality_policy,omitempty"`
	MinSamplesPerBucket int         `json:"min_samples_per_bucket,omitempty"`
}

func (r *ReadSpec) Interval() time.Duration { return time.Duration(r.IntervalSec) * time.Second }

func (r *ReadSpec) NumBuckets() int {
	if r.IntervalSec <= 0 {
		return 0
	}
	return int(r.End.Sub(r.Start) / r.Interval())
}

func (r *ReadSpec) Validate() error {
	if !r.End.After(r.Start) {
		return fmt.Errorf("read range: end must be after start")
	}
	if r.IntervalSec < MinIntervalSec {
		return fmt.Errorf("read range: interval_sec must be >= %d", MinIntervalSec)
	}
	if n := r.NumBuckets(); n > MaxRangeBuckets {
		return fmt.Errorf("read range: %d buckets exceeds limit %d", n, MaxRangeBuckets)
	}
	switch r.Aggregation {
	case "", AggAvg, AggLast, AggSum, AggMin, AggMax, AggAuto:
	default:
		return fmt.Errorf("read range: unknown aggregation %q", r.Aggregation)
	}
	return nil
}

type DetectSpec struct {
	ThresholdZ      float64 `json:"threshold_z,omitempty"`
	Adaptive        bool    `json:"adaptive,omitempty"`
	GapMaxBuckets   int     `json:"gap_max_buckets,omitempty"`
	NMSWindow       int     `json:"nms_window,omitempty"`
	Deseason        bool    `json:"deseason,omitempty"`
	ExcludeBoundary bool    `json:"exclude_boundary,omitempty"`
}

// JobParams is the closed set of per-kind payloads. Dispatch is an
// exhaustive type switch in the job engine.
type JobParams interface {
	JobKind() JobKind
	Validate() error
}

type CorrelationMatrixParams struct {
	SensorIDs     []string `json:"sensor_ids"`
	Read          ReadSpec `json:"read"`
	Mode          string   `json:"mode"` // levels|deltas
	MaxLagBuckets int      `json:"max_lag_buckets,omitempty"`
	Alpha         float64  `json:"alpha,omitempty"`
	MinAbsR       float64  `json:"min_abs_r,omitempty"`
	MinOverlap    int      `json:"min_overlap,omitempty"`
}

func (p *CorrelationMatrixParams) JobKind() JobKind { return KindCorrelationMatrix }

func (p *CorrelationMatrixParams) Validate() error {
	if len(p.SensorIDs) < 2 {
		return fmt.Errorf("correlation_matrix: at least 2 sensor_ids required")
	}
	if len(p.SensorIDs) > MaxPoolSize {
		return fmt.Errorf("correlation_matrix: %d sensors exceeds pool limit %d", len(p.SensorIDs), MaxPoolSize)
	}
	if p.Mode != "levels" && p.Mode != "deltas" {
		return fmt.Errorf("correlation_matrix: mode must be levels or deltas")
	}
	if p.MaxLagBuckets < 0 || p.MaxLagBuckets > MaxLagBuckets {
		return fmt.Errorf("correlation_matrix: max_lag_buckets out of range [0,%d]", MaxLagBuckets)
	}
	if p.Alpha < 0 || p.Alpha >= 1 {
		return fmt.Errorf("correlation_matrix: alpha out of range (0,1)")
	}
	return p.Read.Validate()
}

type MatrixProfileParams struct {
	SensorID      string   `json:"sensor_id"`
	Read          ReadSpec `json:"read"`
	WindowLen     int      `json:"window_len"`
	ExclusionZone int      `json:"exclusion_zone,omitempty"`
	TopK          int      `json:"top_k,omitempty"`
	MaxPoints     int      `json:"max_points,omitempty"`
}

func (p *MatrixProfileParams) JobKind() JobKind { return KindMatrixProfile }

func (p *MatrixProfileParams) Validate() error {
	if p.SensorID == "" {
		return fmt.Errorf("matrix_profile: sensor_id required")
	}
	if p.WindowLen < 4 || p.WindowLen > MaxProfileWindow {
		return fmt.Errorf("matrix_profile: window_len out of range [4,%d]", MaxProfileWindow)
	}
	if p.TopK < 0 || p.TopK > MaxTopK {
		return fmt.Errorf("matrix_profile: top_k out of range [0,%d]", MaxTopK)
	}
	if p.MaxPoints < 0 || p.MaxPoints > MaxProfilePoints {
		return fmt.Errorf("matrix_profile: max_points out of range [0,%d]", MaxProfilePoints)
	}
	return p.Read.Validate()
}

type EventMatchParams struct {
	FocusID          string     `json:"focus_id"`
	CandidateID      string     `json:"candidate_id"`
	Read             ReadSpec   `json:"read"`
	Detect           DetectSpec `json:"detect,omitempty"`
	ToleranceBuckets int        `json:"tolerance_buckets,omitempty"`
	MaxLagSec        int        `json:"max_lag_sec,omitempty"`
	MinOverlap       int        `json:"min_overlap,omitempty"`
}

func (p *EventMatchParams) JobKind() JobKind { return KindEventMatch }

func (p *EventMatchParams) Validate() error {
	if p.FocusID == "" || p.CandidateID == "" {
		return fmt.Errorf("event_match: focus_id and candidate_id required")
	}
	if p.FocusID == p.CandidateID {
		return fmt.Errorf("event_match: focus and candidate must differ")
	}
	if err := p.Read.Validate(); err != nil {
		return err
	}
	if p.MaxLagSec < 0 || p.MaxLagSec > MaxLagBuckets*p.Read.IntervalSec {
		return fmt.Errorf("event_match: max_lag_sec out of range [0,%d]", MaxLagBuckets*p.Read.IntervalSec)
	}
	return nil
}

type CooccurrenceParams struct {
	SensorIDs  []string   `json:"sensor_ids"`
	FocusID    string     `json:"focus_id,omitempty"`
	Read       ReadSpec   `json:"read"`
	Detect     DetectSpec `json:"detect,omitempty"`
	MaxBuckets int        `json:"max_buckets,omitempty"`
}

func (p *CooccurrenceParams) JobKind() JobKind { return KindCooccurrence }

func (p *CooccurrenceParams) Validate() error {
	if len(p.SensorIDs) < 2 {
		return fmt.Errorf("cooccurrence: at least 2 sensor_ids required")
	}
	if len(p.SensorIDs) > MaxPoolSize {
		return fmt.Errorf("cooccurrence: %d sensors exceeds pool limit %d", len(p.SensorIDs), MaxPoolSize)
	}
	return p.Read.Validate()
}

type RelatedSensorsParams struct {
	FocusID             string     `json:"focus_id"`
	CandidateIDs        []string   `json:"candidate_ids,omitempty"`
	Read                ReadSpec   `json:"read"`
	Detect              DetectSpec `json:"detect,omitempty"`
	CandidateLimit      int        `json:"candidate_limit,omitempty"`
	Pinned              []string   `json:"pinned,omitempty"`
	IncludeDerived      bool       `json:"include_derived,omitempty"`
	EnableCorrelation   bool       `json:"enable_correlation,omitempty"`
	ToleranceBuckets    int        `json:"tolerance_buckets,omitempty"`
	MaxLagSec           int        `json:"max_lag_sec,omitempty"`
	MinOverlap          int        `json:"min_overlap,omitempty"`
	MinCoverage         float64    `json:"min_coverage,omitempty"`
	PeriodicityPenalty  bool       `json:"periodicity_penalty,omitempty"`
	ResultLimit         int        `json:"result_limit,omitempty"`
}

func (p *RelatedSensorsParams) JobKind() JobKind { return KindRelatedSensors }

func (p *RelatedSensorsParams) Validate() error {
	if p.FocusID == "" {
		return fmt.Errorf("related_sensors_unified: focus_id required")
	}
	if p.CandidateLimit < 0 || p.CandidateLimit > MaxPoolSize {
		return fmt.Errorf("related_sensors_unified: candidate_limit out of range [0,%d]", MaxPoolSize)
	}
	if p.MinCoverage < 0 || p.MinCoverage > 1 {
		return fmt.Errorf("related_sensors_unified: min_coverage out of range [0,1]")
	}
	return p.Read.Validate()
}

// DecodeParams unmarshals the raw payload for one job kind. The switch is
// exhaustive over JobKind; adding a kind without a case here is a compile-time
// dead end in the engine's matching switch.
func DecodeParams(kind JobKind, raw json.RawMessage) (JobParams, error) {
	var p JobParams
	switch kind {
	case KindCorrelationMatrix:
		p = &CorrelationMatrixParams{}
	case KindMatrixProfile:
		p = &MatrixProfileParams{}
	case KindEventMatch:
		p = &EventMatchParams{}
	case KindCooccurrence:
		p = &CooccurrenceParams{}
	case KindRelatedSensors:
		p = &RelatedSensorsParams{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownJobKind, kind)
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decode %s params: %w", kind, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
