package entity

import "time"

// ReasonCode explains why a cell or candidate was omitted or down-ranked.
// Omissions are always disclosed, never silent.
type ReasonCode string

const (
	ReasonInsufficientOverlap ReasonCode = "insufficient_overlap"
	ReasonNoHistory           ReasonCode = "no_history"
	ReasonBelowThreshold      ReasonCode = "below_threshold"
	ReasonTruncatedByLimit    ReasonCode = "truncated_by_limit"
	ReasonFiltered            ReasonCode = "filtered"
	ReasonDerivedFromFocus    ReasonCode = "derived_from_focus"
)

type CellStatus string

const (
	CellSignificant    CellStatus = "significant"
	CellBelowThreshold CellStatus = "below_threshold"
	CellInsufficient   CellStatus = "insufficient_overlap"
)

// CorrelationCell reports one pair. P and Q are asymptotic approximations
// computed on NEff, not exact small-sample tests; treat them as a ranking
// aid, not a statistical guarantee.
type CorrelationCell struct {
	SensorA string     `json:"sensor_a"`
	SensorB string     `json:"sensor_b"`
	R       float64    `json:"r"`
	Rho     float64    `json:"rho"`
	PRaw    float64    `json:"p_raw"`
	RhoPRaw float64    `json:"rho_p_raw"`
	QValue  float64    `json:"q_value"`
	N       int        `json:"n"`
	NEff    int        `json:"n_eff"`
	LagSec  *int       `json:"lag_sec,omitempty"`
	LagR    *float64   `json:"lag_r,omitempty"`
	Status  CellStatus `json:"status"`
}

type CorrelationMatrixResult struct {
	Mode    string            `json:"mode"`
	Alpha   float64           `json:"alpha"`
	MinAbsR float64           `json:"min_abs_r"`
	Cells   []CorrelationCell `json:"cells"`
	Skipped []SkippedSensor   `json:"skipped,omitempty"`
	Caveats []string          `json:"caveats"`
}

type ProfileMatch struct {
	Index         int       `json:"index"`
	NeighborIndex int       `json:"neighbor_index"`
	Distance      float64   `json:"distance"`
	Ts            time.Time `json:"ts"`
}

type MatrixProfileResult struct {
	SensorID      string         `json:"sensor_id"`
	WindowLen     int            `json:"window_len"`
	ExclusionZone int            `json:"exclusion_zone"`
	Profile       []float64      `json:"profile"`
	ProfileIndex  []int          `json:"profile_index"`
	Motifs        []ProfileMatch `json:"motifs"`
	Anomalies     []ProfileMatch `json:"anomalies"`
	Downsampled   bool           `json:"downsampled"`
	Stride        int            `json:"stride"`
}

type LagScore struct {
	LagSec  int     `json:"lag_sec"`
	F1      float64 `json:"f1"`
	Overlap int     `json:"overlap"`
}

type MatchDirection string

const (
	MatchSame     MatchDirection = "same"
	MatchOpposite MatchDirection = "opposite"
	MatchUnknown  MatchDirection = "unknown"
)

type EventMatchResult struct {
	FocusID     string         `json:"focus_id"`
	CandidateID string         `json:"candidate_id"`
	BestLagSec  int            `json:"best_lag_sec"`
	Overlap     int            `json:"overlap"`
	F1          float64        `json:"f1"`
	Direction   MatchDirection `json:"direction"`
	TopLags     []LagScore     `json:"top_lags,omitempty"`
	Episodes    []Episode      `json:"episodes"`
	Reason      ReasonCode     `json:"reason,omitempty"`
}

type CooccurrenceBucket struct {
	Ts               time.Time `json:"ts"`
	SensorIDs        []string  `json:"sensor_ids"`
	GroupSize        int       `json:"group_size"`
	RawSeverity      float64   `json:"raw_severity"`
	WeightedSeverity float64   `json:"weighted_severity"`
	FocusSeverity    float64   `json:"focus_severity,omitempty"`
}

type CooccurrenceResult struct {
	Mode     string               `json:"mode"`
	PoolSize int                  `json:"pool_size"`
	Buckets  []CooccurrenceBucket `json:"buckets"`
}

type CooccurrenceScore struct {
	Score         float64 `json:"score"`
	SharedBuckets int     `json:"shared_buckets"`
}

type ConfidenceTier string

const (
	TierHigh   ConfidenceTier = "high"
	TierMedium ConfidenceTier = "medium"
	TierLow    ConfidenceTier = "low"
)

type CandidateEvidence struct {
	Event              *EventMatchResult  `json:"event,omitempty"`
	Cooccurrence       *CooccurrenceScore `json:"cooccurrence,omitempty"`
	CorrelationContext *CorrelationCell   `json:"correlation_context,omitempty"`
}

// Candidate carries one sensor's blended evidence. RankScore is relative to
// the pool evaluated in the same run; it is not a probability and is not
// comparable across runs.
type Candidate struct {
	SensorID         string            `json:"sensor_id"`
	RankScore        float64           `json:"rank_score"`
	Tier             ConfidenceTier    `json:"confidence_tier"`
	Evidence         CandidateEvidence `json:"evidence"`
	DerivedFromFocus bool              `json:"derived_from_focus"`
	DependencyPath   []string          `json:"dependency_path,omitempty"`
	DiurnalLag       bool              `json:"diurnal_lag,omitempty"`
}

type ExcludedCandidate struct {
	SensorID       string     `json:"sensor_id"`
	Reason         ReasonCode `json:"reason"`
	DependencyPath []string   `json:"dependency_path,omitempty"`
}

// Coverage discloses truncation: which eligible sensors were evaluated and
// which were cut by the pool limit or the prefilter.
type Coverage struct {
	EligibleCount         int      `json:"eligible_count"`
	EvaluatedCount        int      `json:"evaluated_count"`
	CandidateLimitUsed    int      `json:"candidate_limit_used"`
	TruncatedCandidateIDs []string `json:"truncated_candidate_ids"`
	TruncatedResultIDs    []string `json:"truncated_result_ids"`
	PrefilteredIDs        []string `json:"prefiltered_ids"`
}

type RelatedSensorsResult struct {
	FocusID    string              `json:"focus_id"`
	Candidates []Candidate         `json:"candidates"`
	Excluded   []ExcludedCandidate `json:"excluded,omitempty"`
	Coverage   Coverage            `json:"coverage"`
	Caveats    []string            `json:"caveats"`
}

// StatCaveats is attached to every statistical result. The wording is
// deliberate: significance here is a heuristic ranking aid computed under
// assumptions bucketed telemetry violates.
var StatCaveats = []string{
	"p/q values use asymptotic approximations under an independence assumption that autocorrelated telemetry violates; n_eff shrinkage only partially compensates",
	"lag-search selection bias is only partially corrected; treat significance as a ranking aid, not a guarantee",
	"rank_score is pool-relative, not a probability",
}
