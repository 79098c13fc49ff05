package entity

import "time"

type EventDirection string

const (
	DirectionUp   EventDirection = "up"
	DirectionDown EventDirection = "down"
)

// SensorEvent is a significant bucket-to-bucket change in one series,
// expressed as a robust z-score of the delta.
type SensorEvent struct {
	SensorID   string         `json:"sensor_id"`
	BucketTs   time.Time      `json:"bucket_ts"`
	MagnitudeZ float64        `json:"magnitude_z"`
	Direction  EventDirection `json:"direction"`
	Boundary   bool           `json:"boundary,omitempty"`
}

// Episode is a contiguous window in which two series' events align at one
// lag. Recomputed per job, never persisted.
type Episode struct {
	StartTs   time.Time `json:"start_ts"`
	EndTs     time.Time `json:"end_ts"`
	LagSec    int       `json:"lag_sec"`
	Coverage  float64   `json:"coverage"`
	ScoreMean float64   `json:"score_mean"`
	ScorePeak float64   `json:"score_peak"`
	NumPoints int       `json:"num_points"`
}

// Embedding is a distribution-feature summary of one bucketed window. It
// describes level and shape only; it carries no temporal alignment
// information and must not be used to infer lags.
type Embedding struct {
	Center    float64 `json:"center"`
	Scale     float64 `json:"scale"`
	Skew      float64 `json:"skew"`
	SpikeRate float64 `json:"spike_rate"`
	Coverage  float64 `json:"coverage"`
}
