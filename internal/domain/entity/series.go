package entity

import "time"

type Quality string

const (
	QualityGood Quality = "good"
	QualityBad  Quality = "bad"
)

type Aggregation string

const (
	AggAvg  Aggregation = "avg"
	AggLast Aggregation = "last"
	AggSum  Aggregation = "sum"
	AggMin  Aggregation = "min"
	AggMax  Aggregation = "max"
	AggAuto Aggregation = "auto"
)

type RawSample struct {
	SensorID string    `json:"sensor_id"`
	Ts       time.Time `json:"ts"`
	Value    float64   `json:"value"`
	Quality  Quality   `json:"quality"`
}

// Bucket is a fixed-width aggregate of raw samples. Value is nil when the
// bucket had no qualifying samples; gaps are preserved, never interpolated.
type Bucket struct {
	SensorID    string    `json:"sensor_id"`
	Start       time.Time `json:"start"`
	Value       *float64  `json:"value"`
	SampleCount int       `json:"sample_count"`
	Quality     Quality   `json:"quality"`
}

// Series holds one sensor's buckets at a fixed stride, one bucket per stride
// in the requested range, strictly increasing Start.
type Series struct {
	SensorID string        `json:"sensor_id"`
	Interval time.Duration `json:"interval"`
	Buckets  []Bucket      `json:"buckets"`
}

func (s *Series) Len() int { return len(s.Buckets) }

func (s *Series) IsGap(i int) bool { return s.Buckets[i].Value == nil }

// Coverage is the fraction of buckets carrying a value.
func (s *Series) Coverage() float64 {
	if len(s.Buckets) == 0 {
		return 0
	}
	n := 0
	for i := range s.Buckets {
		if s.Buckets[i].Value != nil {
			n++
		}
	}
	return float64(n) / float64(len(s.Buckets))
}

// Values returns the non-gap values in bucket order together with their
// bucket indexes.
func (s *Series) Values() ([]float64, []int) {
	vals := make([]float64, 0, len(s.Buckets))
	idx := make([]int, 0, len(s.Buckets))
	for i := range s.Buckets {
		if v := s.Buckets[i].Value; v != nil {
			vals = append(vals, *v)
			idx = append(idx, i)
		}
	}
	return vals, idx
}

type SkippedSensor struct {
	SensorID string `json:"sensor_id"`
	Reason   string `json:"reason"`
}
