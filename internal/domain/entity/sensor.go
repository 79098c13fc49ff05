package entity

type SensorKind string

const (
	KindState    SensorKind = "state"
	KindCounter  SensorKind = "counter"
	KindPulse    SensorKind = "pulse"
	KindAnalog   SensorKind = "analog"
	KindCircular SensorKind = "circular"
)

type Sensor struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Unit        string     `json:"unit"`
	Kind        SensorKind `json:"kind"`
	ReadOnly    bool       `json:"read_only"`
	Provider    string     `json:"provider"`
	DerivedFrom []string   `json:"derived_from,omitempty"`
}

// DependencyStatus is the outcome of walking the derivation graph between a
// candidate and the focus sensor. A cyclic or over-deep graph yields
// DependencyUnknown, not an error.
type DependencyStatus string

const (
	DependencyIndependent DependencyStatus = "independent"
	DependencyDerived     DependencyStatus = "derived"
	DependencyUnknown     DependencyStatus = "unknown"
)
