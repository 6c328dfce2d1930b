package monitoring

import (
	"fmt"
)

// Band is the severity band of a single sensor value
type Band string

const (
	BandNormal   Band = "normal"
	BandWarning  Band = "warning"
	BandCritical Band = "critical"
)

// ThresholdSet holds the bounds configured for one sensor type.
// Min and Max are display range hints only; classification uses
// Warning and Critical.
type ThresholdSet struct {
	Min      float64 `json:"min" mapstructure:"min"`
	Max      float64 `json:"max" mapstructure:"max"`
	Warning  float64 `json:"warning" mapstructure:"warning"`
	Critical float64 `json:"critical" mapstructure:"critical"`
}

// Validate checks min <= warning <= critical <= max
func (t ThresholdSet) Validate() error {
	if t.Min > t.Warning || t.Warning > t.Critical || t.Critical > t.Max {
		return fmt.Errorf("%w: expected min <= warning <= critical <= max, got %g/%g/%g/%g",
			ErrInvalidThresholds, t.Min, t.Warning, t.Critical, t.Max)
	}
	return nil
}

// Classify maps value to a band. Lower bounds are inclusive and the
// critical bound is checked first.
func (t ThresholdSet) Classify(value float64) Band {
	if value >= t.Critical {
		return BandCritical
	}
	if value >= t.Warning {
		return BandWarning
	}
	return BandNormal
}

// Thresholds maps each sensor type to its ThresholdSet
type Thresholds map[SensorType]ThresholdSet

// DefaultThresholds returns the factory thresholds of a charging point
func DefaultThresholds() Thresholds {
	return Thresholds{
		SensorCurrent:     {Min: 0, Max: 20, Warning: 15, Critical: 18},
		SensorVoltage:     {Min: 200, Max: 240, Warning: 230, Critical: 235},
		SensorTemperature: {Min: -10, Max: 60, Warning: 45, Critical: 55},
		SensorSmoke:       {Min: 0, Max: 1000, Warning: 300, Critical: 500},
		SensorHumidity:    {Min: 0, Max: 100, Warning: 85, Critical: 95},
		SensorPower:       {Min: 0, Max: 5000, Warning: 3000, Critical: 4500},
	}
}

// Classify returns the band of value for sensorType. A sensor type without
// a ThresholdSet is a configuration gap and fails with ErrUnknownSensorType.
func Classify(sensorType SensorType, value float64, thresholds Thresholds) (Band, error) {
	set, ok := thresholds[sensorType]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownSensorType, sensorType)
	}
	return set.Classify(value), nil
}

// Clone returns an independent copy of th
func (th Thresholds) Clone() Thresholds {
	out := make(Thresholds, len(th))
	for k, v := range th {
		out[k] = v
	}
	return out
}

// ThresholdPatch is a partial update of one ThresholdSet. Nil fields keep
// their current value.
type ThresholdPatch struct {
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	Warning  *float64 `json:"warning,omitempty"`
	Critical *float64 `json:"critical,omitempty"`
}

func (p ThresholdPatch) merge(base ThresholdSet) ThresholdSet {
	if p.Min != nil {
		base.Min = *p.Min
	}
	if p.Max != nil {
		base.Max = *p.Max
	}
	if p.Warning != nil {
		base.Warning = *p.Warning
	}
	if p.Critical != nil {
		base.Critical = *p.Critical
	}
	return base
}

// Apply merges patches over th and returns the resulting mapping. th is
// never modified; on error nothing is applied.
func (th Thresholds) Apply(patches map[SensorType]ThresholdPatch) (Thresholds, error) {
	next := th.Clone()
	for sensorType, patch := range patches {
		if !sensorType.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownSensorType, sensorType)
		}

		merged := patch.merge(next[sensorType])
		if err := merged.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", sensorType, err)
		}
		next[sensorType] = merged
	}
	return next, nil
}

// Validate checks every set in th
func (th Thresholds) Validate() error {
	for sensorType, set := range th {
		if !sensorType.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownSensorType, sensorType)
		}
		if err := set.Validate(); err != nil {
			return fmt.Errorf("%s: %w", sensorType, err)
		}
	}
	return nil
}
