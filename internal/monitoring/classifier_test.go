package monitoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_Bands(t *testing.T) {
	thresholds := DefaultThresholds()

	tests := []struct {
		name       string
		sensorType SensorType
		value      float64
		want       Band
	}{
		{"current below warning", SensorCurrent, 10, BandNormal},
		{"current at warning", SensorCurrent, 15, BandWarning},
		{"current between warning and critical", SensorCurrent, 17.9, BandWarning},
		{"current at critical", SensorCurrent, 18, BandCritical},
		{"overcurrent example", SensorCurrent, 19.5, BandCritical},
		{"overheat example", SensorTemperature, 58, BandCritical},
		{"temperature below min is still normal", SensorTemperature, -40, BandNormal},
		{"smoke above max is critical", SensorSmoke, 5000, BandCritical},
		{"humidity warning", SensorHumidity, 90, BandWarning},
		{"power normal", SensorPower, 0, BandNormal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			band, err := Classify(tt.sensorType, tt.value, thresholds)
			require.NoError(t, err)
			assert.Equal(t, tt.want, band)
		})
	}
}

func TestClassify_UnknownSensorType(t *testing.T) {
	thresholds := Thresholds{SensorCurrent: {Min: 0, Max: 20, Warning: 15, Critical: 18}}

	band, err := Classify(SensorVoltage, 231, thresholds)
	assert.ErrorIs(t, err, ErrUnknownSensorType)
	assert.Empty(t, band)

	_, err = Classify(SensorType("infrared"), 1, DefaultThresholds())
	assert.ErrorIs(t, err, ErrUnknownSensorType)
}

func TestThresholdSet_ClassifyProperty(t *testing.T) {
	set := ThresholdSet{Min: 0, Max: 100, Warning: 40, Critical: 70}

	for v := -50.0; v <= 150; v += 0.5 {
		band := set.Classify(v)
		switch {
		case v >= set.Critical:
			assert.Equal(t, BandCritical, band, "value %v", v)
		case v >= set.Warning:
			assert.Equal(t, BandWarning, band, "value %v", v)
		default:
			assert.Equal(t, BandNormal, band, "value %v", v)
		}
	}
}

func TestThresholdSet_EqualBoundsResolveCritical(t *testing.T) {
	set := ThresholdSet{Min: 0, Max: 10, Warning: 5, Critical: 5}
	assert.Equal(t, BandCritical, set.Classify(5))
	assert.Equal(t, BandNormal, set.Classify(4.99))
}

func TestThresholdSet_Validate(t *testing.T) {
	assert.NoError(t, ThresholdSet{Min: 0, Max: 20, Warning: 15, Critical: 18}.Validate())
	assert.NoError(t, ThresholdSet{Min: 5, Max: 5, Warning: 5, Critical: 5}.Validate())
	assert.ErrorIs(t, ThresholdSet{Min: 0, Max: 20, Warning: 19, Critical: 18}.Validate(), ErrInvalidThresholds)
	assert.ErrorIs(t, ThresholdSet{Min: 0, Max: 10, Warning: 5, Critical: 18}.Validate(), ErrInvalidThresholds)
	assert.ErrorIs(t, ThresholdSet{Min: 16, Max: 20, Warning: 15, Critical: 18}.Validate(), ErrInvalidThresholds)
}

func TestDefaultThresholds_AreSane(t *testing.T) {
	thresholds := DefaultThresholds()
	assert.NoError(t, thresholds.Validate())
	for _, st := range SensorTypes {
		assert.Contains(t, thresholds, st)
	}
}

func TestThresholds_Apply(t *testing.T) {
	current := DefaultThresholds()

	t.Run("Should merge partial patch", func(t *testing.T) {
		warning := 16.0
		next, err := current.Apply(map[SensorType]ThresholdPatch{
			SensorCurrent: {Warning: &warning},
		})
		require.NoError(t, err)

		assert.Equal(t, ThresholdSet{Min: 0, Max: 20, Warning: 16, Critical: 18}, next[SensorCurrent])
		assert.Equal(t, 15.0, current[SensorCurrent].Warning, "receiver must not change")
		assert.Equal(t, current[SensorVoltage], next[SensorVoltage])
	})

	t.Run("Should reject insane result and leave receiver untouched", func(t *testing.T) {
		critical := 10.0
		next, err := current.Apply(map[SensorType]ThresholdPatch{
			SensorCurrent: {Critical: &critical},
		})
		assert.ErrorIs(t, err, ErrInvalidThresholds)
		assert.Nil(t, next)
		assert.Equal(t, 18.0, current[SensorCurrent].Critical)
	})

	t.Run("Should reject unknown sensor type", func(t *testing.T) {
		v := 1.0
		_, err := current.Apply(map[SensorType]ThresholdPatch{
			SensorType("infrared"): {Warning: &v},
		})
		assert.ErrorIs(t, err, ErrUnknownSensorType)
	})
}

func TestParseSensorType(t *testing.T) {
	st, err := ParseSensorType("voltage")
	require.NoError(t, err)
	assert.Equal(t, SensorVoltage, st)
	assert.Equal(t, "V", st.Unit())

	_, err = ParseSensorType("infrared")
	assert.ErrorIs(t, err, ErrUnknownSensorType)
}
