// Package sensor reads the climate and soil-moisture sensors.
package sensor

import (
	"fmt"
	"math"

	"github.com/sweeney/irrigation-controller/internal/logic"
)

// Reader supplies one value per call. Every error wraps logic.ErrSensorRead.
type Reader interface {
	Temperature() (float64, error) // degrees Celsius
	Humidity() (float64, error)    // relative humidity percent
	SoilRaw() (int, error)         // 0..1023, 0 is wettest
}

// Plausible ranges of a DHT22.
const (
	MinTemperature = -40.0
	MaxTemperature = 80.0
	MinHumidity    = 0.0
	MaxHumidity    = 100.0
)

// ValidateClimate rejects NaN, infinite and out-of-range readings.
func ValidateClimate(temp, hum float64) error {
	if math.IsNaN(temp) || math.IsInf(temp, 0) || temp < MinTemperature || temp > MaxTemperature {
		return fmt.Errorf("%w: temperature %v", logic.ErrSensorRead, temp)
	}
	if math.IsNaN(hum) || math.IsInf(hum, 0) || hum < MinHumidity || hum > MaxHumidity {
		return fmt.Errorf("%w: humidity %v", logic.ErrSensorRead, hum)
	}
	return nil
}

// ValidateSoil rejects raw readings outside 0..1023.
func ValidateSoil(raw int) error {
	if raw < 0 || raw > logic.SoilRawMax {
		return fmt.Errorf("%w: soil raw %d", logic.ErrSensorRead, raw)
	}
	return nil
}
