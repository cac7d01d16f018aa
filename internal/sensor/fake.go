package sensor

import (
	"errors"
	"fmt"

	"github.com/sweeney/irrigation-controller/internal/logic"
)

// Sample is a single scripted reading.
type Sample struct {
	Temperature float64
	Humidity    float64
	SoilRaw     int
}

// FakeReader is a test double that returns scripted readings.
// Each SoilRaw call consumes the next sample; climate calls read the
// current sample without advancing. Once exhausted, the last sample repeats.
type FakeReader struct {
	Samples []Sample

	index int

	// ClimateError, if set, is returned by Temperature and Humidity.
	ClimateError error

	// SoilError, if set, is returned by SoilRaw.
	SoilError error

	// SoilReads counts SoilRaw calls.
	SoilReads int
}

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples ...Sample) *FakeReader {
	return &FakeReader{Samples: samples}
}

func (f *FakeReader) current() (Sample, error) {
	if len(f.Samples) == 0 {
		return Sample{}, fmt.Errorf("%w: %v", logic.ErrSensorRead, errors.New("no samples configured"))
	}
	return f.Samples[f.index], nil
}

// Temperature returns the current sample's temperature.
func (f *FakeReader) Temperature() (float64, error) {
	if f.ClimateError != nil {
		return 0, f.ClimateError
	}
	s, err := f.current()
	return s.Temperature, err
}

// Humidity returns the current sample's humidity.
func (f *FakeReader) Humidity() (float64, error) {
	if f.ClimateError != nil {
		return 0, f.ClimateError
	}
	s, err := f.current()
	return s.Humidity, err
}

// SoilRaw returns the current sample's soil reading and advances.
func (f *FakeReader) SoilRaw() (int, error) {
	f.SoilReads++
	if f.SoilError != nil {
		return 0, f.SoilError
	}
	s, err := f.current()
	if err != nil {
		return 0, err
	}
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return s.SoilRaw, nil
}
