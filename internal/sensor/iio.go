package sensor

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sweeney/irrigation-controller/internal/logic"
)

// IIO attribute names exposed by the kernel dht11 driver (which also
// handles the DHT22). Values are in milli-units.
const (
	attrTemperature = "in_temp_input"
	attrHumidity    = "in_humidityrelative_input"
)

// IIOReader reads sensors through the Linux Industrial I/O sysfs interface.
type IIOReader struct {
	climateDir string
	soilPath   string
	soilMax    int
}

// NewIIOReader reads temperature and humidity from climateDir
// (e.g. /sys/bus/iio/devices/iio:device0) and the soil probe from soilPath
// (e.g. .../iio:device1/in_voltage0_raw). soilMax is the ADC's full-scale
// raw value; readings are rescaled to 0..1023.
func NewIIOReader(climateDir, soilPath string, soilMax int) (*IIOReader, error) {
	if soilMax <= 0 {
		return nil, fmt.Errorf("soil ADC max must be positive, got %d", soilMax)
	}
	return &IIOReader{climateDir: climateDir, soilPath: soilPath, soilMax: soilMax}, nil
}

// Temperature returns degrees Celsius.
func (r *IIOReader) Temperature() (float64, error) {
	return r.readMilli(filepath.Join(r.climateDir, attrTemperature))
}

// Humidity returns relative humidity percent.
func (r *IIOReader) Humidity() (float64, error) {
	return r.readMilli(filepath.Join(r.climateDir, attrHumidity))
}

// SoilRaw returns the probe reading scaled to 0..1023.
func (r *IIOReader) SoilRaw() (int, error) {
	v, err := readInt(r.soilPath)
	if err != nil {
		return 0, err
	}
	if v < 0 || v > r.soilMax {
		return 0, fmt.Errorf("%w: soil raw %d outside 0..%d", logic.ErrSensorRead, v, r.soilMax)
	}
	return int(int64(v) * logic.SoilRawMax / int64(r.soilMax)), nil
}

func (r *IIOReader) readMilli(path string) (float64, error) {
	v, err := readInt(path)
	if err != nil {
		return 0, err
	}
	return float64(v) / 1000, nil
}

// The dht11 driver returns EIO on checksum or timing failures, which is
// routine; callers treat it as a skipped reading.
func readInt(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", logic.ErrSensorRead, err)
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("%w: parse %s: %v", logic.ErrSensorRead, path, err)
	}
	return v, nil
}
