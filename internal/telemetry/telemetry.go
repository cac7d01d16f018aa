// Package telemetry uploads sensor readings to the remote service.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sweeney/irrigation-controller/internal/logic"
	"github.com/sweeney/irrigation-controller/internal/sensor"
)

// ClimatePayload is the body posted to the climate endpoint.
type ClimatePayload struct {
	Device      string  `json:"device"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
}

// SoilPayload is the body posted to the soil endpoint.
type SoilPayload struct {
	Device   string `json:"device"`
	Moisture int    `json:"moisture"`
}

// Config names the device and the two endpoints.
type Config struct {
	DeviceID   string
	ClimateURL string
	SoilURL    string
}

// Reporter reads one sensor channel per report and posts it once.
// There is no retry and no queue; the next interval simply tries again.
type Reporter struct {
	cfg     Config
	client  *http.Client
	sensors sensor.Reader
}

// New creates a Reporter. The client's timeout bounds every report.
func New(cfg Config, client *http.Client, sensors sensor.Reader) *Reporter {
	return &Reporter{cfg: cfg, client: client, sensors: sensors}
}

// ReportClimate posts temperature and humidity. An invalid reading is not
// sent and the error wraps logic.ErrSensorRead. The payload is returned
// whenever the reading was valid, even if the upload failed.
func (r *Reporter) ReportClimate(ctx context.Context) (*ClimatePayload, error) {
	temp, err := r.sensors.Temperature()
	if err != nil {
		return nil, fmt.Errorf("read temperature: %w", err)
	}
	hum, err := r.sensors.Humidity()
	if err != nil {
		return nil, fmt.Errorf("read humidity: %w", err)
	}
	if err := sensor.ValidateClimate(temp, hum); err != nil {
		return nil, err
	}

	p := &ClimatePayload{Device: r.cfg.DeviceID, Temperature: temp, Humidity: hum}
	return p, r.post(ctx, r.cfg.ClimateURL, p)
}

// ReportSoil posts the soil moisture percentage.
func (r *Reporter) ReportSoil(ctx context.Context) (*SoilPayload, error) {
	raw, err := r.sensors.SoilRaw()
	if err != nil {
		return nil, fmt.Errorf("read soil: %w", err)
	}
	if err := sensor.ValidateSoil(raw); err != nil {
		return nil, err
	}

	p := &SoilPayload{Device: r.cfg.DeviceID, Moisture: logic.MoisturePercent(raw)}
	return p, r.post(ctx, r.cfg.SoilURL, p)
}

func (r *Reporter) post(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: create request: %v", logic.ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", logic.ErrTransport, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%w: status %d", logic.ErrTransport, resp.StatusCode)
	}
	return nil
}
