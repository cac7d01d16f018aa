package telemetry

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/irrigation-controller/internal/logic"
	"github.com/sweeney/irrigation-controller/internal/sensor"
)

// recorder is a fake telemetry endpoint that records request bodies.
type recorder struct {
	mu     sync.Mutex
	status int
	bodies map[string][]map[string]any
	ctypes []string
}

func newRecorder(t *testing.T, status int) (*recorder, *httptest.Server) {
	t.Helper()
	rec := &recorder{status: status, bodies: map[string][]map[string]any{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		rec.mu.Lock()
		rec.bodies[r.URL.Path] = append(rec.bodies[r.URL.Path], body)
		rec.ctypes = append(rec.ctypes, r.Header.Get("Content-Type"))
		rec.mu.Unlock()
		w.WriteHeader(rec.status)
	}))
	t.Cleanup(srv.Close)
	return rec, srv
}

func newReporter(srv *httptest.Server, sensors sensor.Reader) *Reporter {
	return New(Config{
		DeviceID:   "XE23214",
		ClimateURL: srv.URL + "/dht/data",
		SoilURL:    srv.URL + "/soil/data",
	}, &http.Client{Timeout: 5 * time.Second}, sensors)
}

func TestReportClimate(t *testing.T) {
	rec, srv := newRecorder(t, http.StatusCreated)
	r := newReporter(srv, sensor.NewFakeReader(sensor.Sample{Temperature: 27.5, Humidity: 64.25}))

	p, err := r.ReportClimate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &ClimatePayload{Device: "XE23214", Temperature: 27.5, Humidity: 64.25}, p)

	require.Len(t, rec.bodies["/dht/data"], 1)
	body := rec.bodies["/dht/data"][0]
	assert.Equal(t, "XE23214", body["device"])
	assert.Equal(t, 27.5, body["temperature"])
	assert.Equal(t, 64.25, body["humidity"])
	assert.Equal(t, "application/json", rec.ctypes[0])
}

func TestReportSoil(t *testing.T) {
	rec, srv := newRecorder(t, http.StatusOK)
	r := newReporter(srv, sensor.NewFakeReader(sensor.Sample{SoilRaw: 573}))

	p, err := r.ReportSoil(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 44, p.Moisture)

	require.Len(t, rec.bodies["/soil/data"], 1)
	body := rec.bodies["/soil/data"][0]
	assert.Equal(t, "XE23214", body["device"])
	assert.Equal(t, float64(44), body["moisture"])
	assert.Len(t, body, 2)
}

func TestReportNonSuccessStatus(t *testing.T) {
	for _, status := range []int{http.StatusAccepted, http.StatusBadRequest, http.StatusInternalServerError} {
		_, srv := newRecorder(t, status)
		r := newReporter(srv, sensor.NewFakeReader(sensor.Sample{Temperature: 20, Humidity: 50, SoilRaw: 10}))

		p, err := r.ReportClimate(context.Background())
		assert.ErrorIs(t, err, logic.ErrTransport, "status %d", status)
		assert.NotNil(t, p, "reading is still returned")

		_, err = r.ReportSoil(context.Background())
		assert.ErrorIs(t, err, logic.ErrTransport, "status %d", status)
	}
}

func TestReportInvalidReadingSkipsUpload(t *testing.T) {
	rec, srv := newRecorder(t, http.StatusOK)
	r := newReporter(srv, sensor.NewFakeReader(sensor.Sample{Temperature: math.NaN(), Humidity: 50, SoilRaw: 2000}))

	_, err := r.ReportClimate(context.Background())
	assert.ErrorIs(t, err, logic.ErrSensorRead)

	_, err = r.ReportSoil(context.Background())
	assert.ErrorIs(t, err, logic.ErrSensorRead)

	assert.Empty(t, rec.bodies, "nothing may be sent for an invalid reading")
}

func TestReportTransportFailure(t *testing.T) {
	_, srv := newRecorder(t, http.StatusOK)
	r := newReporter(srv, sensor.NewFakeReader(sensor.Sample{Temperature: 20, Humidity: 50}))
	srv.Close()

	_, err := r.ReportClimate(context.Background())
	assert.ErrorIs(t, err, logic.ErrTransport)
}

func TestReportTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	r := New(Config{DeviceID: "d", SoilURL: srv.URL}, &http.Client{Timeout: 50 * time.Millisecond},
		sensor.NewFakeReader(sensor.Sample{SoilRaw: 0}))

	start := time.Now()
	_, err := r.ReportSoil(context.Background())
	assert.ErrorIs(t, err, logic.ErrTransport)
	assert.Less(t, time.Since(start), 2*time.Second)
}
