package network

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/irrigation-controller/internal/logger"
)

func TestWaitOnlineRetriesUntilReachable(t *testing.T) {
	calls := 0
	probe := func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("no route to host")
		}
		return nil
	}

	start := time.Now()
	attempts, err := WaitOnline(context.Background(), probe, 10*time.Millisecond, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond, "retries are paced")
}

func TestWaitOnlineBlocksWhileOffline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	probe := func(ctx context.Context) error { return errors.New("offline") }
	attempts, err := WaitOnline(ctx, probe, 10*time.Millisecond, logger.Nop())
	assert.Error(t, err)
	assert.GreaterOrEqual(t, attempts, 1)
}

func TestTCPProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	assert.NoError(t, TCPProbe(addr, time.Second)(context.Background()))

	ln.Close()
	assert.Error(t, TCPProbe(addr, 100*time.Millisecond)(context.Background()))
}

func TestProbeAddr(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://smartio-api.example.com/dht/data", "smartio-api.example.com:443"},
		{"http://10.0.0.5/mode", "10.0.0.5:80"},
		{"http://localhost:8081/x", "localhost:8081"},
	}
	for _, tt := range tests {
		got, err := ProbeAddr(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ProbeAddr("ftp://host/file")
	assert.Error(t, err)
	_, err = ProbeAddr("/relative")
	assert.Error(t, err)
}

func TestNewHTTPClient(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := NewHTTPClient(time.Second, false).Get(srv.URL)
	assert.Error(t, err, "self-signed certificate rejected by default")

	resp, err := NewHTTPClient(time.Second, true).Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
