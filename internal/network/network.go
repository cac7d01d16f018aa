// Package network holds the HTTP client shared by the uploaders and the
// boot-time connectivity wait.
package network

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/sweeney/irrigation-controller/internal/logger"
)

// NewHTTPClient returns a client whose timeout bounds every request.
// insecure disables certificate verification for endpoints with
// self-signed or otherwise unverifiable certificates.
func NewHTTPClient(timeout time.Duration, insecure bool) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: timeout,
	}
	if insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// Probe reports whether the network is usable.
type Probe func(ctx context.Context) error

// TCPProbe dials addr and closes the connection immediately.
func TCPProbe(addr string, timeout time.Duration) Probe {
	return func(ctx context.Context) error {
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return err
		}
		return conn.Close()
	}
}

// ProbeAddr derives a host:port to dial from an endpoint URL.
func ProbeAddr(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", rawURL, err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "https":
			port = "443"
		case "http":
			port = "80"
		default:
			return "", fmt.Errorf("url %q: unknown scheme %q", rawURL, u.Scheme)
		}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}

// WaitOnline blocks until probe succeeds, retrying at a fixed interval with
// no cap on attempts. Only ctx cancellation stops it early.
func WaitOnline(ctx context.Context, probe Probe, interval time.Duration, log *logger.Logger) (int, error) {
	limiter := rate.NewLimiter(rate.Every(interval), 1)
	attempts := 0
	for {
		if err := limiter.Wait(ctx); err != nil {
			return attempts, fmt.Errorf("wait for network: %w", err)
		}
		attempts++
		err := probe(ctx)
		if err == nil {
			return attempts, nil
		}
		if attempts == 1 || attempts%30 == 0 {
			log.Warnw("network not reachable, retrying", "attempt", attempts, "interval", interval, "err", err)
		}
	}
}
