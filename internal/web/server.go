// Package web serves the status page and its JSON form.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/sweeney/irrigation-controller/internal/logger"
	"github.com/sweeney/irrigation-controller/internal/status"
)

// Defaults for the response cache and per-IP limit.
const (
	DefaultCacheTTL  = time.Second
	DefaultRateLimit = 10
	DefaultRateBurst = 5
)

// Options tunes the middleware. Zero values use the defaults.
type Options struct {
	CacheTTL  time.Duration
	RateLimit rate.Limit
	RateBurst int
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	log        *logger.Logger
}

// New creates a Server that reads state from the given tracker.
func New(addr string, tracker *status.Tracker, opts Options, log *logger.Logger) *Server {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = DefaultRateLimit
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = DefaultRateBurst
	}

	s := &Server{tracker: tracker, log: log}

	r := gin.New()
	r.Use(gin.Recovery(), rateLimit(opts.RateLimit, opts.RateBurst))

	caching := cacheGET(cache.New(opts.CacheTTL, 10*opts.CacheTTL), opts.CacheTTL)
	r.GET("/", caching, s.handleIndex)
	r.GET("/index.html", caching, s.handleIndex)
	r.GET("/index.json", caching, s.handleJSON)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := renderHTML(c.Writer, s.tracker.Snapshot()); err != nil {
		s.log.Errorw("render status page", "err", err)
	}
}

func (s *Server) handleJSON(c *gin.Context) {
	c.Data(http.StatusOK, "application/json", status.FormatJSON(s.tracker.Snapshot()))
}
