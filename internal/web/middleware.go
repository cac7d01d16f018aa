package web

import (
	"bytes"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// ipLimiter keeps one token bucket per client IP.
type ipLimiter struct {
	mu    sync.Mutex
	ips   map[string]*rate.Limiter
	limit rate.Limit
	burst int
}

func newIPLimiter(limit rate.Limit, burst int) *ipLimiter {
	return &ipLimiter{ips: make(map[string]*rate.Limiter), limit: limit, burst: burst}
}

func (l *ipLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.ips[ip]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.ips[ip] = lim
	}
	return lim
}

// rateLimit rejects clients that exceed limit requests per second.
func rateLimit(limit rate.Limit, burst int) gin.HandlerFunc {
	l := newIPLimiter(limit, burst)
	return func(c *gin.Context) {
		if !l.get(c.ClientIP()).Allow() {
			c.AbortWithStatus(http.StatusTooManyRequests)
			return
		}
		c.Next()
	}
}

type cachedResponse struct {
	status  int
	headers http.Header
	body    []byte
}

type recordingWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w recordingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w recordingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// cacheGET serves repeated GETs of the same URI from store for ttl.
// Only 2xx responses are stored.
func cacheGET(store *cache.Cache, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := c.Request.RequestURI
		if v, ok := store.Get(key); ok {
			hit := v.(cachedResponse)
			for k, vals := range hit.headers {
				c.Writer.Header()[k] = vals
			}
			c.Writer.WriteHeader(hit.status)
			c.Writer.Write(hit.body)
			c.Abort()
			return
		}

		rw := &recordingWriter{ResponseWriter: c.Writer, body: new(bytes.Buffer)}
		c.Writer = rw
		c.Next()

		if s := rw.Status(); s >= 200 && s < 300 {
			store.Set(key, cachedResponse{
				status:  s,
				headers: rw.Header().Clone(),
				body:    rw.body.Bytes(),
			}, ttl)
		}
	}
}
