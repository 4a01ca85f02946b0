package gateway

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/kore-ledger/kore-gateway/lib/util"
)

const requestIDHeader = "X-Request-ID"

// Prometheus collectors, exposed on the monitoring listener.
var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kore_gateway",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of handled HTTP requests.",
	}, []string{"route", "method"})

	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kore_gateway",
		Name:      "http_requests_total",
		Help:      "Handled HTTP requests by final status.",
	}, []string{"route", "method", "status"})

	rateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kore_gateway",
		Name:      "http_rate_limited_total",
		Help:      "Requests rejected by the per-client rate limit.",
	})
)

// statusRecorder captures the final status written by the inner handler. It forwards Hijack so websocket upgrades
// keep working through the chain.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hj.Hijack()
}

// trace is the outermost layer: it assigns every request a correlation id, reuses the client's if one is informed,
// and logs the request once handled.
func (g *Gateway) trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		rw.Header().Set(requestIDHeader, reqID)

		rec := &statusRecorder{ResponseWriter: rw, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		logrus.WithFields(logrus.Fields{
			"request_id": reqID,
			"method":     r.Method,
			"uri":        r.RequestURI,
			"remote":     r.RemoteAddr,
			"status":     rec.status,
			"duration":   time.Since(start).String(),
		}).Info("httpreq")
	})
}

// routeName labels the request with the matched route of the table, or "unmatched".
func (g *Gateway) routeName(r *http.Request) string {
	var match mux.RouteMatch
	if g.router != nil && g.router.Match(r, &match) && match.Route != nil {
		if n := match.Route.GetName(); n != "" {
			return n
		}
	}
	return "unmatched"
}

// metrics observes duration and final status per route.
func (g *Gateway) metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		route := g.routeName(r)

		rec := &statusRecorder{ResponseWriter: rw, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		requestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
		requestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
	})
}

// corsAllow enforces the configured origin allow-list and answers preflights. Requests without an Origin header
// pass through untouched.
func (g *Gateway) corsAllow(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			next.ServeHTTP(rw, r)
			return
		}

		if !util.In(g.cors, "*") && !util.In(g.cors, origin) {
			g.replyError(rw, r, http.StatusForbidden, "origin not allowed")
			return
		}

		allowed := origin
		if util.In(g.cors, "*") {
			allowed = "*"
		}
		rw.Header().Set("Access-Control-Allow-Origin", allowed)
		rw.Header().Set("Vary", "Origin")

		if r.Method == http.MethodOptions {
			rw.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			rw.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+requestIDHeader)
			rw.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(rw, r)
	})
}

// ipLimiter enforces a fixed-window per-client request budget.
type ipLimiter struct {
	mu     sync.Mutex
	limit  int
	window map[string]*ipWindow
}

type ipWindow struct {
	start time.Time
	count int
}

func newIPLimiter(limit int) *ipLimiter {
	return &ipLimiter{limit: limit, window: make(map[string]*ipWindow)}
}

// allow counts one request for ip and reports whether it is within budget. Windows are one minute long and pruned
// lazily as they expire.
func (l *ipLimiter) allow(ip string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.window[ip]
	if !ok || now.Sub(w.start) >= time.Minute {
		l.prune(now)
		l.window[ip] = &ipWindow{start: now, count: 1}

		return true
	}

	w.count++

	return w.count <= l.limit
}

func (l *ipLimiter) prune(now time.Time) {
	for ip, w := range l.window {
		if now.Sub(w.start) >= time.Minute {
			delete(l.window, ip)
		}
	}
}

// rateLimit rejects clients exceeding the configured per-minute budget. Zero disables the limit.
func (g *Gateway) rateLimit(next http.Handler) http.Handler {
	if g.limit <= 0 {
		return next
	}

	limiter := newIPLimiter(g.limit)

	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if !limiter.allow(util.ClientIP(r.RemoteAddr), time.Now()) {
			rateLimited.Inc()
			g.replyError(rw, r, http.StatusTooManyRequests, "too many requests")

			return
		}

		next.ServeHTTP(rw, r)
	})
}
