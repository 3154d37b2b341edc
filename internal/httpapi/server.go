// Package httpapi is Transaction Ingress plus the rest of the relay's HTTP
// surface: the gorilla/mux router, middleware chain, and handlers for
// /health, /api/send_tx, /api/send_meta_tx, /api/tx/{id} and /metrics.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/airchainpay/relay/internal/auth"
	"github.com/airchainpay/relay/internal/breaker"
	"github.com/airchainpay/relay/internal/ipfilter"
	"github.com/airchainpay/relay/internal/metrics"
	"github.com/airchainpay/relay/internal/models"
	"github.com/airchainpay/relay/internal/registry"
	"github.com/airchainpay/relay/internal/relayerr"
	"github.com/airchainpay/relay/internal/rpcpool"
	"github.com/airchainpay/relay/internal/services/ratelimit"
	"github.com/airchainpay/relay/internal/signer"
	"github.com/airchainpay/relay/internal/store"
)

// Version is stamped into /health responses; overridden at build time is
// out of scope here, so it is a plain constant.
const Version = "1.0.0"

// Deps collects every shared, read-mostly component the ingress handlers
// need — the registry, RPC pool, durable store, auth issuer, critical-path
// guard, metrics recorder, and the relay's own operator signer used to
// countersign meta-transactions.
type Deps struct {
	Registry    *registry.Registry
	Pool        *rpcpool.Pool
	Store       *store.Store
	Auth        *auth.Issuer
	Guard       *breaker.Guard
	Metrics     *metrics.Recorder
	IPFilter    *ipfilter.Filter
	Signer      *signer.Signer
	Logger      *logrus.Logger
	AuthLimiter *ratelimit.RateLimiter

	// BroadcastAttempts caps transient-failure retries per broadcast;
	// zero means the default of 3.
	BroadcastAttempts int
}

// NewRouter builds the relay's complete HTTP surface.
func NewRouter(d *Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = logrus.StandardLogger()
	}
	if d.AuthLimiter == nil {
		d.AuthLimiter = ratelimit.NewRateLimiter(10, time.Minute)
	}

	r := mux.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(d.Logger))

	r.HandleFunc("/health", d.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(d.authMiddleware)
	api.HandleFunc("/send_tx", d.handleSendTx).Methods(http.MethodPost)
	api.HandleFunc("/send_meta_tx", d.handleSendMetaTx).Methods(http.MethodPost)
	api.HandleFunc("/tx/{id}", d.handleGetTx).Methods(http.MethodGet)

	var handler http.Handler = r
	if d.IPFilter != nil {
		handler = d.IPFilter.Middleware(handler)
	}
	return handler
}

// requestIDContextKey is the context key used to carry a generated request
// ID from the top-level middleware down to handlers and error responses.
type requestIDContextKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-ID", id)
		ctx := setRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(log *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.WithFields(logrus.Fields{
				"method":      sanitizeLogField(r.Method),
				"path":        sanitizeLogField(r.URL.Path),
				"status":      rec.status,
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  requestIDFrom(r.Context()),
			}).Info("request handled")
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeBreakerRejection writes the standard 503 an open circuit returns,
// reporting the fixed retry_after figure rather than the breaker's own
// exponentially growing internal cooldown.
func writeBreakerRejection(w http.ResponseWriter, r *http.Request, guard *breaker.Guard, path models.CriticalPath) {
	retryAfter := guard.RetryAfterSeconds(path)
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	resp := struct {
		*relayerr.Response
		RetryAfter int `json:"retry_after"`
	}{
		Response: relayerr.ToResponse(
			relayerr.New(relayerr.KindCriticalSystemFailure, "ERR_CIRCUIT_OPEN", "critical path is temporarily unavailable", relayerr.Retryable, nil),
			requestIDFrom(r.Context()),
		),
		RetryAfter: retryAfter,
	}
	writeJSON(w, http.StatusServiceUnavailable, resp)
}
