// Package metrics is Metrics & Health: the process-wide counters
// (received, processed, failed, auth_failures) and response-time gauge the
// relay exposes at /metrics in Prometheus exposition format. Counters
// rehydrate from a persisted snapshot on boot rather than resetting to
// zero, so a restart never silently erases operator-visible error rates.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/airchainpay/relay/internal/models"
)

// Recorder tracks the relay's counters and response-time average, exposing
// them both as prometheus.Collector metrics and as a models.Metrics
// snapshot for persistence.
type Recorder struct {
	mu sync.Mutex

	received     uint64
	processed    uint64
	failed       uint64
	authFailures uint64
	totalRespMs  float64
	respSamples  uint64
	lastUpdated  time.Time

	receivedDesc     prometheus.Counter
	processedDesc    prometheus.Counter
	failedDesc       prometheus.Counter
	authFailuresDesc prometheus.Counter
	respTimeGauge    prometheus.Gauge
}

// New builds a Recorder, rehydrating its counters from snapshot (which may
// be a zero-valued models.Metrics on first boot) and registering its
// collectors with reg.
func New(reg prometheus.Registerer, snapshot models.Metrics) *Recorder {
	r := &Recorder{
		received:     snapshot.Received,
		processed:    snapshot.Processed,
		failed:       snapshot.Failed,
		authFailures: snapshot.AuthFailures,
		lastUpdated:  snapshot.LastUpdated,

		receivedDesc: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_transactions_received_total",
			Help: "Total transactions received by the ingress handlers.",
		}),
		processedDesc: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_transactions_processed_total",
			Help: "Total transactions successfully processed (broadcast or accepted).",
		}),
		failedDesc: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_transactions_failed_total",
			Help: "Total transactions that terminally failed.",
		}),
		authFailuresDesc: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_auth_failures_total",
			Help: "Total authentication failures across all endpoints.",
		}),
		respTimeGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_response_time_ms_avg",
			Help: "Rolling average response time in milliseconds.",
		}),
	}

	r.receivedDesc.Add(float64(r.received))
	r.processedDesc.Add(float64(r.processed))
	r.failedDesc.Add(float64(r.failed))
	r.authFailuresDesc.Add(float64(r.authFailures))

	if reg != nil {
		reg.MustRegister(r.receivedDesc, r.processedDesc, r.failedDesc, r.authFailuresDesc, r.respTimeGauge)
	}
	return r
}

// RecordReceived counts one inbound submission.
func (r *Recorder) RecordReceived() {
	r.mu.Lock()
	r.received++
	r.lastUpdated = time.Now()
	r.mu.Unlock()
	r.receivedDesc.Inc()
}

// RecordProcessed counts one submission that reached a terminal success
// state, along with the time it took in milliseconds.
func (r *Recorder) RecordProcessed(elapsedMs float64) {
	r.mu.Lock()
	r.processed++
	r.observeResponseTime(elapsedMs)
	r.mu.Unlock()
	r.processedDesc.Inc()
}

// RecordFailed counts one submission that reached a terminal failure state.
func (r *Recorder) RecordFailed(elapsedMs float64) {
	r.mu.Lock()
	r.failed++
	r.observeResponseTime(elapsedMs)
	r.mu.Unlock()
	r.failedDesc.Inc()
}

// RecordAuthFailure counts one rejected authentication attempt.
func (r *Recorder) RecordAuthFailure() {
	r.mu.Lock()
	r.authFailures++
	r.lastUpdated = time.Now()
	r.mu.Unlock()
	r.authFailuresDesc.Inc()
}

// observeResponseTime folds elapsedMs into the running average. Must be
// called with mu held.
func (r *Recorder) observeResponseTime(elapsedMs float64) {
	r.respSamples++
	r.totalRespMs += elapsedMs
	r.lastUpdated = time.Now()
	r.respTimeGauge.Set(r.totalRespMs / float64(r.respSamples))
}

// Snapshot returns the current counters as a models.Metrics, suitable for
// persisting to data/metrics.json.
func (r *Recorder) Snapshot() models.Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()

	avg := 0.0
	if r.respSamples > 0 {
		avg = r.totalRespMs / float64(r.respSamples)
	}
	return models.Metrics{
		Received:          r.received,
		Processed:         r.processed,
		Failed:            r.failed,
		AuthFailures:      r.authFailures,
		ResponseTimeMsAvg: avg,
		LastUpdated:       r.lastUpdated,
	}
}
