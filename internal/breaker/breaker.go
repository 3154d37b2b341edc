// Package breaker is the Critical-Path Guard: one circuit breaker per
// models.CriticalPath, tripping open after repeated critical failures, and
// recording every trip and recovery to a bounded in-memory ring plus (if
// wired) an append-only audit trail via internal/audit.Logger.
package breaker

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/airchainpay/relay/internal/models"
	"github.com/airchainpay/relay/internal/relayerr"
)

// State is a circuit breaker's current position.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// defaultRetryAfterSeconds is the value the HTTP layer reports to a caller
// rejected by an open circuit.
const defaultRetryAfterSeconds = 300

// ringSize bounds the in-memory error record ring kept per breaker — the
// ring is a recent-history window for operators, not the durable record
// (that lives in the audit log when one is wired).
const ringSize = 200

// AuditSink receives a record of every trip, recovery, and rejected call.
// internal/audit.Logger satisfies this.
type AuditSink interface {
	LogOperation(entry models.ErrorRecord) error
}

type circuit struct {
	state               State
	consecutiveFailures int
	consecutiveSuccess  int
	openedAt            time.Time
	cooldown            time.Duration
	ring                []models.ErrorRecord
}

func (c *circuit) pushRing(rec models.ErrorRecord) {
	c.ring = append(c.ring, rec)
	if len(c.ring) > ringSize {
		c.ring = c.ring[len(c.ring)-ringSize:]
	}
}

// Guard is a collection of independent circuits, one per CriticalPath.
type Guard struct {
	mu               sync.Mutex
	circuits         map[models.CriticalPath]*circuit
	failureThreshold int
	successThreshold int
	baseCooldown     time.Duration
	maxCooldown      time.Duration
	audit            AuditSink
}

// NewGuard builds a Guard. failureThreshold consecutive failures trip a path
// open; successThreshold consecutive successes in the half-open state close
// it again; baseCooldown is how long a path stays open before probing
// resumes the first time it trips, doubling (capped at 10x) on each
// subsequent trip without an intervening close. audit may be nil to disable
// trip logging.
func NewGuard(failureThreshold, successThreshold int, baseCooldown time.Duration, audit AuditSink) *Guard {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if successThreshold <= 0 {
		successThreshold = 2
	}
	if baseCooldown <= 0 {
		baseCooldown = 30 * time.Second
	}
	return &Guard{
		circuits:         make(map[models.CriticalPath]*circuit),
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		baseCooldown:     baseCooldown,
		maxCooldown:      10 * baseCooldown,
		audit:            audit,
	}
}

func (g *Guard) getOrCreate(path models.CriticalPath) *circuit {
	c, ok := g.circuits[path]
	if !ok {
		c = &circuit{state: StateClosed, cooldown: g.baseCooldown}
		g.circuits[path] = c
	}
	return c
}

// Allow reports whether a call on path may proceed. A call is refused while
// the circuit is open and the cooldown has not elapsed; once it has, the
// circuit moves to half-open and a single probe call is allowed through.
func (g *Guard) Allow(path models.CriticalPath) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	c := g.getOrCreate(path)
	switch c.state {
	case StateOpen:
		if time.Since(c.openedAt) < c.cooldown {
			return relayerr.New(relayerr.KindCriticalSystemFailure, "ERR_CIRCUIT_OPEN",
				"critical path "+string(path)+" is open", relayerr.Retryable, nil)
		}
		c.state = StateHalfOpen
		c.consecutiveSuccess = 0
		return nil
	default:
		return nil
	}
}

// RecordSuccess reports a successful call on path.
func (g *Guard) RecordSuccess(path models.CriticalPath) {
	g.mu.Lock()
	defer g.mu.Unlock()

	c := g.getOrCreate(path)
	c.consecutiveFailures = 0

	switch c.state {
	case StateHalfOpen:
		c.consecutiveSuccess++
		if c.consecutiveSuccess >= g.successThreshold {
			c.state = StateClosed
			c.cooldown = g.baseCooldown
			g.logTrip(path, "closed")
		}
	case StateOpen:
		c.state = StateHalfOpen
		c.consecutiveSuccess = 1
	}
}

// RecordFailure reports a failed call on path, tripping the circuit open if
// the consecutive-failure threshold is reached. severity and errType
// classify the failure for the error ring and audit trail; a half-open
// probe failure re-opens immediately regardless of threshold, doubling the
// cooldown up to maxCooldown.
func (g *Guard) RecordFailure(path models.CriticalPath, cause error) {
	g.RecordFailureDetailed(path, cause, models.SeverityHigh, "")
}

// RecordFailureDetailed is RecordFailure with full ErrorRecord fidelity.
func (g *Guard) RecordFailureDetailed(path models.CriticalPath, cause error, severity models.Severity, errType string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	c := g.getOrCreate(path)
	c.consecutiveSuccess = 0
	c.consecutiveFailures++

	switch c.state {
	case StateHalfOpen:
		// A failed probe re-opens immediately and doubles the cooldown, capped
		// at maxCooldown, so a persistently broken path backs off rather than
		// probing every baseCooldown tick forever.
		c.state = StateOpen
		c.cooldown *= 2
		if c.cooldown > g.maxCooldown {
			c.cooldown = g.maxCooldown
		}
		c.openedAt = time.Now()
		g.logTrip(path, "opened")
	case StateClosed:
		if c.consecutiveFailures >= g.failureThreshold {
			c.state = StateOpen
			c.openedAt = time.Now()
			g.logTrip(path, "opened")
		}
	case StateOpen:
		// Allow() gates all calls while open except the single half-open
		// probe, so this path is only reached if a caller records a failure
		// without going through Allow first; keep the existing cooldown.
	}

	rec := models.ErrorRecord{
		ID:           uuid.NewString(),
		Timestamp:    time.Now(),
		CriticalPath: path,
		ErrorType:    errType,
		Message:      errMessage(cause),
		Severity:     severity,
		Component:    string(path),
	}
	c.pushRing(rec)
	if g.audit != nil {
		_ = g.audit.LogOperation(rec)
	}
}

func (g *Guard) logTrip(path models.CriticalPath, transition string) {
	if g.audit == nil {
		return
	}
	_ = g.audit.LogOperation(models.ErrorRecord{
		ID:           uuid.NewString(),
		Timestamp:    time.Now(),
		CriticalPath: path,
		Message:      "circuit " + transition,
		Severity:     models.SeverityMedium,
		Component:    string(path),
	})
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// StateOf returns the current state of path, for metrics exposition.
func (g *Guard) StateOf(path models.CriticalPath) State {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.circuits[path]
	if !ok {
		return StateClosed
	}
	return c.state
}

// RetryAfterSeconds is the value the HTTP layer reports in a 503 response's
// retry_after field when a path is open. The figure is fixed and
// operator-facing, independent of the breaker's own (exponentially growing)
// internal cooldown clock.
func (g *Guard) RetryAfterSeconds(models.CriticalPath) int {
	return defaultRetryAfterSeconds
}

// RecentErrors returns the most recent error records recorded against path,
// oldest first, for the breaker's own diagnostics endpoint.
func (g *Guard) RecentErrors(path models.CriticalPath) []models.ErrorRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.circuits[path]
	if !ok {
		return nil
	}
	out := make([]models.ErrorRecord, len(c.ring))
	copy(out, c.ring)
	return out
}
