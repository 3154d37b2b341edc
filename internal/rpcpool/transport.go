// Package rpcpool is the RPC Client Pool: one JSON-RPC client per registered
// chain, each wrapping an HTTP transport with endpoint failover and
// per-endpoint health tracking.
package rpcpool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

type jsonrpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int64       `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *NodeError      `json:"error,omitempty"`
}

// NodeError is a JSON-RPC 2.0 error object returned by the node itself.
// Unlike a transport failure, a NodeError means the node received and
// rejected the request, so failing over to another endpoint cannot help.
type NodeError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node error %d: %s", e.Code, e.Message)
}

// endpointHealth tracks one endpoint's recent behavior for failover
// decisions. Consecutive transport failures open the endpoint's circuit;
// after openWindow elapses it is eligible again.
type endpointHealth struct {
	consecutiveFailures int
	lastFailure         time.Time
	circuitOpen         bool
	totalCalls          int64
	failedCalls         int64
	avgLatencyMs        int64
}

const (
	endpointFailureThreshold = 3
	endpointOpenWindow       = 30 * time.Second
)

// transport is the HTTP JSON-RPC transport shared by every method of a
// chain Client. It walks its endpoint list round-robin, skipping endpoints
// whose circuit is open, and stops early on a NodeError since the node's
// verdict is authoritative.
type transport struct {
	endpoints []string
	client    *http.Client
	requestID atomic.Int64

	mu     sync.Mutex
	next   int
	health map[string]*endpointHealth
}

func newTransport(endpoints []string, timeout time.Duration) (*transport, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("at least one RPC endpoint is required")
	}
	return &transport{
		endpoints: endpoints,
		client:    &http.Client{Timeout: timeout},
		health:    make(map[string]*endpointHealth),
	}, nil
}

// call executes a single JSON-RPC method, failing over across endpoints on
// transport errors. A *NodeError returns immediately without failover.
func (t *transport) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	attempted := make(map[string]bool)

	var lastErr error
	for len(attempted) < len(t.endpoints) {
		endpoint := t.pickEndpoint(attempted)
		if endpoint == "" {
			break
		}
		attempted[endpoint] = true

		result, err := t.callEndpoint(ctx, endpoint, method, params)
		if err == nil {
			return result, nil
		}
		if nodeErr, ok := err.(*NodeError); ok {
			return nil, nodeErr
		}
		lastErr = err
	}

	return nil, fmt.Errorf("all RPC endpoints failed: %w", lastErr)
}

func (t *transport) callEndpoint(ctx context.Context, endpoint, method string, params interface{}) (json.RawMessage, error) {
	start := time.Now()

	body, err := json.Marshal(jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      t.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		t.recordFailure(endpoint)
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.recordFailure(endpoint)
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.recordFailure(endpoint)
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, endpoint)
	}

	var rpcResp jsonrpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		t.recordFailure(endpoint)
		return nil, fmt.Errorf("parse JSON-RPC response: %w", err)
	}

	if rpcResp.Error != nil {
		// The endpoint is reachable and working; only the request was bad.
		t.recordSuccess(endpoint, time.Since(start).Milliseconds())
		return nil, rpcResp.Error
	}

	t.recordSuccess(endpoint, time.Since(start).Milliseconds())
	return rpcResp.Result, nil
}

// pickEndpoint returns the next endpoint in round-robin order whose circuit
// is closed and which has not been attempted this call. If every healthy
// endpoint has been tried, it falls back to any unattempted one.
func (t *transport) pickEndpoint(attempted map[string]bool) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := 0; i < len(t.endpoints); i++ {
		idx := (t.next + i) % len(t.endpoints)
		endpoint := t.endpoints[idx]
		if attempted[endpoint] {
			continue
		}
		if t.endpointUsable(endpoint) {
			t.next = (idx + 1) % len(t.endpoints)
			return endpoint
		}
	}

	for _, endpoint := range t.endpoints {
		if !attempted[endpoint] {
			return endpoint
		}
	}
	return ""
}

func (t *transport) endpointUsable(endpoint string) bool {
	h, ok := t.health[endpoint]
	if !ok {
		return true
	}
	if h.circuitOpen && time.Since(h.lastFailure) < endpointOpenWindow {
		return false
	}
	return true
}

func (t *transport) recordSuccess(endpoint string, latencyMs int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.healthFor(endpoint)
	h.totalCalls++
	h.consecutiveFailures = 0
	h.circuitOpen = false
	if h.avgLatencyMs == 0 {
		h.avgLatencyMs = latencyMs
	} else {
		h.avgLatencyMs = (h.avgLatencyMs*9 + latencyMs) / 10
	}
}

func (t *transport) recordFailure(endpoint string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.healthFor(endpoint)
	h.totalCalls++
	h.failedCalls++
	h.consecutiveFailures++
	h.lastFailure = time.Now()
	if h.consecutiveFailures >= endpointFailureThreshold {
		h.circuitOpen = true
	}
}

func (t *transport) healthFor(endpoint string) *endpointHealth {
	h, ok := t.health[endpoint]
	if !ok {
		h = &endpointHealth{}
		t.health[endpoint] = h
	}
	return h
}

func (t *transport) close() {
	t.client.CloseIdleConnections()
}
