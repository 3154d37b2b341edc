package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/airchainpay/relay/internal/breaker"
	"github.com/airchainpay/relay/internal/models"
	"github.com/airchainpay/relay/internal/relayerr"
	"github.com/airchainpay/relay/internal/store"
	"github.com/airchainpay/relay/internal/validator"
)

type sendTxRequest struct {
	SignedTx string `json:"signed_tx"`
	RPCURL   string `json:"rpc_url,omitempty"`
	ChainID  uint64 `json:"chain_id"`
}

type sendTxResponse struct {
	Success       bool      `json:"success"`
	TransactionID string    `json:"transaction_id"`
	ChainID       uint64    `json:"chain_id"`
	Timestamp     time.Time `json:"timestamp"`
	TxHash        string    `json:"tx_hash,omitempty"`
}

// handleSendTx is the raw-tx submission path: auth has already run,
// everything here is validate -> dedup -> allocate -> broadcast -> settle.
// Duplicate signed_tx bytes within the retention window short-circuit to the
// existing record without ever reaching the RPC layer a second time.
func (d *Deps) handleSendTx(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if d.Metrics != nil {
		d.Metrics.RecordReceived()
	}

	var req sendTxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		d.failSendTx(w, r, start, relayerr.Validation("ERR_INVALID_INPUT", "malformed request body", err))
		return
	}

	if err := d.validateSendTx(req); err != nil {
		d.failSendTx(w, r, start, err)
		return
	}

	if existing, err := d.Store.FindByContentHash(req.SignedTx); err == nil && existing != nil {
		writeJSON(w, http.StatusOK, sendTxResponse{
			Success:       true,
			TransactionID: existing.ID,
			ChainID:       existing.ChainID,
			Timestamp:     existing.Timestamp,
			TxHash:        existing.TxHash,
		})
		return
	}

	cpath := models.PathForEndpoint(r.URL.Path)
	if d.Guard != nil {
		if err := d.Guard.Allow(cpath); err != nil {
			writeBreakerRejection(w, r, d.Guard, cpath)
			return
		}
	}

	rec := &models.StoredTransaction{
		ID:        uuid.NewString(),
		SignedTx:  req.SignedTx,
		ChainID:   req.ChainID,
		Timestamp: time.Now().UTC(),
		Status:    models.TxStatusPending,
		Security: models.SecurityMetadata{
			Hash:      store.ContentHash(req.SignedTx),
			CreatedAt: time.Now().UTC(),
			ServerID:  requestIDFrom(r.Context()),
		},
	}
	if err := d.Store.Put(rec); err != nil {
		d.failSendTx(w, r, start, err)
		return
	}

	client, ok := d.Pool.Get(req.ChainID)
	if !ok {
		d.settleFailure(rec, "no RPC client registered for chain")
		d.failSendTx(w, r, start, relayerr.Validation("ERR_UNSUPPORTED_CHAIN", "chain id is not registered", nil))
		return
	}

	var txHash string
	err := breaker.Retry(r.Context(), d.broadcastAttempts(), 200*time.Millisecond, func() error {
		hash, sendErr := client.SendRaw(r.Context(), req.SignedTx)
		if sendErr != nil {
			return sendErr
		}
		txHash = hash
		return nil
	})
	if err != nil {
		d.settleFailure(rec, err.Error())
		if d.Guard != nil {
			d.Guard.RecordFailureDetailed(cpath, err, models.SeverityHigh, "rpc_send_raw")
		}
		d.failSendTx(w, r, start, relayerr.Classify(err))
		return
	}

	rec.Status = models.TxStatusConfirmed
	rec.TxHash = txHash
	if err := d.Store.Put(rec); err != nil {
		d.failSendTx(w, r, start, err)
		return
	}

	if d.Guard != nil {
		d.Guard.RecordSuccess(cpath)
	}
	if d.Metrics != nil {
		d.Metrics.RecordProcessed(float64(time.Since(start).Milliseconds()))
	}

	writeJSON(w, http.StatusOK, sendTxResponse{
		Success:       true,
		TransactionID: rec.ID,
		ChainID:       rec.ChainID,
		Timestamp:     rec.Timestamp,
		TxHash:        rec.TxHash,
	})
}

func (d *Deps) validateSendTx(req sendTxRequest) error {
	if err := validator.ChainID(d.Registry, req.ChainID); err != nil {
		return err
	}
	if req.SignedTx == "" || len(req.SignedTx) < 4 || req.SignedTx[:2] != "0x" {
		return relayerr.Validation("ERR_INVALID_INPUT", "signed_tx must be 0x-prefixed hex", nil)
	}
	return nil
}

// broadcastAttempts is how many times a transient broadcast failure is
// retried (with jittered exponential backoff) before the request surfaces a
// 502. Permanent failures never retry.
func (d *Deps) broadcastAttempts() int {
	if d.BroadcastAttempts > 0 {
		return d.BroadcastAttempts
	}
	return 3
}

// settleFailure marks rec failed and persists it; it deliberately swallows
// the persistence error since the caller already has a more specific error
// to report back to the client.
func (d *Deps) settleFailure(rec *models.StoredTransaction, detail string) {
	rec.Status = models.TxStatusFailed
	rec.ErrorDetails = detail
	_ = d.Store.Put(rec)
}

func (d *Deps) failSendTx(w http.ResponseWriter, r *http.Request, start time.Time, err error) {
	if d.Metrics != nil {
		d.Metrics.RecordFailed(float64(time.Since(start).Milliseconds()))
	}
	status := http.StatusBadRequest
	if classified := relayerr.Classify(err); classified.Kind == relayerr.KindNetwork {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, relayerr.ToResponse(err, requestIDFrom(r.Context())))
}
