// Package reconciler is the background process that revisits
// StoredTransaction records a handler couldn't settle before its client
// disconnected: an abandoned in-flight RPC leaves the store record at
// pending, and this poller settles it later from the on-chain receipt.
package reconciler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/airchainpay/relay/internal/breaker"
	"github.com/airchainpay/relay/internal/models"
	"github.com/airchainpay/relay/internal/rpcpool"
	"github.com/airchainpay/relay/internal/store"
)

// Reconciler polls the durable store's pending records against each
// record's chain RPC client and settles them once a receipt appears.
type Reconciler struct {
	Store  *store.Store
	Pool   *rpcpool.Pool
	Guard  *breaker.Guard
	Logger *logrus.Logger
}

// New builds a Reconciler over the given store and RPC pool. guard and
// logger may be nil.
func New(s *store.Store, pool *rpcpool.Pool, guard *breaker.Guard, logger *logrus.Logger) *Reconciler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Reconciler{Store: s, Pool: pool, Guard: guard, Logger: logger}
}

// dropAfter is how long a pending record with no broadcast hash may linger
// before the reconciler declares it dropped: such a record's handler was
// abandoned before the node ever accepted a broadcast, so no receipt will
// ever arrive for it.
const dropAfter = time.Hour

// ReconcileOnce sweeps every pending record. Records carrying a tx_hash
// (raw-tx and meta-tx submissions are only marked pending-with-hash after
// the node accepted the broadcast) settle to confirmed or failed from the
// on-chain receipt; records with no tx_hash are left for a later sweep
// until dropAfter has elapsed, then settle to dropped. It returns the
// number of records it moved out of pending.
func (r *Reconciler) ReconcileOnce(ctx context.Context) (int, error) {
	pending, err := r.Store.ListByStatus(models.TxStatusPending)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, rec := range pending {
		if rec.TxHash == "" {
			if time.Since(rec.Timestamp) > dropAfter {
				rec.Status = models.TxStatusDropped
				rec.ErrorDetails = "abandoned before broadcast completed"
				if err := r.Store.Put(rec); err == nil {
					settled++
				}
			}
			continue
		}
		if r.reconcileOne(ctx, rec) {
			settled++
		}
	}
	return settled, nil
}

func (r *Reconciler) reconcileOne(ctx context.Context, rec *models.StoredTransaction) bool {
	client, ok := r.Pool.Get(rec.ChainID)
	if !ok {
		return false
	}

	receipt, err := client.GetReceipt(ctx, rec.TxHash)
	if err != nil {
		r.Logger.WithError(err).WithField("transaction_id", rec.ID).Warn("reconciler: receipt lookup failed")
		if r.Guard != nil {
			r.Guard.RecordFailureDetailed(models.PathTransactionProcessing, err, models.SeverityLow, "reconcile_receipt")
		}
		return false
	}
	if receipt == nil {
		// Still pending on-chain; nothing to do this sweep.
		return false
	}

	if receipt.Reverted() {
		rec.Status = models.TxStatusFailed
		rec.ErrorDetails = "transaction reverted on-chain"
	} else {
		rec.Status = models.TxStatusConfirmed
	}

	if err := r.Store.Put(rec); err != nil {
		r.Logger.WithError(err).WithField("transaction_id", rec.ID).Warn("reconciler: failed to persist settled record")
		return false
	}
	return true
}

// Run sweeps ReconcileOnce on interval until ctx is canceled.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			settled, err := r.ReconcileOnce(ctx)
			if err != nil {
				r.Logger.WithError(err).Warn("reconciler: sweep failed")
				continue
			}
			if settled > 0 {
				r.Logger.WithField("settled", settled).Info("reconciler: settled pending transactions")
			}
		}
	}
}
