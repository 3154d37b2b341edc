package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/airchainpay/relay/internal/relayerr"
)

// handleGetTx looks up a previously accepted transaction by the ID the
// relay assigned it at admission time, not by its on-chain hash (a pending
// meta-transaction has no hash yet).
func (d *Deps) handleGetTx(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	rec, err := d.Store.Get(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, relayerr.ToResponse(relayerr.Classify(err), requestIDFrom(r.Context())))
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusNotFound, relayerr.ToResponse(
			relayerr.Validation("ERR_TX_NOT_FOUND", "no transaction with that id", nil),
			requestIDFrom(r.Context()),
		))
		return
	}

	writeJSON(w, http.StatusOK, rec)
}
