package metrics

import (
	"encoding/json"
	"os"

	"github.com/airchainpay/relay/internal/models"
	"github.com/airchainpay/relay/internal/relayerr"
	"github.com/airchainpay/relay/internal/services/storage"
)

// LoadSnapshot reads a previously persisted models.Metrics from path,
// returning a zero-valued snapshot (not an error) if the file doesn't exist
// yet — the normal first-boot case.
func LoadSnapshot(path string) (models.Metrics, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.Metrics{}, nil
		}
		return models.Metrics{}, relayerr.Storage("ERR_METRICS_LOAD", "failed to read metrics snapshot", err)
	}
	if len(data) == 0 {
		return models.Metrics{}, nil
	}
	var snapshot models.Metrics
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return models.Metrics{}, relayerr.Storage("ERR_METRICS_PARSE", "failed to parse metrics snapshot", err)
	}
	return snapshot, nil
}

// SaveSnapshot persists r's current counters to path as pretty-printed JSON,
// atomically.
func SaveSnapshot(path string, r *Recorder) error {
	data, err := json.MarshalIndent(r.Snapshot(), "", "  ")
	if err != nil {
		return relayerr.Storage("ERR_METRICS_MARSHAL", "failed to marshal metrics snapshot", err)
	}
	if err := storage.AtomicWriteFile(path, data, 0600); err != nil {
		return relayerr.Storage("ERR_METRICS_SAVE", "failed to persist metrics snapshot", err)
	}
	return nil
}
