// Package store is the Durable Store: a JSON-file-backed table of
// StoredTransaction records, an ordered, size-capped ring that evicts the
// oldest record once it holds maxRecords entries, persisted through
// internal/services/storage.AtomicWriteFile's create-temp-file, fsync,
// atomic-rename write path.
package store

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/airchainpay/relay/internal/models"
	"github.com/airchainpay/relay/internal/relayerr"
	"github.com/airchainpay/relay/internal/services/crypto/hashing"
	"github.com/airchainpay/relay/internal/services/storage"
)

const defaultMaxRecords = 1000

// Store persists StoredTransaction records to a single JSON file, evicting
// the oldest entry once it holds more than maxRecords.
type Store struct {
	mu         sync.RWMutex
	filePath   string
	maxRecords int
	order      []string // transaction IDs in insertion order, oldest first
	records    map[string]*models.StoredTransaction
}

// New opens or creates the store at filePath, loading any existing records.
func New(filePath string, maxRecords int) (*Store, error) {
	if maxRecords <= 0 {
		maxRecords = defaultMaxRecords
	}
	s := &Store{
		filePath:   filePath,
		maxRecords: maxRecords,
		records:    make(map[string]*models.StoredTransaction),
	}
	if err := s.load(); err != nil {
		return nil, relayerr.Storage("ERR_STORE_LOAD", "failed to load transaction store", err)
	}
	return s, nil
}

func (s *Store) load() error {
	if _, err := os.Stat(s.filePath); os.IsNotExist(err) {
		return nil
	}
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return fmt.Errorf("read store file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var records []*models.StoredTransaction
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("parse store file: %w", err)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
	for _, r := range records {
		s.records[r.ID] = r
		s.order = append(s.order, r.ID)
	}
	return nil
}

// Put inserts or updates a record, evicting the oldest record if the store
// is at capacity and tx.ID is new.
func (s *Store) Put(tx *models.StoredTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[tx.ID]; !exists {
		if len(s.order) >= s.maxRecords {
			oldest := s.order[0]
			s.order = s.order[1:]
			delete(s.records, oldest)
		}
		s.order = append(s.order, tx.ID)
	}
	s.records[tx.ID] = copyRecord(tx)

	return s.persist()
}

// Get retrieves a record by ID. Returns (nil, nil) if not found.
func (s *Store) Get(id string) (*models.StoredTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	return copyRecord(rec), nil
}

// GetByTxHash retrieves a record by its on-chain transaction hash.
func (s *Store) GetByTxHash(txHash string) (*models.StoredTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.TxHash == txHash {
			return copyRecord(rec), nil
		}
	}
	return nil, nil
}

// ListByStatus returns every record with the given status, newest first.
func (s *Store) ListByStatus(status models.TxStatus) ([]*models.StoredTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.StoredTransaction, 0)
	for _, rec := range s.records {
		if rec.Status == status {
			result = append(result, copyRecord(rec))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})
	return result, nil
}

// Len returns the number of records currently held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// persist must be called with the write lock held.
func (s *Store) persist() error {
	list := make([]*models.StoredTransaction, 0, len(s.order))
	for _, id := range s.order {
		list = append(list, s.records[id])
	}

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return relayerr.Storage("ERR_STORE_MARSHAL", "failed to marshal store", err)
	}

	if err := storage.AtomicWriteFile(s.filePath, data, 0600); err != nil {
		return relayerr.Storage("ERR_STORE_PERSIST", "failed to persist store", err)
	}
	return nil
}

func copyRecord(r *models.StoredTransaction) *models.StoredTransaction {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}

// ContentHash returns the hex-encoded double SHA-256 of signedTx, used both
// to stamp a new record's SecurityMetadata.Hash and to detect a client
// resubmitting the exact same payload.
func ContentHash(signedTx string) string {
	sum := hashing.DoubleSHA256([]byte(signedTx))
	return hex.EncodeToString(sum[:])
}

// FindByContentHash returns the existing record whose SecurityMetadata.Hash
// matches signedTx's content hash, if any — the exactly-once check ingress
// performs before ever calling the RPC layer.
func (s *Store) FindByContentHash(signedTx string) (*models.StoredTransaction, error) {
	hash := ContentHash(signedTx)

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.Security.Hash == hash {
			return copyRecord(rec), nil
		}
	}
	return nil, nil
}

// scratchFileName is the probe file the health check writes and deletes;
// its name never collides with a real record since records are named by ID.
const scratchFileName = ".relay-store-healthcheck"

// HealthCheck reports whether the store can still write to its backing
// directory — a write-then-delete of a scratch file — along with the
// current record count and, on failure, the error that caused it.
func (s *Store) HealthCheck() (healthy bool, count int, lastErr error) {
	s.mu.RLock()
	count = len(s.order)
	s.mu.RUnlock()

	dir := dirOf(s.filePath)
	scratchPath := dir + string(os.PathSeparator) + scratchFileName
	if err := storage.AtomicWriteFile(scratchPath, []byte(time.Now().UTC().Format(time.RFC3339Nano)), 0600); err != nil {
		return false, count, err
	}
	if err := os.Remove(scratchPath); err != nil {
		return false, count, err
	}
	return true, count, nil
}

func dirOf(filePath string) string {
	for i := len(filePath) - 1; i >= 0; i-- {
		if filePath[i] == '/' || filePath[i] == '\\' {
			return filePath[:i]
		}
	}
	return "."
}
