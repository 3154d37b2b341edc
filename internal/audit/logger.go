// Package audit is the Critical-Path Guard's append-only trail: every trip,
// recovery, and critical failure lands here as one NDJSON line, durable
// across restarts where the breaker's in-memory ring is not.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/airchainpay/relay/internal/models"
	"github.com/airchainpay/relay/internal/relayerr"
)

// Logger appends audit records to a single NDJSON file.
type Logger struct {
	filePath string
	mu       sync.Mutex
}

// New creates a Logger writing to filePath, creating its parent directory if
// necessary.
func New(filePath string) (*Logger, error) {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, relayerr.Storage("ERR_AUDIT_DIR", "failed to create audit log directory", err)
	}
	return &Logger{filePath: filePath}, nil
}

// LogOperation appends entry as one NDJSON line, fsyncing before it returns.
func (l *Logger) LogOperation(entry models.ErrorRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.OpenFile(l.filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return relayerr.Storage("ERR_AUDIT_OPEN", "failed to open audit log", err)
	}
	defer file.Close()

	line, err := json.Marshal(entry)
	if err != nil {
		return relayerr.Storage("ERR_AUDIT_MARSHAL", "failed to marshal audit entry", err)
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		return relayerr.Storage("ERR_AUDIT_WRITE", "failed to write audit entry", err)
	}
	if err := file.Sync(); err != nil {
		return relayerr.Storage("ERR_AUDIT_SYNC", "failed to sync audit log", err)
	}
	return nil
}

// ReadAll returns every record currently in the log, in file order.
func (l *Logger) ReadAll() ([]models.ErrorRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.Open(l.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []models.ErrorRecord{}, nil
		}
		return nil, relayerr.Storage("ERR_AUDIT_READ", "failed to read audit log", err)
	}
	defer file.Close()

	var entries []models.ErrorRecord
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry models.ErrorRecord
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan audit log: %w", err)
	}
	return entries, nil
}
