package ingestioncore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"vantage/internal/logging"
)

// failureEntry mirrors ingestion.py's _track_failed_file failure record.
type failureEntry struct {
	Filename  string `json:"filename"`
	Type      string `json:"type"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

var failedFilesLock sync.Mutex

// recordFailure appends a best-effort entry to FailedLogPath, deduping by
// (filename, type) the way ingestion.py's _track_failed_file does. Any
// error writing the log itself is only logged, never propagated, so a log
// write failure never masks the original ingestion error.
func (p *Pipeline) recordFailure(path string, cause error) {
	if p.FailedLogPath == "" {
		return
	}
	failedFilesLock.Lock()
	defer failedFilesLock.Unlock()

	var failures []failureEntry
	if b, err := os.ReadFile(p.FailedLogPath); err == nil {
		_ = json.Unmarshal(b, &failures)
	}

	errMsg := cause.Error()
	if len(errMsg) > 200 {
		errMsg = errMsg[:200]
	}
	entry := failureEntry{
		Filename:  filepath.Base(path),
		Type:      "ingestion",
		Error:     errMsg,
		Timestamp: time.Now().Format(time.RFC3339),
	}

	kept := failures[:0]
	for _, f := range failures {
		if f.Filename == entry.Filename && f.Type == entry.Type {
			continue
		}
		kept = append(kept, f)
	}
	kept = append(kept, entry)

	if err := os.MkdirAll(filepath.Dir(p.FailedLogPath), 0o755); err != nil {
		logging.Log.WithError(err).Error("ingestioncore: failed to create failed-ingestion log dir")
		return
	}
	b, err := json.MarshalIndent(kept, "", "  ")
	if err != nil {
		logging.Log.WithError(err).Error("ingestioncore: failed to marshal failed-ingestion log")
		return
	}
	if err := os.WriteFile(p.FailedLogPath, b, 0o644); err != nil {
		logging.Log.WithError(err).Error("ingestioncore: failed to write failed-ingestion log")
	}
}
