// Package journal persists one JSON file per finished ingestion cycle for
// offline audit and analysis.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"finfeed/pkg/ingest"
)

// Writer persists cycle summaries to a directory as JSON files.
type Writer struct {
	mu    sync.Mutex
	dir   string
	seq   int
	nowFn func() time.Time
}

// NewWriter constructs a journal writer rooted at dir, creating the
// directory if needed.
func NewWriter(dir string) (*Writer, error) {
	if dir == "" {
		dir = "journal"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: create dir %s: %w", dir, err)
	}
	return &Writer{dir: dir, nowFn: time.Now}, nil
}

// WriteSummary writes one cycle summary to a timestamped JSON file and
// returns its path.
func (w *Writer) WriteSummary(sum *ingest.Summary) (string, error) {
	if sum == nil {
		return "", fmt.Errorf("journal: nil summary")
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	stamp := sum.EndedAt
	if stamp.IsZero() {
		stamp = w.nowFn()
	}
	w.seq++
	name := fmt.Sprintf("cycle_%s_%05d.json", stamp.UTC().Format("20060102_150405"), w.seq)
	path := filepath.Join(w.dir, name)
	data, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
