package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// PathSnapshot is the per-path slice of a metrics snapshot.
type PathSnapshot struct {
	LatencyMs float64 `json:"latency_ms"`
	LossPct   float64 `json:"loss_pct"`
	Quality   float64 `json:"quality"`
	Available bool    `json:"available"`
}

// Snapshot is the structure periodically persisted for external viewers.
type Snapshot struct {
	Timestamp time.Time               `json:"timestamp"`
	Paths     map[string]PathSnapshot `json:"paths"`
	Anomalies map[string]uint64       `json:"anomalies"`
	Bandwidth map[string]float64      `json:"bandwidth_mbps"`
}

// WriteSnapshot persists a snapshot atomically (write to a temp file in
// the same directory, then rename) so readers never observe a partial
// document.
func WriteSnapshot(path string, snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".metrics-*.json")
	if err != nil {
		return fmt.Errorf("creating snapshot temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing snapshot temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot loads a previously written snapshot.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("parsing snapshot: %w", err)
	}
	return snap, nil
}
