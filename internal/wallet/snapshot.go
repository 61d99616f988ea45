package wallet

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// writeSnapshot persists balances atomically via temp-file-plus-rename, so a
// crash mid-write never leaves the snapshot file unreadable (spec.md §4.1).
func writeSnapshot(path string, balances map[string]float64) error {
	data, err := json.Marshal(balances)
	if err != nil {
		return fmt.Errorf("encode balance snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("fsync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp snapshot into place: %w", err)
	}
	return nil
}
