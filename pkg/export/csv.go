// Package export writes normalized workouts to CSV files.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xokvictor/miles-mcp/pkg/ride"
)

// WriteCSV writes workouts to path with a header row. An empty slice still
// produces a header-only file. The target is replaced atomically, so a
// failed write never leaves a partial file behind.
func WriteCSV(path string, workouts []ride.Workout) (err error) {
	if path == "" {
		return fmt.Errorf("%w: output path not set", ride.ErrConfiguration)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	w := csv.NewWriter(tmp)
	if err := w.Write(ride.Columns()); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, workout := range workouts {
		if err := w.Write(workout.Record()); err != nil {
			return fmt.Errorf("writing workout %s: %w", workout.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
