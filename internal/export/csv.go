package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// CSVWriter writes each export to a new file in Dir.
type CSVWriter struct {
	Dir string
	now func() time.Time
}

var _ Exporter = (*CSVWriter)(nil)

func NewCSVWriter(dir string) *CSVWriter {
	return &CSVWriter{Dir: dir, now: time.Now}
}

// Export writes the rows and returns the file path.
func (w *CSVWriter) Export(ctx context.Context, rows []Row) (string, error) {
	if err := os.MkdirAll(w.Dir, 0755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}
	path := filepath.Join(w.Dir, FileName(w.now(), "csv"))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(Header); err != nil {
		return "", fmt.Errorf("write header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(r.Values()); err != nil {
			return "", fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", fmt.Errorf("flush csv: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}

	slog.InfoContext(ctx, "Exported transactions", "path", path, "rows", len(rows))
	return path, nil
}
