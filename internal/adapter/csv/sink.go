// Package csv reads plot locations and writes the tall and wide export tables
// as delimited text.
package csv

import (
	"context"
	stdcsv "encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/couchcryptid/plot-timeseries-etl/internal/domain"
)

const ext = ".csv"

// Sink writes each export as two CSV files in a directory.
// It implements pipeline.Loader.
type Sink struct {
	dir    string
	logger *slog.Logger
}

// NewSink creates the output directory if needed.
func NewSink(dir string, logger *slog.Logger) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Sink{dir: dir, logger: logger}, nil
}

// Path returns the file an export table is written to.
func (s *Sink) Path(variable, kind string) string {
	return TablePath(s.dir, variable, kind)
}

// TablePath returns the path of an export table inside dir.
func TablePath(dir, variable, kind string) string {
	return filepath.Join(dir, domain.ExportBaseName(variable, kind)+ext)
}

// Load writes {variable}_time_series_multiple_tall.csv and
// {variable}_time_series_multiple_wide.csv, replacing earlier exports.
func (s *Sink) Load(ctx context.Context, exp domain.Export) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tallPath := s.Path(exp.Variable.Name, domain.TableTall)
	if err := writeFile(tallPath, func(w *stdcsv.Writer) error {
		return writeTall(w, exp.Variable.Name, exp.Tall)
	}); err != nil {
		return err
	}
	widePath := s.Path(exp.Variable.Name, domain.TableWide)
	if err := writeFile(widePath, func(w *stdcsv.Writer) error {
		return writeWide(w, exp.Columns, exp.Wide)
	}); err != nil {
		return err
	}
	s.logger.Debug("csv export written", "variable", exp.Variable.Name, "tall", tallPath, "wide", widePath)
	return nil
}

func writeTall(w *stdcsv.Writer, variable string, rows []domain.TallRow) error {
	if err := w.Write([]string{"id", "date", variable}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := w.Write([]string{r.RegionID, r.DateKey, formatValue(r.Value)}); err != nil {
			return err
		}
	}
	return nil
}

func writeWide(w *stdcsv.Writer, columns []string, rows []domain.WideRow) error {
	header := make([]string, 0, len(columns)+1)
	header = append(header, "id")
	header = append(header, columns...)
	if err := w.Write(header); err != nil {
		return err
	}
	record := make([]string, len(header))
	for _, r := range rows {
		record[0] = r.RegionID
		for i, c := range columns {
			record[i+1] = ""
			if v := r.Values[c]; v != nil {
				record[i+1] = formatValue(*v)
			}
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	return nil
}

// writeFile writes through a temp file in the same directory and renames it
// into place so readers never see a partial table.
func writeFile(path string, fill func(w *stdcsv.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after rename

	w := stdcsv.NewWriter(tmp)
	if err := fill(w); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
