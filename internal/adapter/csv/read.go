package csv

import (
	stdcsv "encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/couchcryptid/plot-timeseries-etl/internal/domain"
)

// ReadTall reads a tall export and returns its value column name and rows.
func ReadTall(path string) (string, []domain.TallRow, error) {
	records, err := readAll(path)
	if err != nil {
		return "", nil, err
	}
	if len(records[0]) != 3 || records[0][0] != "id" || records[0][1] != "date" {
		return "", nil, fmt.Errorf("%s: unexpected tall header %v", path, records[0])
	}
	rows := make([]domain.TallRow, 0, len(records)-1)
	for i, rec := range records[1:] {
		v, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return "", nil, fmt.Errorf("%s row %d: %w", path, i+2, err)
		}
		rows = append(rows, domain.TallRow{RegionID: rec[0], DateKey: rec[1], Value: v})
	}
	return records[0][2], rows, nil
}

// ReadWide reads a wide export. Empty cells come back as nil values.
func ReadWide(path string) ([]string, []domain.WideRow, error) {
	records, err := readAll(path)
	if err != nil {
		return nil, nil, err
	}
	if records[0][0] != "id" {
		return nil, nil, fmt.Errorf("%s: unexpected wide header %v", path, records[0])
	}
	columns := records[0][1:]
	rows := make([]domain.WideRow, 0, len(records)-1)
	for i, rec := range records[1:] {
		row := domain.WideRow{RegionID: rec[0], Values: make(map[string]*float64, len(columns))}
		for j, c := range columns {
			cell := rec[j+1]
			if cell == "" {
				row.Values[c] = nil
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("%s row %d column %s: %w", path, i+2, c, err)
			}
			row.Values[c] = &v
		}
		rows = append(rows, row)
	}
	return columns, rows, nil
}

func readAll(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := stdcsv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: empty file", path)
	}
	return records, nil
}
