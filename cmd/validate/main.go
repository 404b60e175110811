// Command validate checks exported tall and wide CSV tables: ordering,
// uniqueness, the sentinel filter, and that every wide cell is the same-day
// maximum backing the tall rows. With -expected-dir it also diffs the exports
// against the tables genmock produced.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -dataset sentinel2 \
//	  -dir exports \
//	  -expected-dir data/mock/expected
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	csvsink "github.com/couchcryptid/plot-timeseries-etl/internal/adapter/csv"
	"github.com/couchcryptid/plot-timeseries-etl/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	dataset := flag.String("dataset", "sentinel2", "dataset profile the exports were produced from")
	dir := flag.String("dir", "exports", "directory containing exported CSVs")
	variables := flag.String("variables", "", "comma-separated variables to check (default: all in the profile)")
	expectedDir := flag.String("expected-dir", "", "directory of expected CSVs (optional)")
	flag.Parse()

	if code := run(*dataset, *dir, *variables, *expectedDir); code != 0 {
		os.Exit(code)
	}
}

func run(dataset, dir, variables, expectedDir string) int {
	ds, err := domain.LookupDataset(dataset)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}
	var names []string
	if variables != "" {
		names = strings.Split(variables, ",")
	}
	vars, err := ds.Select(names)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	fmt.Printf("=== Export Validation: %s (%d variables) ===\n\n", ds.Name, len(vars))

	actual, err := openExportDir(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	var expected exportDir
	if expectedDir != "" {
		if expected, err = openExportDir(expectedDir); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
			return 1
		}
	}

	var phases []*phase
	var tallRows, wideRows int
	for _, v := range vars {
		got, err := actual.read(v.Name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
			return 1
		}
		tallRows += len(got.tall)
		wideRows += len(got.wide)

		phases = append(phases,
			validateTall(v.Name, got),
			validateWide(v.Name, got, ds.DateKeyLen),
			validateAgreement(v.Name, got),
		)
		if expected != "" {
			want, err := expected.read(v.Name)
			if err != nil {
				fmt.Fprintf(os.Stderr, "FATAL: expected %v\n", err)
				return 1
			}
			phases = append(phases, validateExpected(v.Name, got, want))
		}
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Rows: %d tall, %d wide\n", tallRows, wideRows)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// exportDir reads the tables of a CSV export directory.
type exportDir string

func openExportDir(dir string) (exportDir, error) {
	if _, err := os.Stat(dir); err != nil {
		return "", err
	}
	return exportDir(dir), nil
}

func (d exportDir) read(variable string) (tables, error) {
	valueCol, tall, err := csvsink.ReadTall(csvsink.TablePath(string(d), variable, domain.TableTall))
	if err != nil {
		return tables{}, err
	}
	if valueCol != variable {
		return tables{}, fmt.Errorf("%s: tall value column is %q", variable, valueCol)
	}
	columns, wide, err := csvsink.ReadWide(csvsink.TablePath(string(d), variable, domain.TableWide))
	if err != nil {
		return tables{}, err
	}
	return tables{tall: tall, columns: columns, wide: wide}, nil
}
