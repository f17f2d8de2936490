// Package csvloader implements the one concrete boundary.SeriesLoader
// shipped with this module: CSV time-series files with an optional header
// row (spec.md §6).
//
// No CSV library appears anywhere in the retrieval pack (see DESIGN.md), so
// this is the one place the module reaches for encoding/csv directly rather
// than an ecosystem dependency — everywhere else a pack library is
// available this module uses it instead.
package csvloader

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hipims/hipims-go/internal/boundary"
)

// Loader reads boundary series from CSV files under a source directory.
type Loader struct {
	Log *logrus.Logger
}

// New constructs a Loader. If log is nil, a default logrus logger is used.
func New(log *logrus.Logger) *Loader {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Loader{Log: log}
}

// Load reads path as a CSV time series for the given boundary kind.
// Rejected rows (wrong column count, non-numeric fields) are counted,
// logged, and skipped rather than aborting the load (spec.md §7); a
// resulting series with fewer than two valid rows is returned as-is and
// left to the caller (boundary.Series.Validate) to disable.
func (l *Loader) Load(kind boundary.Kind, path string) (boundary.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return boundary.Series{}, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	wantCols := columnsFor(kind)

	var entries []boundary.TimeSeriesEntry
	rejected := 0
	first := true
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			rejected++
			continue
		}

		if first {
			first = false
			if looksLikeHeader(record) {
				continue
			}
		}

		entry, ok := parseRow(record, kind, wantCols)
		if !ok {
			rejected++
			continue
		}
		entries = append(entries, entry)
	}

	if rejected > 0 {
		l.Log.WithFields(logrus.Fields{"path": path, "rejected": rejected}).
			Warn("csvloader: skipped malformed rows")
	}

	return boundary.Series{Entries: entries}, nil
}

func columnsFor(kind boundary.Kind) int {
	switch kind {
	case boundary.KindUniform:
		return 2 // t, value
	case boundary.KindCell, boundary.KindPromaides:
		return 4 // t, depth, qx, qy
	default:
		return 0 // gridded: variable column count, one per cell
	}
}

func looksLikeHeader(record []string) bool {
	if len(record) == 0 {
		return false
	}
	_, err := strconv.ParseFloat(strings.TrimSpace(record[0]), 64)
	return err != nil
}

func parseRow(record []string, kind boundary.Kind, wantCols int) (boundary.TimeSeriesEntry, bool) {
	if wantCols > 0 && len(record) != wantCols {
		return boundary.TimeSeriesEntry{}, false
	}
	values := make([]float64, len(record))
	for i, field := range record {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return boundary.TimeSeriesEntry{}, false
		}
		values[i] = v
	}

	switch kind {
	case boundary.KindUniform:
		return boundary.TimeSeriesEntry{T: values[0], Depth: values[1]}, true
	case boundary.KindCell, boundary.KindPromaides:
		return boundary.TimeSeriesEntry{T: values[0], Depth: values[1], Qx: values[2], Qy: values[3]}, true
	default: // gridded
		if len(values) < 2 {
			return boundary.TimeSeriesEntry{}, false
		}
		return boundary.TimeSeriesEntry{T: values[0], Grid: values[1:]}, true
	}
}
