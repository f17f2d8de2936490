package csvloader_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hipims/hipims-go/internal/boundary"
	"github.com/hipims/hipims-go/internal/csvloader"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "series.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadUniformSeries(t *testing.T) {
	path := writeCSV(t, "0,1.0\n10,2.0\n")
	l := csvloader.New(nil)
	s, err := l.Load(boundary.KindUniform, path)
	require.NoError(t, err)
	require.Len(t, s.Entries, 2)
	assert.Equal(t, 1.0, s.Entries[0].Depth)
	assert.Equal(t, 10.0, s.Entries[1].T)
}

func TestLoadSkipsHeaderRow(t *testing.T) {
	path := writeCSV(t, "time,value\n0,1.0\n10,2.0\n")
	l := csvloader.New(nil)
	s, err := l.Load(boundary.KindUniform, path)
	require.NoError(t, err)
	assert.Len(t, s.Entries, 2)
}

func TestLoadCellSeriesAllColumns(t *testing.T) {
	path := writeCSV(t, "0,1.0,2.0,3.0\n10,4.0,5.0,6.0\n")
	l := csvloader.New(nil)
	s, err := l.Load(boundary.KindCell, path)
	require.NoError(t, err)
	require.Len(t, s.Entries, 2)
	assert.Equal(t, boundary.TimeSeriesEntry{T: 0, Depth: 1.0, Qx: 2.0, Qy: 3.0}, s.Entries[0])
}

func TestLoadGriddedSeriesVariableColumns(t *testing.T) {
	path := writeCSV(t, "0,1.0,2.0,3.0\n10,4.0,5.0,6.0\n")
	l := csvloader.New(nil)
	s, err := l.Load(boundary.KindGridded, path)
	require.NoError(t, err)
	require.Len(t, s.Entries, 2)
	assert.Equal(t, []float64{1.0, 2.0, 3.0}, s.Entries[0].Grid)
}

func TestLoadSkipsMalformedRows(t *testing.T) {
	path := writeCSV(t, "0,1.0\nnotanumber,x\n10,2.0\n")
	l := csvloader.New(nil)
	s, err := l.Load(boundary.KindUniform, path)
	require.NoError(t, err)
	assert.Len(t, s.Entries, 2)
}

func TestLoadSkipsWrongColumnCount(t *testing.T) {
	path := writeCSV(t, "0,1.0,2.0\n10,2.0\n")
	l := csvloader.New(nil)
	s, err := l.Load(boundary.KindUniform, path)
	require.NoError(t, err)
	assert.Len(t, s.Entries, 1)
}

func TestLoadReturnsErrorOnMissingFile(t *testing.T) {
	l := csvloader.New(nil)
	_, err := l.Load(boundary.KindUniform, "/nonexistent/path.csv")
	assert.Error(t, err)
}
