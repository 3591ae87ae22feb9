//go:build !integration

package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/marketmap/internal/dashboard"
	"github.com/sells-group/marketmap/internal/dataservice"
	"github.com/sells-group/marketmap/internal/export"
	"github.com/sells-group/marketmap/internal/model"
)

type stubFetcher struct {
	zips  model.ZipCodesResponse
	table model.TableResponse
	err   error
}

func (s stubFetcher) ZipCodes(context.Context, model.Filters) (model.ZipCodesResponse, dataservice.Source, error) {
	return s.zips, dataservice.SourceService, s.err
}

func (s stubFetcher) Table(context.Context, model.Filters, float64) (model.TableResponse, dataservice.Source, error) {
	return s.table, dataservice.SourceService, s.err
}

func sampleFetcher() stubFetcher {
	recs := []model.ZipRecord{
		{ZipCode: "78701", Latitude: 30.27, Longitude: -97.74, Population: 5000, State: "TX", City: "Austin"},
		{ZipCode: "10001", Latitude: 40.75, Longitude: -73.99, Population: 11000, State: "NY", City: "New York"},
	}
	return stubFetcher{
		zips: model.ZipCodesResponse{ZipCodes: recs, TotalZipCodes: 2, TotalPopulation: 16000},
		table: model.TableResponse{
			TableData: []model.TableRow{
				model.NewTableRow("10001", "New York", "NY", 20000, 11000, 100),
				model.NewTableRow("78701", "Austin", "TX", 10000, 5000, 100),
			},
			TotalZipCodes: 2,
		},
	}
}

var exportNow = time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)

func TestRunExport_CSV(t *testing.T) {
	dir := t.TempDir()

	path, err := runExport(context.Background(), sampleFetcher(), exportRequest{
		Format: "csv", Filters: model.Filters{"gender": "female"}, PerCapita: 100, OutDir: dir, Now: exportNow,
	})
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.Equal(t, export.Filename(exportNow, model.Filters{"gender": "female"}, "csv"), filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "10001,"))
}

func TestRunExport_PDF(t *testing.T) {
	dir := t.TempDir()

	path, err := runExport(context.Background(), sampleFetcher(), exportRequest{
		Format: "pdf", PerCapita: 100, OutDir: dir, Title: "Report", Now: exportNow,
	})
	require.NoError(t, err)
	assert.Equal(t, ".pdf", filepath.Ext(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}

func TestRunExport_NoData(t *testing.T) {
	dir := t.TempDir()

	for _, format := range []string{"csv", "pdf"} {
		_, err := runExport(context.Background(), stubFetcher{}, exportRequest{Format: format, OutDir: dir, Now: exportNow})
		require.ErrorIs(t, err, export.ErrNoData, format)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no file on failure")
}

func TestRunExport_Errors(t *testing.T) {
	_, err := runExport(context.Background(), sampleFetcher(), exportRequest{Format: "xlsx", OutDir: t.TempDir()})
	require.ErrorIs(t, err, dashboard.ErrUnknownFormat)

	_, err = runExport(context.Background(), stubFetcher{err: errors.New("boom")}, exportRequest{Format: "csv", OutDir: t.TempDir()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}
