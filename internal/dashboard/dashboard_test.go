package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/marketmap/internal/dataservice"
	"github.com/sells-group/marketmap/internal/export"
	"github.com/sells-group/marketmap/internal/model"
	"github.com/sells-group/marketmap/internal/render"
)

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) ZipCodes(ctx context.Context, f model.Filters) (model.ZipCodesResponse, dataservice.Source, error) {
	args := m.Called(ctx, f)
	return args.Get(0).(model.ZipCodesResponse), args.Get(1).(dataservice.Source), args.Error(2)
}

func (m *mockFetcher) Table(ctx context.Context, f model.Filters, perCapita float64) (model.TableResponse, dataservice.Source, error) {
	args := m.Called(ctx, f, perCapita)
	return args.Get(0).(model.TableResponse), args.Get(1).(dataservice.Source), args.Error(2)
}

type captureFunc func(ctx context.Context) ([]byte, error)

func (f captureFunc) Capture(ctx context.Context) ([]byte, error) { return f(ctx) }

func testRecords(n int) []model.ZipRecord {
	out := make([]model.ZipRecord, n)
	for i := range out {
		out[i] = model.ZipRecord{
			ZipCode:    fmt.Sprintf("%05d", 75000+i),
			Latitude:   30 + float64(i)/10,
			Longitude:  -97 - float64(i)/10,
			Population: int64(1000 * (n - i)),
			State:      "TX",
		}
	}
	return out
}

func testRows(recs []model.ZipRecord, perCapita float64) []model.TableRow {
	rows := make([]model.TableRow, len(recs))
	for i, r := range recs {
		rows[i] = model.NewTableRow(r.ZipCode, "Austin", r.State, r.Population*2, r.Population, perCapita)
	}
	return rows
}

func fixture(n int) (model.ZipCodesResponse, model.TableResponse) {
	recs := testRecords(n)
	var total int64
	for _, r := range recs {
		total += r.Population
	}
	zips := model.ZipCodesResponse{ZipCodes: recs, TotalZipCodes: int64(n), TotalPopulation: total}
	rows := testRows(recs, 100)
	return zips, model.TableResponse{TableData: rows, TotalZipCodes: int64(n)}
}

type harness struct {
	d       *Dashboard
	fetch   *mockFetcher
	surface *render.MemorySurface
	cancel  context.CancelFunc
	done    chan struct{}
}

func newHarness(t *testing.T, capturer export.Capturer) *harness {
	t.Helper()
	surface := render.NewMemorySurface(800, 500)
	sched := render.NewScheduler(surface, 5, 0)
	fetch := &mockFetcher{}

	d := New(fetch, sched, capturer, Options{PageSize: 10, PerCapita: 100, Title: "Test Report"})
	d.now = func() time.Time { return time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC) }

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{d: d, fetch: fetch, surface: surface, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		_ = d.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	return h
}

func (h *harness) dispatch(t *testing.T, cmd Command) Snapshot {
	t.Helper()
	s, err := h.d.Dispatch(context.Background(), cmd)
	require.NoError(t, err)
	return s
}

func (h *harness) waitIdle(t *testing.T) Snapshot {
	t.Helper()
	require.Eventually(t, func() bool { return !h.d.Snapshot().Generating }, 2*time.Second, 5*time.Millisecond)
	return h.d.Snapshot()
}

func TestInitialSnapshot(t *testing.T) {
	h := newHarness(t, nil)
	s := h.d.Snapshot()

	assert.Equal(t, 100.0, s.PerCapita)
	assert.Equal(t, ViewMap, s.View)
	assert.Equal(t, 10, s.Page.PageSize)
	assert.Equal(t, 1, s.Page.CurrentPage)
	assert.False(t, s.HasResults)
	assert.False(t, s.Generating)
}

func TestGenerate_FullCycle(t *testing.T) {
	h := newHarness(t, nil)
	zips, table := fixture(23)

	h.fetch.On("ZipCodes", mock.Anything, model.Filters{"gender": "female"}).Return(zips, dataservice.SourceService, nil).Once()
	h.fetch.On("Table", mock.Anything, model.Filters{"gender": "female"}, 250.0).Return(table, dataservice.SourceService, nil).Once()

	h.dispatch(t, SetFilter{Key: "Gender", Value: "female"})
	h.dispatch(t, SetPerCapita{Value: 250})
	s := h.dispatch(t, Generate{})
	assert.True(t, s.Generating)
	assert.NotEmpty(t, s.Generation)

	s = h.waitIdle(t)
	assert.Empty(t, s.LastError)
	assert.True(t, s.HasResults)
	assert.Equal(t, dataservice.SourceService, s.Source)
	assert.Len(t, s.Records, 23)
	assert.Len(t, s.Rows, 23)
	assert.Equal(t, zips.TotalPopulation, s.Coverage.TotalPopulation)
	assert.InDelta(t, float64(zips.TotalPopulation)*250, s.Metrics.MarketSize, 1e-6)
	assert.Equal(t, 3, s.Page.TotalPages())
	assert.Equal(t, 23, s.Progress.Done)
	assert.Equal(t, 100, s.Progress.Percent())

	require.NotNil(t, s.LastRun)
	assert.Equal(t, 23, s.LastRun.Placed)
	assert.Equal(t, 5, s.LastRun.Batches)
	assert.Len(t, h.surface.Markers(), 23)
	_, fitted := h.surface.LastFit()
	assert.True(t, fitted)

	h.fetch.AssertExpectations(t)
}

func TestGenerate_RejectedWhileRunning(t *testing.T) {
	h := newHarness(t, nil)
	zips, table := fixture(3)
	release := make(chan struct{})

	h.fetch.On("ZipCodes", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return(zips, dataservice.SourceService, nil).Once()
	h.fetch.On("Table", mock.Anything, mock.Anything, mock.Anything).Return(table, dataservice.SourceService, nil).Once()

	h.dispatch(t, Generate{})

	_, err := h.d.Dispatch(context.Background(), Generate{})
	require.ErrorIs(t, err, ErrGenerateInProgress)

	_, err = h.d.Export(context.Background(), "csv")
	require.ErrorIs(t, err, ErrGenerateInProgress)

	// Navigation still works on the cached state.
	s := h.dispatch(t, ToggleView{})
	assert.Equal(t, ViewTable, s.View)

	close(release)
	s = h.waitIdle(t)
	assert.Len(t, s.Records, 3)
	h.fetch.AssertExpectations(t)
}

func TestGenerate_SecondRunReplacesMarkers(t *testing.T) {
	h := newHarness(t, nil)
	zips1, table1 := fixture(12)
	zips2, table2 := fixture(4)

	h.fetch.On("ZipCodes", mock.Anything, mock.Anything).Return(zips1, dataservice.SourceService, nil).Once()
	h.fetch.On("Table", mock.Anything, mock.Anything, mock.Anything).Return(table1, dataservice.SourceService, nil).Once()
	h.fetch.On("ZipCodes", mock.Anything, mock.Anything).Return(zips2, dataservice.SourceSample, nil).Once()
	h.fetch.On("Table", mock.Anything, mock.Anything, mock.Anything).Return(table2, dataservice.SourceSample, nil).Once()

	h.dispatch(t, Generate{})
	h.waitIdle(t)
	h.dispatch(t, LastPage{})

	h.dispatch(t, Generate{})
	s := h.waitIdle(t)

	assert.Len(t, h.surface.Markers(), 4)
	assert.Equal(t, dataservice.SourceSample, s.Source)
	assert.Equal(t, 1, s.Page.CurrentPage, "new row set resets to page 1")
	assert.Equal(t, 4, s.Page.TotalRows)
}

func TestGenerate_FetchError(t *testing.T) {
	h := newHarness(t, nil)

	h.fetch.On("ZipCodes", mock.Anything, mock.Anything).Return(model.ZipCodesResponse{}, dataservice.SourceService, errors.New("context canceled")).Once()
	h.fetch.On("Table", mock.Anything, mock.Anything, mock.Anything).Return(model.TableResponse{}, dataservice.SourceService, nil).Maybe()

	h.dispatch(t, Generate{})
	s := h.waitIdle(t)

	assert.False(t, s.HasResults)
	assert.Contains(t, s.LastError, "dashboard: fetch")
	assert.Empty(t, h.surface.Markers())
}

func TestGenerate_EmptyResult(t *testing.T) {
	h := newHarness(t, nil)

	h.fetch.On("ZipCodes", mock.Anything, mock.Anything).Return(model.ZipCodesResponse{}, dataservice.SourceService, nil).Once()
	h.fetch.On("Table", mock.Anything, mock.Anything, mock.Anything).Return(model.TableResponse{}, dataservice.SourceService, nil).Once()

	h.dispatch(t, Generate{})
	s := h.waitIdle(t)

	assert.False(t, s.HasResults)
	assert.Empty(t, s.LastError)
	v := ViewOf(s, 5)
	assert.Nil(t, v.Summary)
	assert.Nil(t, v.Totals)
	assert.Empty(t, v.Rows)
}

func TestStaleMessagesIgnored(t *testing.T) {
	h := newHarness(t, nil)
	zips, table := fixture(3)

	s := h.dispatch(t, fetchedMsg{gen: "old", zips: zips, table: table, src: dataservice.SourceService})
	assert.False(t, s.HasResults)

	s = h.dispatch(t, progressMsg{gen: "old", p: render.Progress{Done: 3, Total: 3}})
	assert.Equal(t, 0, s.Progress.Done)

	s = h.dispatch(t, doneMsg{gen: "old"})
	assert.Nil(t, s.LastRun)
}

func TestPaginationCommands(t *testing.T) {
	h := newHarness(t, nil)
	zips, table := fixture(42)

	h.fetch.On("ZipCodes", mock.Anything, mock.Anything).Return(zips, dataservice.SourceService, nil).Once()
	h.fetch.On("Table", mock.Anything, mock.Anything, mock.Anything).Return(table, dataservice.SourceService, nil).Once()
	h.dispatch(t, Generate{})
	h.waitIdle(t)

	s := h.dispatch(t, NextPage{})
	assert.Equal(t, 2, s.Page.CurrentPage)
	s = h.dispatch(t, LastPage{})
	assert.Equal(t, 5, s.Page.CurrentPage)
	s = h.dispatch(t, NextPage{})
	assert.Equal(t, 5, s.Page.CurrentPage)
	s = h.dispatch(t, GoToPage{Page: 99})
	assert.Equal(t, 5, s.Page.CurrentPage)
	s = h.dispatch(t, PreviousPage{})
	assert.Equal(t, 4, s.Page.CurrentPage)
	s = h.dispatch(t, FirstPage{})
	assert.Equal(t, 1, s.Page.CurrentPage)

	h.dispatch(t, GoToPage{Page: 3})
	s = h.dispatch(t, SetPageSize{Size: 25})
	assert.Equal(t, 1, s.Page.CurrentPage)
	assert.Equal(t, 2, s.Page.TotalPages())

	v := ViewOf(h.dispatch(t, NextPage{}), 5)
	assert.Len(t, v.Rows, 17)
	assert.Equal(t, []int{1, 2}, v.Window)
	assert.False(t, v.HasNext)
	assert.True(t, v.HasPrev)

	_, err := h.d.Dispatch(context.Background(), SetPageSize{Size: 0})
	require.Error(t, err)
}

func TestSetPerCapita_RecomputesWithoutFetch(t *testing.T) {
	h := newHarness(t, nil)
	zips, table := fixture(2)

	h.fetch.On("ZipCodes", mock.Anything, mock.Anything).Return(zips, dataservice.SourceService, nil).Once()
	h.fetch.On("Table", mock.Anything, mock.Anything, mock.Anything).Return(table, dataservice.SourceService, nil).Once()
	h.dispatch(t, Generate{})
	before := h.waitIdle(t)

	s := h.dispatch(t, SetPerCapita{Value: -5})
	assert.Equal(t, 100.0, s.PerCapita, "non-positive falls back to default")

	s = h.dispatch(t, SetPerCapita{Value: 50})
	assert.InDelta(t, before.Metrics.MarketSize/2, s.Metrics.MarketSize, 1e-6)
	assert.InDelta(t, before.Rows[0].MarketPotential/2, s.Rows[0].MarketPotential, 1e-6)
	assert.InDelta(t, 100*float64(before.Rows[0].TargetAudience), before.Rows[0].MarketPotential, 1e-6, "earlier snapshot untouched")

	h.fetch.AssertNumberOfCalls(t, "ZipCodes", 1)
}

func TestSetPerCapita_DuringFetchRepricesRows(t *testing.T) {
	h := newHarness(t, nil)
	zips, table := fixture(3)
	release := make(chan struct{})

	h.fetch.On("ZipCodes", mock.Anything, mock.Anything).Return(zips, dataservice.SourceService, nil).Once()
	h.fetch.On("Table", mock.Anything, mock.Anything, 100.0).
		Run(func(mock.Arguments) { <-release }).
		Return(table, dataservice.SourceService, nil).Once()

	h.dispatch(t, Generate{})
	s := h.dispatch(t, SetPerCapita{Value: 200})
	assert.True(t, s.Generating)
	close(release)

	s = h.waitIdle(t)
	require.Len(t, s.Rows, 3)
	assert.Equal(t, 200.0, s.PerCapita)
	for _, r := range s.Rows {
		assert.InDelta(t, float64(r.TargetAudience)*200, r.MarketPotential, 1e-6, "zip %s", r.ZipCode)
	}
	assert.InDelta(t, float64(zips.TotalPopulation)*200, s.Metrics.MarketSize, 1e-6)
	assert.InDelta(t, s.Metrics.MarketSize, model.Totals(s.Rows).MarketPotential, 1e-6)
	assert.InDelta(t, 100*float64(table.TableData[0].TargetAudience), table.TableData[0].MarketPotential, 1e-6, "fetched rows untouched")
}

func TestSetFilter(t *testing.T) {
	h := newHarness(t, nil)

	s := h.dispatch(t, SetFilter{Key: "age", Value: "30-39"})
	assert.Equal(t, "30-39", s.Filters["age"])

	s = h.dispatch(t, SetFilter{Key: "age", Value: "all"})
	_, ok := s.Filters["age"]
	assert.False(t, ok)

	_, err := h.d.Dispatch(context.Background(), SetFilter{Key: " ", Value: "x"})
	require.Error(t, err)
}

func TestExport_NoData(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.d.Export(context.Background(), "csv")
	require.ErrorIs(t, err, export.ErrNoData)

	_, err = h.d.Export(context.Background(), "xls")
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestExport_CSVAndPDF(t *testing.T) {
	h := newHarness(t, nil)
	zips, table := fixture(30)

	h.fetch.On("ZipCodes", mock.Anything, mock.Anything).Return(zips, dataservice.SourceService, nil).Once()
	h.fetch.On("Table", mock.Anything, mock.Anything, mock.Anything).Return(table, dataservice.SourceService, nil).Once()
	h.dispatch(t, SetFilter{Key: "ethnicity", Value: "hispanic"})
	h.dispatch(t, Generate{})
	h.waitIdle(t)
	h.dispatch(t, LastPage{})

	a, err := h.d.Export(context.Background(), "csv")
	require.NoError(t, err)
	assert.Equal(t, "zip-code-analysis_20261017-093000_hispanic.csv", a.Filename)
	assert.Equal(t, "text/csv", a.ContentType)
	lines := strings.Split(strings.TrimSpace(string(a.Body)), "\n")
	assert.Len(t, lines, 31, "header plus every row, not one page")

	a, err = h.d.Export(context.Background(), "pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", a.ContentType)
	assert.True(t, strings.HasPrefix(string(a.Body), "%PDF"))
	require.NotNil(t, a.Report)
	assert.Equal(t, export.VisualTextual, a.Report.Visual)
	assert.Equal(t, 30, a.Report.Rows)
}

func TestExport_FailureRestoresView(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var h *harness
	var once sync.Once
	capturer := captureFunc(func(context.Context) ([]byte, error) {
		once.Do(func() {
			h.surface.SetView(render.Viewport{Lon: 0, Lat: 0, Zoom: 9})
			cancel()
		})
		return nil, errors.New("no canvas")
	})
	h = newHarness(t, capturer)
	zips, table := fixture(3)

	h.fetch.On("ZipCodes", mock.Anything, mock.Anything).Return(zips, dataservice.SourceService, nil).Once()
	h.fetch.On("Table", mock.Anything, mock.Anything, mock.Anything).Return(table, dataservice.SourceService, nil).Once()
	h.dispatch(t, Generate{})
	h.waitIdle(t)
	before := h.surface.View()

	_, err := h.d.Dispatch(context.Background(), exportCmd{ctx: ctx, format: "pdf", out: &Artifact{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dashboard: export pdf")

	assert.Equal(t, before, h.surface.View())
	s := h.d.Snapshot()
	assert.Contains(t, s.LastError, "Export failed")
	assert.True(t, s.HasResults, "results survive a failed export")
}

func TestDispatch_AfterStop(t *testing.T) {
	h := newHarness(t, nil)
	h.cancel()
	<-h.done

	_, err := h.d.Dispatch(context.Background(), ToggleView{})
	require.ErrorIs(t, err, ErrStopped)
}
