// Package dashboard owns the market-sizing session state. A single
// goroutine applies typed commands to an immutable Snapshot; generation
// runs in a worker that reports back through the same queue.
package dashboard

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/marketmap/internal/dataservice"
	"github.com/sells-group/marketmap/internal/export"
	"github.com/sells-group/marketmap/internal/model"
	"github.com/sells-group/marketmap/internal/render"
)

var (
	// ErrGenerateInProgress rejects Generate and Export while a
	// generation is running.
	ErrGenerateInProgress = eris.New("dashboard: generation in progress")
	// ErrUnknownCommand is returned by ParseCommand for an unknown type.
	ErrUnknownCommand = eris.New("dashboard: unknown command")
	// ErrUnknownFormat is returned for an export format other than csv or pdf.
	ErrUnknownFormat = eris.New("dashboard: unknown export format")
	// ErrStopped is returned by Dispatch once Run has returned.
	ErrStopped = eris.New("dashboard: stopped")
)

// Fetcher resolves filters to ranked records and table rows.
type Fetcher interface {
	ZipCodes(ctx context.Context, f model.Filters) (model.ZipCodesResponse, dataservice.Source, error)
	Table(ctx context.Context, f model.Filters, perCapita float64) (model.TableResponse, dataservice.Source, error)
}

// Options configures a Dashboard.
type Options struct {
	PageSize  int
	PerCapita float64
	// Title heads PDF reports.
	Title string
}

// Dashboard is the single owner of the session Snapshot.
type Dashboard struct {
	fetch    Fetcher
	sched    *render.Scheduler
	surface  render.Surface
	capturer export.Capturer
	title    string

	inbox   chan envelope
	snap    atomic.Pointer[Snapshot]
	ctx     context.Context
	workers sync.WaitGroup
	stopped chan struct{}

	now   func() time.Time
	newID func() string
}

type envelope struct {
	cmd   Command
	reply chan result
}

type result struct {
	snap Snapshot
	err  error
}

// New returns a Dashboard. The scheduler's surface is the one exported
// and restored; capturer may be nil, in which case PDF reports use the
// textual visual section.
func New(fetch Fetcher, sched *render.Scheduler, capturer export.Capturer, opts Options) *Dashboard {
	d := &Dashboard{
		fetch:    fetch,
		sched:    sched,
		surface:  sched.Surface,
		capturer: capturer,
		title:    opts.Title,
		inbox:    make(chan envelope, 64),
		stopped:  make(chan struct{}),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	s := initial(opts)
	d.snap.Store(&s)
	return d
}

// Snapshot returns the current state.
func (d *Dashboard) Snapshot() Snapshot {
	return *d.snap.Load()
}

// Surface returns the map surface the dashboard renders to.
func (d *Dashboard) Surface() render.Surface {
	return d.surface
}

// Run applies commands until ctx is done, then waits for any generation
// worker to exit.
func (d *Dashboard) Run(ctx context.Context) error {
	d.ctx = ctx
	defer close(d.stopped)

	for {
		select {
		case <-ctx.Done():
			d.workers.Wait()
			return nil
		case env := <-d.inbox:
			next, err := env.cmd.apply(d, d.Snapshot())
			d.snap.Store(&next)
			if env.reply != nil {
				env.reply <- result{snap: next, err: err}
			}
		}
	}
}

// Dispatch applies cmd and returns the resulting snapshot.
func (d *Dashboard) Dispatch(ctx context.Context, cmd Command) (Snapshot, error) {
	reply := make(chan result, 1)
	select {
	case d.inbox <- envelope{cmd: cmd, reply: reply}:
	case <-d.stopped:
		return d.Snapshot(), ErrStopped
	case <-ctx.Done():
		return d.Snapshot(), eris.Wrap(ctx.Err(), "dashboard: dispatch")
	}

	select {
	case r := <-reply:
		return r.snap, r.err
	case <-d.stopped:
		return d.Snapshot(), ErrStopped
	case <-ctx.Done():
		return d.Snapshot(), eris.Wrap(ctx.Err(), "dashboard: dispatch")
	}
}

// post queues a worker message. It gives up when the owner stops.
func (d *Dashboard) post(cmd Command) {
	select {
	case d.inbox <- envelope{cmd: cmd}:
	case <-d.ctx.Done():
	}
}

func (d *Dashboard) startGeneration(gen string, f model.Filters, perCapita float64) {
	d.workers.Add(1)
	go func() {
		defer d.workers.Done()
		d.generate(d.ctx, gen, f, perCapita)
	}()
}

func (d *Dashboard) generate(ctx context.Context, gen string, f model.Filters, perCapita float64) {
	log := zap.L().With(zap.String("generation", gen))
	log.Info("dashboard: generate", zap.Any("filters", f))

	var (
		zips  model.ZipCodesResponse
		table model.TableResponse
		src   dataservice.Source
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		zips, src, err = d.fetch.ZipCodes(gctx, f)
		return err
	})
	g.Go(func() error {
		var err error
		table, _, err = d.fetch.Table(gctx, f, perCapita)
		return err
	})
	if err := g.Wait(); err != nil {
		log.Warn("dashboard: fetch failed", zap.Error(err))
		d.post(fetchedMsg{gen: gen, err: eris.Wrap(err, "dashboard: fetch")})
		return
	}
	d.post(fetchedMsg{gen: gen, zips: zips, table: table, src: src})

	d.sched.Progress = func(p render.Progress) {
		d.post(progressMsg{gen: gen, p: p})
	}
	res, err := d.sched.Run(ctx, zips.ZipCodes)
	if err != nil {
		log.Warn("dashboard: render failed", zap.Error(err))
		d.post(doneMsg{gen: gen, err: err})
		return
	}
	d.post(doneMsg{gen: gen, res: &res})
}

// Artifact is an exported document.
type Artifact struct {
	Filename    string
	ContentType string
	Body        []byte
	Report      *export.ReportStats
}

// Export renders the full row set as "csv" or "pdf". Failures restore the
// pre-export viewport and record the error on the snapshot.
func (d *Dashboard) Export(ctx context.Context, format string) (Artifact, error) {
	var a Artifact
	_, err := d.Dispatch(ctx, exportCmd{ctx: ctx, format: format, out: &a})
	return a, err
}

type exportCmd struct {
	ctx    context.Context
	format string
	out    *Artifact
}

func (c exportCmd) apply(d *Dashboard, s Snapshot) (Snapshot, error) {
	if s.Generating {
		return s, ErrGenerateInProgress
	}
	if c.format != "csv" && c.format != "pdf" {
		return s, eris.Wrapf(ErrUnknownFormat, "dashboard: %q", c.format)
	}
	if len(s.Rows) == 0 {
		return s, export.ErrNoData
	}

	saved := d.surface.View()
	now := d.now()
	var buf bytes.Buffer

	var err error
	switch c.format {
	case "csv":
		err = export.WriteCSV(&buf, s.Rows)
		c.out.ContentType = "text/csv"
	case "pdf":
		var stats export.ReportStats
		stats, err = export.Report{
			Title:       d.title,
			GeneratedAt: now,
			Filters:     s.Filters,
			Summary:     s.Metrics,
			Rows:        s.Rows,
			Snapshot:    d.capturer,
		}.Write(c.ctx, &buf)
		c.out.ContentType = "application/pdf"
		c.out.Report = &stats
	}
	if err != nil {
		d.surface.SetView(saved)
		s.LastError = "Export failed: " + err.Error()
		zap.L().Error("dashboard: export failed", zap.String("format", c.format), zap.Error(err))
		return s, eris.Wrapf(err, "dashboard: export %s", c.format)
	}

	c.out.Filename = export.Filename(now, s.Filters, c.format)
	c.out.Body = buf.Bytes()
	s.LastError = ""
	zap.L().Info("dashboard: exported",
		zap.String("format", c.format),
		zap.String("file", c.out.Filename),
		zap.Int("rows", len(s.Rows)),
		zap.Int("bytes", buf.Len()),
	)
	return s, nil
}
