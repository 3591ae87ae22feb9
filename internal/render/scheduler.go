package render

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/marketmap/internal/model"
)

// Defaults for progressive placement.
const (
	DefaultBatchSize = 5
	DefaultPause     = 100 * time.Millisecond
)

// ErrRunInProgress is returned when Run is called while another run is active.
var ErrRunInProgress = eris.New("render: run already in progress")

// Progress is reported after each batch.
type Progress struct {
	Generation string `json:"generation"`
	Done       int    `json:"done"`
	Placed     int    `json:"placed"`
	Total      int    `json:"total"`
}

// Percent returns Done as a whole percentage of Total.
func (p Progress) Percent() int {
	if p.Total == 0 {
		return 100
	}
	return p.Done * 100 / p.Total
}

// ProgressFunc receives batch progress.
type ProgressFunc func(Progress)

// RunResult summarizes a completed run.
type RunResult struct {
	Generation string  `json:"generation"`
	Total      int     `json:"total"`
	Placed     int     `json:"placed"`
	Skipped    int     `json:"skipped"`
	Batches    int     `json:"batches"`
	Bounds     *Bounds `json:"bounds,omitempty"`
}

// Scheduler reveals records on a Surface in batches of BatchSize, pausing
// between batches. Only one Run may be active at a time.
type Scheduler struct {
	BatchSize int
	Pause     time.Duration
	Surface   Surface
	Progress  ProgressFunc

	sleep   func(ctx context.Context, d time.Duration) error
	running atomic.Bool
}

// NewScheduler returns a Scheduler for surface. Non-positive sizes fall back
// to the defaults.
func NewScheduler(surface Surface, batchSize int, pause time.Duration) *Scheduler {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if pause < 0 {
		pause = DefaultPause
	}
	return &Scheduler{BatchSize: batchSize, Pause: pause, Surface: surface}
}

// Running reports whether a run is active.
func (s *Scheduler) Running() bool { return s.running.Load() }

// Run clears the surface and places records batch by batch. Records that
// cannot be placed are skipped. When at least one marker is placed the
// surface is fitted to the placed coordinates.
func (s *Scheduler) Run(ctx context.Context, records []model.ZipRecord) (RunResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return RunResult{}, ErrRunInProgress
	}
	defer s.running.Store(false)

	size := s.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	sleep := s.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	res := RunResult{Generation: uuid.NewString(), Total: len(records)}
	log := zap.L().With(zap.String("generation", res.Generation))

	s.Surface.Clear()

	flat := make([]float64, 0, 2*len(records))
	for start := 0; start < len(records); start += size {
		if err := ctx.Err(); err != nil {
			log.Info("render: run cancelled", zap.Int("placed", res.Placed))
			return res, eris.Wrap(err, "render: run cancelled")
		}

		end := min(start+size, len(records))
		for _, rec := range records[start:end] {
			if !rec.ValidCoordinate() {
				res.Skipped++
				log.Debug("render: skipping invalid coordinate", zap.String("zip", rec.ZipCode))
				continue
			}
			if err := s.Surface.Place(rec); err != nil {
				res.Skipped++
				log.Warn("render: place marker", zap.String("zip", rec.ZipCode), zap.Error(err))
				continue
			}
			res.Placed++
			flat = append(flat, rec.Longitude, rec.Latitude)
		}
		res.Batches++

		if s.Progress != nil {
			s.Progress(Progress{Generation: res.Generation, Done: end, Placed: res.Placed, Total: res.Total})
		}

		if end < len(records) {
			if err := sleep(ctx, s.Pause); err != nil {
				log.Info("render: run cancelled", zap.Int("placed", res.Placed))
				return res, eris.Wrap(err, "render: run cancelled")
			}
		}
	}

	if res.Placed > 0 {
		b := boundsOf(flat)
		res.Bounds = &b
		s.Surface.FitBounds(b, DefaultFit)
	}

	log.Info("render: run complete",
		zap.Int("total", res.Total),
		zap.Int("placed", res.Placed),
		zap.Int("skipped", res.Skipped),
		zap.Int("batches", res.Batches),
	)
	return res, nil
}

func boundsOf(flat []float64) Bounds {
	b := geom.NewMultiPointFlat(geom.XY, flat).Bounds()
	return Bounds{MinLon: b.Min(0), MinLat: b.Min(1), MaxLon: b.Max(0), MaxLat: b.Max(1)}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
