// Package server exposes the ZIP data service and the dashboard over HTTP.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	json "github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/marketmap/internal/dashboard"
	"github.com/sells-group/marketmap/internal/demographics"
	"github.com/sells-group/marketmap/internal/model"
	"github.com/sells-group/marketmap/internal/store"
)

// Options configures a Server.
type Options struct {
	// MapLimit caps the records returned by POST /api/zip-codes.
	MapLimit    int
	CORSOrigins []string
	// PageWindow is the number of page links in dashboard views.
	PageWindow int
	// SVGWidth and SVGHeight are the default map.svg size.
	SVGWidth  int
	SVGHeight int
}

// Server serves the demographic dataset held in memory and, when a
// dashboard is attached, its session endpoints.
type Server struct {
	store store.Store
	dash  *dashboard.Dashboard
	opts  Options

	mu   sync.RWMutex
	rows []model.Demographics
	meta *store.Meta
}

// New returns a Server. dash may be nil.
func New(st store.Store, dash *dashboard.Dashboard, opts Options) *Server {
	if opts.MapLimit <= 0 {
		opts.MapLimit = demographics.DefaultMapLimit
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	if opts.SVGWidth <= 0 {
		opts.SVGWidth = 960
	}
	if opts.SVGHeight <= 0 {
		opts.SVGHeight = 600
	}
	return &Server{store: st, dash: dash, opts: opts}
}

// Reload reads the dataset from the store into memory.
func (s *Server) Reload(ctx context.Context) error {
	rows, err := s.store.LoadDemographics(ctx)
	if err != nil {
		return eris.Wrap(err, "server: load demographics")
	}
	meta, err := s.store.Status(ctx)
	if err != nil {
		return eris.Wrap(err, "server: dataset status")
	}

	s.mu.Lock()
	s.rows, s.meta = rows, meta
	s.mu.Unlock()

	zap.L().Info("server: dataset loaded", zap.Int("rows", len(rows)))
	return nil
}

func (s *Server) dataset() ([]model.Demographics, *store.Meta) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rows, s.meta
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/filters", s.handleFilters)
		r.Post("/zip-codes", s.handleZipCodes)
		r.Post("/zip-codes-table", s.handleTable)
		r.Get("/demographics/zip/{zip}", s.handleProfile)
		r.Get("/debug/data-status", s.handleDataStatus)

		r.Post("/analysis/top-50-percent", s.handleTopHalf)
		r.Post("/analysis/customer-concentration", s.handleConcentration)
		r.Post("/analysis/zip-clusters", s.handleClusters)
		r.Post("/export/zip-data", s.handleZipDataExport)

		if s.dash != nil {
			r.Route("/dashboard", func(r chi.Router) {
				r.Get("/", s.handleDashboard)
				r.Post("/commands", s.handleCommand)
				r.Get("/export", s.handleExport)
				r.Get("/map.svg", s.handleMapSVG)
			})
		}
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
