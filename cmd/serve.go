package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/marketmap/internal/dashboard"
	"github.com/sells-group/marketmap/internal/pagination"
	"github.com/sells-group/marketmap/internal/render"
	"github.com/sells-group/marketmap/internal/server"
	"github.com/sells-group/marketmap/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the ZIP data service and the dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		port := resolvePort(servePort, cfg.Server.Port)
		cfg.Server.Port = port
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return eris.Wrap(err, "serve: open store")
		}
		defer st.Close() //nolint:errcheck

		dash := newDashboard()
		go func() {
			if err := dash.Run(ctx); err != nil {
				zap.L().Error("dashboard stopped", zap.Error(err))
			}
		}()

		srv := server.New(st, dash, server.Options{
			MapLimit:    cfg.DataService.MapLimit,
			CORSOrigins: cfg.Server.CORSOrigins,
			PageWindow:  pagination.DefaultWindow,
		})
		if err := srv.Reload(ctx); err != nil {
			return err
		}

		return startServer(ctx, srv.Handler(), port)
	},
}

// newDashboard wires a dashboard to the configured data service.
func newDashboard() *dashboard.Dashboard {
	surface := render.NewMemorySurface(0, 0)
	sched := render.NewScheduler(surface, cfg.Render.BatchSize, time.Duration(cfg.Render.PauseMs)*time.Millisecond)
	return dashboard.New(newDataClient(), sched, render.NewSnapshotCapturer(surface, 0, 0), dashboard.Options{
		PageSize:  cfg.Dashboard.PageSize,
		PerCapita: cfg.Dashboard.PerCapita,
		Title:     cfg.Export.Title,
	})
}

// resolvePort prefers the --port flag over the configured port.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// startServer serves h on port until ctx is done, then shuts down.
func startServer(ctx context.Context, h http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server listen")
	}

	return nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
