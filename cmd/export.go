package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/marketmap/internal/coverage"
	"github.com/sells-group/marketmap/internal/dashboard"
	"github.com/sells-group/marketmap/internal/export"
	"github.com/sells-group/marketmap/internal/model"
	"github.com/sells-group/marketmap/internal/render"
	"github.com/sells-group/marketmap/internal/summary"
)

var (
	exportFormat    string
	exportFilters   []string
	exportPerCapita string
	exportOutDir    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the ZIP analysis for a filter set as CSV or PDF",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if exportOutDir != "" {
			cfg.Export.OutputDir = exportOutDir
		}
		if err := cfg.Validate("export"); err != nil {
			return err
		}
		f, err := parseFilters(exportFilters)
		if err != nil {
			return err
		}

		path, err := runExport(cmd.Context(), newDataClient(), exportRequest{
			Format:    exportFormat,
			Filters:   f,
			PerCapita: summary.NormalizePerCapita(exportPerCapita),
			OutDir:    cfg.Export.OutputDir,
			Title:     cfg.Export.Title,
			Now:       time.Now(),
		})
		if err != nil {
			return err
		}
		cmd.Printf("wrote %s\n", path)
		return nil
	},
}

type exportRequest struct {
	Format    string
	Filters   model.Filters
	PerCapita float64
	OutDir    string
	Title     string
	Now       time.Time
}

// runExport fetches the analysis for req and writes one file to
// req.OutDir. Nothing is written when there are no rows.
func runExport(ctx context.Context, fetch dashboard.Fetcher, req exportRequest) (string, error) {
	if req.Format != "csv" && req.Format != "pdf" {
		return "", eris.Wrapf(dashboard.ErrUnknownFormat, "export: %q", req.Format)
	}

	var (
		zips  model.ZipCodesResponse
		table model.TableResponse
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		zips, _, err = fetch.ZipCodes(gctx, req.Filters)
		return err
	})
	g.Go(func() error {
		var err error
		table, _, err = fetch.Table(gctx, req.Filters, req.PerCapita)
		return err
	})
	if err := g.Wait(); err != nil {
		return "", eris.Wrap(err, "export: fetch")
	}

	var buf bytes.Buffer
	switch req.Format {
	case "csv":
		if err := export.WriteCSV(&buf, table.TableData); err != nil {
			return "", err
		}
	case "pdf":
		if len(table.TableData) == 0 {
			return "", export.ErrNoData
		}
		surface := render.NewMemorySurface(0, 0)
		if _, err := render.NewScheduler(surface, len(zips.ZipCodes)+1, 0).Run(ctx, zips.ZipCodes); err != nil {
			return "", eris.Wrap(err, "export: place markers")
		}
		stats, err := export.Report{
			Title:       req.Title,
			GeneratedAt: req.Now,
			Filters:     req.Filters,
			Summary:     summary.Compute(coverage.Resolve(zips), req.PerCapita),
			Rows:        table.TableData,
			Snapshot:    render.NewSnapshotCapturer(surface, 0, 0),
		}.Write(ctx, &buf)
		if err != nil {
			return "", err
		}
		zap.L().Info("export: report built", zap.Int("pages", stats.Pages), zap.String("visual", stats.Visual))
	}

	if err := os.MkdirAll(req.OutDir, 0o755); err != nil {
		return "", eris.Wrap(err, "export: create output dir")
	}
	path := filepath.Join(req.OutDir, export.Filename(req.Now, req.Filters, req.Format))
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", eris.Wrap(err, "export: write file")
	}
	zap.L().Info("export complete", zap.String("file", path), zap.Int("rows", len(table.TableData)))
	return path, nil
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "output format: csv or pdf")
	exportCmd.Flags().StringArrayVar(&exportFilters, "filter", nil, "demographic filter as key=value (repeatable)")
	exportCmd.Flags().StringVar(&exportPerCapita, "per-capita", "", "yearly value per targeted person (default 100)")
	exportCmd.Flags().StringVar(&exportOutDir, "out", "", "output directory (default from config)")
	rootCmd.AddCommand(exportCmd)
}
