package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/marketmap/internal/demographics"
	"github.com/sells-group/marketmap/internal/fetcher"
	"github.com/sells-group/marketmap/internal/store"
)

var (
	importPath  string
	importSheet string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load the ACS demographic spreadsheet into the store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if importPath != "" {
			cfg.Data.Path = importPath
		}
		if importSheet != "" {
			cfg.Data.Sheet = importSheet
		}
		if err := cfg.Validate("import"); err != nil {
			return err
		}

		n, err := runImport(cmd.Context())
		if err != nil {
			return err
		}
		cmd.Printf("imported %d zip codes from %s\n", n, cfg.Data.Path)
		return nil
	},
}

func runImport(ctx context.Context) (int64, error) {
	tmp, err := os.MkdirTemp("", "marketmap-import-")
	if err != nil {
		return 0, eris.Wrap(err, "import: temp dir")
	}
	defer os.RemoveAll(tmp) //nolint:errcheck

	local, err := fetcher.NewResolver().Resolve(ctx, cfg.Data.Path, tmp)
	if err != nil {
		return 0, eris.Wrap(err, "import")
	}
	ds, err := demographics.ReadFile(ctx, local, cfg.Data.Sheet)
	if err != nil {
		return 0, eris.Wrap(err, "import")
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return 0, eris.Wrap(err, "import: open store")
	}
	defer st.Close() //nolint:errcheck

	meta := store.Meta{
		Source:  filepath.Base(cfg.Data.Path),
		Columns: ds.Columns,
		Dropped: ds.Dropped,
	}
	n, err := st.ReplaceDemographics(ctx, meta, ds.Rows)
	if err != nil {
		return 0, eris.Wrap(err, "import: replace demographics")
	}

	zap.L().Info("import complete",
		zap.Int64("rows", n),
		zap.Int("dropped", ds.Dropped),
		zap.String("file", cfg.Data.Path),
	)
	return n, nil
}

func init() {
	importCmd.Flags().StringVar(&importPath, "file", "", "ACS .xlsx, .csv or .zip path or http(s)/ftp URL (default from config)")
	importCmd.Flags().StringVar(&importSheet, "sheet", "", "worksheet name (default first sheet)")
	rootCmd.AddCommand(importCmd)
}
