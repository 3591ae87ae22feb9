package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/marketmap/internal/coverage"
	"github.com/sells-group/marketmap/internal/dashboard"
	"github.com/sells-group/marketmap/internal/model"
	"github.com/sells-group/marketmap/internal/summary"
)

var (
	coverageFilters   []string
	coveragePerCapita string
)

var coverageCmd = &cobra.Command{
	Use:   "coverage",
	Short: "Print population coverage and market size for a filter set",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("coverage"); err != nil {
			return err
		}
		f, err := parseFilters(coverageFilters)
		if err != nil {
			return err
		}
		return runCoverage(cmd.Context(), newDataClient(), f, summary.NormalizePerCapita(coveragePerCapita), cmd.OutOrStdout())
	},
}

func runCoverage(ctx context.Context, fetch dashboard.Fetcher, f model.Filters, perCapita float64, out io.Writer) error {
	zips, src, err := fetch.ZipCodes(ctx, f)
	if err != nil {
		return err
	}
	m := summary.Compute(coverage.Resolve(zips), perCapita)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Source:\t%s\n", src)
	_, _ = fmt.Fprintf(w, "Zip codes mapped:\t%d\n", len(zips.ZipCodes))
	_, _ = fmt.Fprintf(w, "Target population:\t%s\n", m.PopulationText)
	_, _ = fmt.Fprintf(w, "Zips for 50%%:\t%d\n", m.ZipsFor50Percent)
	_, _ = fmt.Fprintf(w, "Zips for 80%%:\t%d\n", m.ZipsFor80Percent)
	_, _ = fmt.Fprintf(w, "Per capita:\t%s\n", summary.Money(m.PerCapita))
	_, _ = fmt.Fprintf(w, "Market size:\t%s\n", m.MarketSizeText)
	return w.Flush()
}

func init() {
	coverageCmd.Flags().StringArrayVar(&coverageFilters, "filter", nil, "demographic filter as key=value (repeatable)")
	coverageCmd.Flags().StringVar(&coveragePerCapita, "per-capita", "", "yearly value per targeted person (default 100)")
	rootCmd.AddCommand(coverageCmd)
}
