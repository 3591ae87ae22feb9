package main

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/marketmap/internal/dataservice"
	"github.com/sells-group/marketmap/internal/model"
)

// parseFilters turns key=value flags into Filters. Keys are lowercased.
func parseFilters(pairs []string) (model.Filters, error) {
	f := model.Filters{}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.ToLower(strings.TrimSpace(k))
		if !ok || k == "" {
			return nil, eris.Errorf("invalid filter %q, want key=value", p)
		}
		if model.IsWildcard(v) {
			continue
		}
		f[k] = strings.TrimSpace(v)
	}
	return f, nil
}

func newDataClient() *dataservice.Client {
	return dataservice.New(dataservice.Options{
		BaseURL:     cfg.DataService.BaseURL,
		Timeout:     time.Duration(cfg.DataService.TimeoutSecs) * time.Second,
		MaxAttempts: cfg.DataService.MaxAttempts,
		RatePerSec:  cfg.DataService.RatePerSec,
	})
}
