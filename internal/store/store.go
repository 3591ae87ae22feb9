// Package store persists the cleaned demographic dataset.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/marketmap/internal/config"
	"github.com/sells-group/marketmap/internal/model"
)

// ErrNotFound is returned when a ZIP is not in the dataset.
var ErrNotFound = eris.New("store: not found")

// Meta describes the most recent dataset import.
type Meta struct {
	ID       string    `json:"id"`
	Source   string    `json:"source"`
	Columns  []string  `json:"columns"`
	Rows     int64     `json:"rows"`
	Dropped  int       `json:"dropped"`
	LoadedAt time.Time `json:"loaded_at"`
}

// Store defines persistence for the demographic dataset.
type Store interface {
	// ReplaceDemographics makes rows the entire dataset.
	ReplaceDemographics(ctx context.Context, meta Meta, rows []model.Demographics) (int64, error)
	LoadDemographics(ctx context.Context) ([]model.Demographics, error)
	GetDemographics(ctx context.Context, zip string) (*model.Demographics, error)
	// Status returns nil when nothing has been imported yet.
	Status(ctx context.Context) (*Meta, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Open connects the configured backend and runs its migration.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		st  Store
		err error
	)
	switch cfg.Driver {
	case "sqlite":
		st, err = NewSQLite(cfg.DatabaseURL)
	case "postgres":
		st, err = NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}
