package store

import (
	"context"
	"errors"
	"time"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/marketmap/internal/db"
	"github.com/sells-group/marketmap/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS zip_demographics (
	zip_code      TEXT PRIMARY KEY,
	city          TEXT NOT NULL DEFAULT '',
	state         TEXT NOT NULL DEFAULT '',
	location      BYTEA,
	population    BIGINT NOT NULL,
	median_age    DOUBLE PRECISION NOT NULL DEFAULT 0,
	median_income DOUBLE PRECISION NOT NULL DEFAULT 0,
	shares        JSONB NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS dataset_meta (
	id        INTEGER PRIMARY KEY CHECK (id = 1),
	import_id TEXT NOT NULL,
	source    TEXT NOT NULL,
	columns   JSONB NOT NULL,
	rows      BIGINT NOT NULL,
	dropped   INTEGER NOT NULL DEFAULT 0,
	loaded_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_zip_demographics_state ON zip_demographics(state);
`

var demographicsColumns = []string{
	"zip_code", "city", "state", "location", "population", "median_age", "median_income", "shares",
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) ReplaceDemographics(ctx context.Context, meta Meta, rows []model.Demographics) (int64, error) {
	values := make([][]any, 0, len(rows))
	for _, d := range rows {
		loc, err := encodeLocation(d)
		if err != nil {
			return 0, err
		}
		shares, err := json.Marshal(sharesOrEmpty(d.Shares))
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal shares %s", d.ZipCode)
		}
		values = append(values, []any{
			d.ZipCode, d.City, d.State, loc, d.Population, d.MedianAge, d.MedianIncome, shares,
		})
	}

	if _, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "zip_demographics",
		Columns:      demographicsColumns,
		ConflictKeys: []string{"zip_code"},
		Prune:        true,
	}, values); err != nil {
		return 0, eris.Wrap(err, "postgres: replace demographics")
	}

	n := int64(len(rows))
	meta = stamp(meta, n)
	cols, err := json.Marshal(meta.Columns)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: marshal columns")
	}
	if _, err := s.pool.Exec(ctx, `INSERT INTO dataset_meta (id, import_id, source, columns, rows, dropped, loaded_at)
		VALUES (1, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET import_id = EXCLUDED.import_id, source = EXCLUDED.source,
			columns = EXCLUDED.columns, rows = EXCLUDED.rows, dropped = EXCLUDED.dropped,
			loaded_at = EXCLUDED.loaded_at`,
		meta.ID, meta.Source, cols, meta.Rows, meta.Dropped, meta.LoadedAt); err != nil {
		return 0, eris.Wrap(err, "postgres: write meta")
	}
	return n, nil
}

const postgresSelect = `SELECT zip_code, city, state, location, population, median_age, median_income, shares FROM zip_demographics`

func (s *PostgresStore) LoadDemographics(ctx context.Context) ([]model.Demographics, error) {
	rows, err := s.pool.Query(ctx, postgresSelect+` ORDER BY zip_code`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load demographics")
	}
	defer rows.Close()

	var out []model.Demographics
	for rows.Next() {
		d, err := scanPostgresDemographics(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate demographics")
}

func (s *PostgresStore) GetDemographics(ctx context.Context, zip string) (*model.Demographics, error) {
	d, err := scanPostgresDemographics(s.pool.QueryRow(ctx, postgresSelect+` WHERE zip_code = $1`, zip))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: zip %s", zip)
	}
	return d, err
}

func (s *PostgresStore) Status(ctx context.Context) (*Meta, error) {
	var (
		m    Meta
		cols []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT import_id, source, columns, rows, dropped, loaded_at FROM dataset_meta WHERE id = 1`,
	).Scan(&m.ID, &m.Source, &cols, &m.Rows, &m.Dropped, &m.LoadedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: read meta")
	}
	if err := json.Unmarshal(cols, &m.Columns); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal columns")
	}
	return &m, nil
}

func scanPostgresDemographics(row scannable) (*model.Demographics, error) {
	var (
		d      model.Demographics
		loc    []byte
		shares []byte
	)
	err := row.Scan(&d.ZipCode, &d.City, &d.State, &loc, &d.Population, &d.MedianAge, &d.MedianIncome, &shares)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan demographics")
	}
	if err := decodeLocation(loc, &d); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(shares, &d.Shares); err != nil {
		return nil, eris.Wrapf(err, "postgres: unmarshal shares %s", d.ZipCode)
	}
	return &d, nil
}

// encodeLocation returns the ZIP centroid as EWKB with SRID 4326, or nil
// when the row has no coordinates.
func encodeLocation(d model.Demographics) ([]byte, error) {
	if !d.HasLocation {
		return nil, nil
	}
	p := geom.NewPointFlat(geom.XY, []float64{d.Longitude, d.Latitude}).SetSRID(4326)
	b, err := ewkb.Marshal(p, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: encode location %s", d.ZipCode)
	}
	return b, nil
}

func decodeLocation(b []byte, d *model.Demographics) error {
	if len(b) == 0 {
		return nil
	}
	g, err := ewkb.Unmarshal(b)
	if err != nil {
		return eris.Wrapf(err, "postgres: decode location %s", d.ZipCode)
	}
	p, ok := g.(*geom.Point)
	if !ok {
		return eris.Errorf("postgres: location %s is %T, want point", d.ZipCode, g)
	}
	d.Longitude, d.Latitude, d.HasLocation = p.X(), p.Y(), true
	return nil
}
