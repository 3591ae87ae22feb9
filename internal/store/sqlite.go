package store

import (
	"context"
	"database/sql"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/marketmap/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS zip_demographics (
	zip_code      TEXT PRIMARY KEY,
	city          TEXT NOT NULL DEFAULT '',
	state         TEXT NOT NULL DEFAULT '',
	latitude      REAL,
	longitude     REAL,
	population    INTEGER NOT NULL,
	median_age    REAL NOT NULL DEFAULT 0,
	median_income REAL NOT NULL DEFAULT 0,
	shares        TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS dataset_meta (
	id        INTEGER PRIMARY KEY CHECK (id = 1),
	import_id TEXT NOT NULL,
	source    TEXT NOT NULL,
	columns   TEXT NOT NULL,
	rows      INTEGER NOT NULL,
	dropped   INTEGER NOT NULL DEFAULT 0,
	loaded_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_zip_demographics_state ON zip_demographics(state);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ReplaceDemographics(ctx context.Context, meta Meta, rows []model.Demographics) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin replace")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM zip_demographics`); err != nil {
		return 0, eris.Wrap(err, "sqlite: clear demographics")
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO zip_demographics
		(zip_code, city, state, latitude, longitude, population, median_age, median_income, shares)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(zip_code) DO UPDATE SET
			city = excluded.city, state = excluded.state,
			latitude = excluded.latitude, longitude = excluded.longitude,
			population = excluded.population, median_age = excluded.median_age,
			median_income = excluded.median_income, shares = excluded.shares`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, d := range rows {
		shares, err := json.Marshal(sharesOrEmpty(d.Shares))
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: marshal shares %s", d.ZipCode)
		}
		var lat, lng sql.NullFloat64
		if d.HasLocation {
			lat = sql.NullFloat64{Float64: d.Latitude, Valid: true}
			lng = sql.NullFloat64{Float64: d.Longitude, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, d.ZipCode, d.City, d.State, lat, lng,
			d.Population, d.MedianAge, d.MedianIncome, string(shares)); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert %s", d.ZipCode)
		}
	}

	var n int64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM zip_demographics`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: count demographics")
	}

	meta = stamp(meta, n)
	cols, err := json.Marshal(meta.Columns)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: marshal columns")
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO dataset_meta (id, import_id, source, columns, rows, dropped, loaded_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET import_id = excluded.import_id, source = excluded.source,
			columns = excluded.columns, rows = excluded.rows, dropped = excluded.dropped,
			loaded_at = excluded.loaded_at`,
		meta.ID, meta.Source, string(cols), meta.Rows, meta.Dropped, meta.LoadedAt); err != nil {
		return 0, eris.Wrap(err, "sqlite: write meta")
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit replace")
	}
	return n, nil
}

const sqliteSelect = `SELECT zip_code, city, state, latitude, longitude, population, median_age, median_income, shares FROM zip_demographics`

func (s *SQLiteStore) LoadDemographics(ctx context.Context) ([]model.Demographics, error) {
	rows, err := s.db.QueryContext(ctx, sqliteSelect+` ORDER BY zip_code`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load demographics")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Demographics
	for rows.Next() {
		d, err := scanSQLiteDemographics(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate demographics")
}

func (s *SQLiteStore) GetDemographics(ctx context.Context, zip string) (*model.Demographics, error) {
	row := s.db.QueryRowContext(ctx, sqliteSelect+` WHERE zip_code = ?`, zip)
	d, err := scanSQLiteDemographics(row)
	if eris.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: zip %s", zip)
	}
	return d, err
}

func (s *SQLiteStore) Status(ctx context.Context) (*Meta, error) {
	var (
		m    Meta
		cols string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT import_id, source, columns, rows, dropped, loaded_at FROM dataset_meta WHERE id = 1`,
	).Scan(&m.ID, &m.Source, &cols, &m.Rows, &m.Dropped, &m.LoadedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: read meta")
	}
	if err := json.Unmarshal([]byte(cols), &m.Columns); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal columns")
	}
	return &m, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteDemographics(row scannable) (*model.Demographics, error) {
	var (
		d        model.Demographics
		lat, lng sql.NullFloat64
		shares   string
	)
	err := row.Scan(&d.ZipCode, &d.City, &d.State, &lat, &lng, &d.Population, &d.MedianAge, &d.MedianIncome, &shares)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan demographics")
	}
	if lat.Valid && lng.Valid {
		d.Latitude, d.Longitude, d.HasLocation = lat.Float64, lng.Float64, true
	}
	if err := json.Unmarshal([]byte(shares), &d.Shares); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal shares %s", d.ZipCode)
	}
	return &d, nil
}

// stamp fills the generated fields of an import record.
func stamp(m Meta, rows int64) Meta {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.LoadedAt.IsZero() {
		m.LoadedAt = time.Now().UTC()
	}
	if m.Columns == nil {
		m.Columns = []string{}
	}
	m.Rows = rows
	return m
}

func sharesOrEmpty(s map[string]float64) map[string]float64 {
	if s == nil {
		return map[string]float64{}
	}
	return s
}
