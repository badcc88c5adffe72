package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mr1hm/go-drone-routes/internal/models"
)

type SQLiteDB struct {
	db *sql.DB
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("error creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// :memory: databases are per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db: db,
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating to database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			seq INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			http_status INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			lines INTEGER NOT NULL DEFAULT 0,
			markers INTEGER NOT NULL DEFAULT 0,
			skipped INTEGER NOT NULL DEFAULT 0,
			min_lat REAL,
			min_lng REAL,
			max_lat REAL,
			max_lng REAL,
			input_bytes INTEGER NOT NULL DEFAULT 0,
			started_at DATETIME NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
		CREATE INDEX IF NOT EXISTS idx_runs_outcome ON runs(outcome);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) Add(ctx context.Context, r *models.Run) error {
	var minLat, minLng, maxLat, maxLng sql.NullFloat64
	if r.Bounds != nil {
		minLat = sql.NullFloat64{Float64: r.Bounds.Min.Lat, Valid: true}
		minLng = sql.NullFloat64{Float64: r.Bounds.Min.Lng, Valid: true}
		maxLat = sql.NullFloat64{Float64: r.Bounds.Max.Lat, Valid: true}
		maxLng = sql.NullFloat64{Float64: r.Bounds.Max.Lng, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, seq, outcome, http_status, error, lines, markers, skipped,
			min_lat, min_lng, max_lat, max_lng, input_bytes, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Seq, string(r.Outcome), r.HTTPStatus, r.Error, r.Lines, r.Markers, r.Skipped,
		minLat, minLng, maxLat, maxLng, r.InputBytes, r.StartedAt.UTC(), r.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("error inserting run: %w", err)
	}
	return nil
}

const runColumns = `id, seq, outcome, http_status, error, lines, markers, skipped,
	min_lat, min_lng, max_lat, max_lng, input_bytes, started_at, duration_ms`

func (s *SQLiteDB) GetByID(ctx context.Context, id string) (*models.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting run: %w", err)
	}
	return r, nil
}

func (s *SQLiteDB) ListRuns(ctx context.Context, opts Filter) ([]models.Run, error) {
	var (
		where []string
		args  []any
	)
	if opts.Since != nil {
		where = append(where, "started_at >= ?")
		args = append(args, opts.Since.UTC())
	}
	if opts.Outcome != nil {
		where = append(where, "outcome = ?")
		args = append(args, string(*opts.Outcome))
	}

	query := `SELECT ` + runColumns + ` FROM runs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY started_at DESC, seq DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing runs: %w", err)
	}
	defer rows.Close()

	runs := make([]models.Run, 0)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*models.Run, error) {
	var (
		r                              models.Run
		outcome                        string
		errText                        sql.NullString
		minLat, minLng, maxLat, maxLng sql.NullFloat64
		startedAt                      time.Time
		durationMs                     int64
	)
	err := sc.Scan(&r.ID, &r.Seq, &outcome, &r.HTTPStatus, &errText, &r.Lines, &r.Markers, &r.Skipped,
		&minLat, &minLng, &maxLat, &maxLng, &r.InputBytes, &startedAt, &durationMs)
	if err != nil {
		return nil, err
	}

	r.Outcome = models.RunOutcome(outcome)
	r.Error = errText.String
	r.StartedAt = startedAt
	r.Duration = time.Duration(durationMs) * time.Millisecond
	if minLat.Valid && minLng.Valid && maxLat.Valid && maxLng.Valid {
		r.Bounds = &models.Viewport{
			Min: models.GeoPoint{Lat: minLat.Float64, Lng: minLng.Float64},
			Max: models.GeoPoint{Lat: maxLat.Float64, Lng: maxLng.Float64},
		}
	}
	return &r, nil
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}
