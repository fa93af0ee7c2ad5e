package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/org/mdmagent/pkg/models"
)

// SQLiteBackend is a Backend backed by an on-device SQLite file.
type SQLiteBackend struct {
	path string
	db   *sql.DB
}

// NewSQLiteBackend creates the database file if needed, applies migrations
// and returns a ready backend.
func NewSQLiteBackend(ctx context.Context, path string) (*SQLiteBackend, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}
	if err := RunMigrations(DriverSQLite, "sqlite://"+path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection serializes writers and keeps the pragma below in effect.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configuring database: %w", err)
	}
	return &SQLiteBackend{path: path, db: db}, nil
}

func (s *SQLiteBackend) Close() {
	s.db.Close()
}

func (s *SQLiteBackend) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- Watermarks ---

func (s *SQLiteBackend) GetWatermark(ctx context.Context, name string) (int64, error) {
	var ts int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_synced FROM sync_watermarks WHERE name = ?`, name,
	).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading watermark %q: %w", name, err)
	}
	return ts, nil
}

func (s *SQLiteBackend) AdvanceWatermark(ctx context.Context, name string, ts int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_watermarks (name, last_synced, updated_at)
		 VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (name) DO UPDATE
		 SET last_synced = MAX(sync_watermarks.last_synced, excluded.last_synced),
		     updated_at = CURRENT_TIMESTAMP`,
		name, ts,
	)
	if err != nil {
		return fmt.Errorf("advancing watermark %q: %w", name, err)
	}
	return nil
}

// --- Call log ---

func (s *SQLiteBackend) CallLogsSince(ctx context.Context, since int64) ([]models.CallLogRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT phone_number, contact_name, call_type, duration, call_timestamp
		 FROM call_log
		 WHERE call_timestamp > ?
		 ORDER BY call_timestamp ASC, id ASC`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("querying call log: %w", err)
	}
	defer rows.Close()

	var out []models.CallLogRecord
	for rows.Next() {
		var (
			r        models.CallLogRecord
			name     sql.NullString
			callType int
		)
		if err := rows.Scan(&r.PhoneNumber, &name, &callType, &r.Duration, &r.CallTimestamp); err != nil {
			return nil, err
		}
		r.ContactName = name.String
		r.CallType = models.CallType(callType)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteBackend) InsertCallLogs(ctx context.Context, records []models.CallLogRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck

	inserted := 0
	for _, r := range records {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO call_log (phone_number, contact_name, call_type, duration, call_timestamp)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (call_timestamp, phone_number) DO NOTHING`,
			r.PhoneNumber, nullableString(r.ContactName), int(r.CallType), r.Duration, r.CallTimestamp,
		)
		if err != nil {
			return 0, fmt.Errorf("inserting call record: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// --- Policy cache ---

func (s *SQLiteBackend) SavePolicy(ctx context.Context, doc *models.PolicyDocument, source string) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO policy_cache (id, document, source, updated_at)
		 VALUES (1, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (id) DO UPDATE
		 SET document = excluded.document, source = excluded.source, updated_at = CURRENT_TIMESTAMP`,
		string(b), source,
	)
	return err
}

func (s *SQLiteBackend) LoadPolicy(ctx context.Context) (*models.PolicyDocument, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM policy_cache WHERE id = 1`).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodePolicy([]byte(raw))
}

// --- Locations ---

func (s *SQLiteBackend) SaveLocation(ctx context.Context, loc *models.Location) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO locations (lat, lon, ts) VALUES (?, ?, ?)`,
		loc.Lat, loc.Lon, loc.Ts,
	)
	return err
}

func (s *SQLiteBackend) LatestLocation(ctx context.Context) (*models.Location, error) {
	var loc models.Location
	err := s.db.QueryRowContext(ctx,
		`SELECT lat, lon, ts FROM locations ORDER BY ts DESC, id DESC LIMIT 1`,
	).Scan(&loc.Lat, &loc.Lon, &loc.Ts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &loc, nil
}
