package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/org/mdmagent/pkg/models"
)

// PostgresBackend is a Backend backed by PostgreSQL.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// NewPostgresBackend opens a pgxpool connection and returns a ready backend.
func NewPostgresBackend(ctx context.Context, connStr string) (*PostgresBackend, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &PostgresBackend{pool: pool}, nil
}

func (p *PostgresBackend) Close() {
	p.pool.Close()
}

func (p *PostgresBackend) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// --- Watermarks ---

func (p *PostgresBackend) GetWatermark(ctx context.Context, name string) (int64, error) {
	var ts int64
	err := p.pool.QueryRow(ctx,
		`SELECT last_synced FROM sync_watermarks WHERE name = $1`, name,
	).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading watermark %q: %w", name, err)
	}
	return ts, nil
}

func (p *PostgresBackend) AdvanceWatermark(ctx context.Context, name string, ts int64) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO sync_watermarks (name, last_synced, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (name) DO UPDATE
		 SET last_synced = GREATEST(sync_watermarks.last_synced, EXCLUDED.last_synced),
		     updated_at = NOW()`,
		name, ts,
	)
	if err != nil {
		return fmt.Errorf("advancing watermark %q: %w", name, err)
	}
	return nil
}

// --- Call log ---

func (p *PostgresBackend) CallLogsSince(ctx context.Context, since int64) ([]models.CallLogRecord, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT phone_number, contact_name, call_type, duration, call_timestamp
		 FROM call_log
		 WHERE call_timestamp > $1
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
			name     *string
			callType int
		)
		if err := rows.Scan(&r.PhoneNumber, &name, &callType, &r.Duration, &r.CallTimestamp); err != nil {
			return nil, err
		}
		r.CallType = models.CallType(callType)
		if name != nil {
			r.ContactName = *name
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresBackend) InsertCallLogs(ctx context.Context, records []models.CallLogRecord) (int, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	inserted := 0
	for _, r := range records {
		tag, err := tx.Exec(ctx,
			`INSERT INTO call_log (phone_number, contact_name, call_type, duration, call_timestamp)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (call_timestamp, phone_number) DO NOTHING`,
			r.PhoneNumber, nullableString(r.ContactName), int(r.CallType), r.Duration, r.CallTimestamp,
		)
		if err != nil {
			return 0, fmt.Errorf("inserting call record: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return inserted, nil
}

// --- Policy cache ---

func (p *PostgresBackend) SavePolicy(ctx context.Context, doc *models.PolicyDocument, source string) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO policy_cache (id, document, source, updated_at)
		 VALUES (1, $1, $2, NOW())
		 ON CONFLICT (id) DO UPDATE
		 SET document = EXCLUDED.document, source = EXCLUDED.source, updated_at = NOW()`,
		string(b), source,
	)
	return err
}

func (p *PostgresBackend) LoadPolicy(ctx context.Context) (*models.PolicyDocument, error) {
	var raw []byte
	err := p.pool.QueryRow(ctx, `SELECT document FROM policy_cache WHERE id = 1`).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodePolicy(raw)
}

// --- Locations ---

func (p *PostgresBackend) SaveLocation(ctx context.Context, loc *models.Location) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO locations (lat, lon, ts) VALUES ($1, $2, $3)`,
		loc.Lat, loc.Lon, loc.Ts,
	)
	return err
}

func (p *PostgresBackend) LatestLocation(ctx context.Context) (*models.Location, error) {
	var loc models.Location
	err := p.pool.QueryRow(ctx,
		`SELECT lat, lon, ts FROM locations ORDER BY ts DESC, id DESC LIMIT 1`,
	).Scan(&loc.Lat, &loc.Lon, &loc.Ts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &loc, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func decodePolicy(raw []byte) (*models.PolicyDocument, error) {
	var doc models.PolicyDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decoding cached policy: %w", err)
	}
	return &doc, nil
}
