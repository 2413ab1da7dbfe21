package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DatabasePool is the subset of pgxpool.Pool the store uses
type DatabasePool interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Close()
}

const (
	createPredictionsSQL = `CREATE TABLE IF NOT EXISTS predictions (
	id               TEXT PRIMARY KEY,
	created_at       TIMESTAMPTZ NOT NULL,
	model_name       TEXT NOT NULL,
	validated_months INTEGER NOT NULL,
	rationale        TEXT NOT NULL,
	anomaly_count    INTEGER NOT NULL,
	payload          JSONB NOT NULL
)`

	insertPredictionSQL = `INSERT INTO predictions (id, created_at, model_name, validated_months, rationale, anomaly_count, payload)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	selectPredictionSQL = `SELECT id, created_at, model_name, validated_months, rationale, anomaly_count, payload
FROM predictions WHERE id = $1`

	listPredictionsSQL = `SELECT id, created_at, model_name, validated_months, rationale, anomaly_count, payload
FROM predictions ORDER BY created_at DESC LIMIT $1`

	statsSQL = `SELECT COUNT(*), COALESCE(SUM(anomaly_count), 0) FROM predictions`
)

// PostgresStore persists predictions in PostgreSQL
type PostgresStore struct {
	pool DatabasePool
}

// OpenPostgres connects a pgx pool and ensures the schema exists
func OpenPostgres(ctx context.Context, dsn string, maxConns int32) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := NewPostgresStore(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore wraps an existing pool
func NewPostgresStore(pool DatabasePool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the predictions table if needed
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createPredictionsSQL); err != nil {
		return fmt.Errorf("failed to create predictions table: %w", err)
	}
	return nil
}

// Save inserts a prediction
func (s *PostgresStore) Save(ctx context.Context, p Prediction) error {
	_, err := s.pool.Exec(ctx, insertPredictionSQL,
		p.ID, p.CreatedAt, p.ModelName, p.ValidatedMonths, p.Rationale, p.AnomalyCount, []byte(p.Payload))
	if err != nil {
		return fmt.Errorf("failed to save prediction %s: %w", p.ID, err)
	}
	return nil
}

func scanPrediction(row pgx.Row) (Prediction, error) {
	var p Prediction
	var payload []byte
	err := row.Scan(&p.ID, &p.CreatedAt, &p.ModelName, &p.ValidatedMonths, &p.Rationale, &p.AnomalyCount, &payload)
	p.Payload = payload
	return p, err
}

// Get loads a prediction by id
func (s *PostgresStore) Get(ctx context.Context, id string) (Prediction, error) {
	p, err := scanPrediction(s.pool.QueryRow(ctx, selectPredictionSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Prediction{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Prediction{}, fmt.Errorf("failed to load prediction %s: %w", id, err)
	}
	return p, nil
}

// List returns up to limit predictions, newest first
func (s *PostgresStore) List(ctx context.Context, limit int) ([]Prediction, error) {
	rows, err := s.pool.Query(ctx, listPredictionsSQL, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list predictions: %w", err)
	}
	defer rows.Close()

	var out []Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list predictions: %w", err)
	}
	return out, nil
}

// Stats counts stored predictions and anomalies
func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.pool.QueryRow(ctx, statsSQL).Scan(&st.Predictions, &st.Anomalies); err != nil {
		return Stats{}, fmt.Errorf("failed to load prediction stats: %w", err)
	}
	return st, nil
}

// Close closes the pool
func (s *PostgresStore) Close() {
	s.pool.Close()
}
