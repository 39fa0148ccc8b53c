// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps audit records in Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn and ensures the audits table exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s, err := NewPostgresStore(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore creates a store backed by the given pool.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure audit schema: %w", err)
	}
	slog.Info("audit history store initialised", "driver", "postgres")
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS audits (
			id            TEXT PRIMARY KEY,
			source        TEXT DEFAULT '',
			subject       TEXT DEFAULT '',
			sender        TEXT DEFAULT '',
			overall_score DOUBLE PRECISION NOT NULL,
			passed_rules  INTEGER NOT NULL,
			failed_rules  INTEGER NOT NULL,
			report        JSONB NOT NULL,
			created_at    TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_audits_created ON audits(created_at);
	`)
	return err
}

// Save inserts a record. Re-saving an id overwrites it.
func (s *PostgresStore) Save(ctx context.Context, r Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audits
			(id, source, subject, sender, overall_score, passed_rules, failed_rules, report, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			overall_score = EXCLUDED.overall_score,
			passed_rules  = EXCLUDED.passed_rules,
			failed_rules  = EXCLUDED.failed_rules,
			report        = EXCLUDED.report
	`, r.ID, r.Source, r.Subject, r.Sender, r.OverallScore, r.PassedRules, r.FailedRules, []byte(r.Report), r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit %s: %w", r.ID, err)
	}
	return nil
}

// Get retrieves a single audit by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, source, subject, sender, overall_score,
		       passed_rules, failed_rules, report, created_at
		FROM audits
		WHERE id = $1
	`, id)
	return scanPgRecord(row)
}

// ListRecent returns the newest audits.
func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, source, subject, sender, overall_score,
		       passed_rules, failed_rules, report, created_at
		FROM audits
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audits: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		r, err := scanPgRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPgRecord(row pgx.Row) (*Record, error) {
	var r Record
	var report []byte
	err := row.Scan(
		&r.ID, &r.Source, &r.Subject, &r.Sender, &r.OverallScore,
		&r.PassedRules, &r.FailedRules, &report, &r.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan audit: %w", err)
	}
	r.Report = report
	return &r, nil
}
