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
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS audits (
	id TEXT PRIMARY KEY,
	source TEXT NOT NULL DEFAULT '',
	subject TEXT NOT NULL DEFAULT '',
	sender TEXT NOT NULL DEFAULT '',
	overall_score REAL NOT NULL,
	passed_rules INTEGER NOT NULL,
	failed_rules INTEGER NOT NULL,
	report TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audits_created ON audits(created_at);
`

// timeLayout is fixed width so created_at sorts correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore keeps audit records in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}
	// One writer at a time; also keeps :memory: databases on one connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("creating schema: %w (also: close: %v)", err, cerr)
		}
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	slog.Info("audit history store initialised", "driver", "sqlite", "path", path)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audits
			(id, source, subject, sender, overall_score, passed_rules, failed_rules, report, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			overall_score = excluded.overall_score,
			passed_rules = excluded.passed_rules,
			failed_rules = excluded.failed_rules,
			report = excluded.report
	`, r.ID, r.Source, r.Subject, r.Sender, r.OverallScore, r.PassedRules, r.FailedRules,
		string(r.Report), r.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert audit %s: %w", r.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source, subject, sender, overall_score, passed_rules, failed_rules, report, created_at
		FROM audits WHERE id = ?
	`, id)
	r, err := scanSQLiteRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func (s *SQLiteStore) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, subject, sender, overall_score, passed_rules, failed_rules, report, created_at
		FROM audits ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying audits: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		r, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRecord(row scanner) (*Record, error) {
	var r Record
	var report, created string
	if err := row.Scan(&r.ID, &r.Source, &r.Subject, &r.Sender, &r.OverallScore,
		&r.PassedRules, &r.FailedRules, &report, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning row: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", created, err)
	}
	r.CreatedAt = ts
	r.Report = []byte(report)
	return &r, nil
}
