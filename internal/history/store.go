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

// Package history persists finished audits so they can be listed and
// fetched again. Postgres backs the service; SQLite backs local CLI runs.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bcem/mailaudit/internal/config"
)

// Record is one stored audit.
type Record struct {
	ID           string          `json:"id"`
	Source       string          `json:"source"`
	Subject      string          `json:"subject"`
	Sender       string          `json:"sender"`
	OverallScore float64         `json:"overall_score"`
	PassedRules  int             `json:"passed_rules"`
	FailedRules  int             `json:"failed_rules"`
	Report       json.RawMessage `json:"report"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Store persists audit records.
type Store interface {
	Save(ctx context.Context, r Record) error
	// Get returns nil, nil when no record has the given id.
	Get(ctx context.Context, id string) (*Record, error)
	// ListRecent returns up to limit records, newest first.
	ListRecent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

// Open connects the store selected by driver. DriverNone returns nil, nil.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case config.DriverNone, "":
		return nil, nil
	case config.DriverPostgres:
		s, err := OpenPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverSQLite:
		s, err := OpenSQLite(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown history driver %q", driver)
	}
}
