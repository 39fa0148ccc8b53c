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

// Package reportcache stores rendered audit reports in Redis, keyed by a
// digest of the raw message, so re-submitting the same .eml skips the audit.
package reportcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is how long a rendered report is kept.
	DefaultTTL = 24 * time.Hour

	// keyPrefix namespaces cache keys in Redis.
	keyPrefix = "mailaudit:report:"
)

// Cache maps raw message bytes to a previously rendered report.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New creates a report cache backed by Redis. A non-positive ttl selects
// DefaultTTL.
func New(rdb *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

// Key returns the Redis key for raw.
func Key(raw []byte) string {
	sum := sha256.Sum256(raw)
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Get returns the cached report for raw, if any.
func (c *Cache) Get(ctx context.Context, raw []byte) ([]byte, bool, error) {
	data, err := c.rdb.Get(ctx, Key(raw)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("report cache GET: %w", err)
	}
	return data, true, nil
}

// Put stores report for raw with the configured TTL.
func (c *Cache) Put(ctx context.Context, raw, report []byte) error {
	if err := c.rdb.Set(ctx, Key(raw), report, c.ttl).Err(); err != nil {
		return fmt.Errorf("report cache SET: %w", err)
	}
	return nil
}
