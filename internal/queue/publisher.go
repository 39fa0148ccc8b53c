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

// Package queue publishes audit events to a Redis list for downstream
// consumers (notification workers, dashboards).
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/mailaudit/internal/models"
)

// EventAuditCompleted is the envelope type of a finished audit.
const EventAuditCompleted = "audit.completed"

// Publisher sends audit events to Redis.
type Publisher struct {
	rdb       *redis.Client
	queueName string
	now       func() time.Time
}

// NewPublisher creates a new Redis publisher targeting the specified queue.
func NewPublisher(rdb *redis.Client, queueName string) *Publisher {
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
		now:       time.Now,
	}
}

// Envelope wraps every published event.
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	CreatedAt time.Time       `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}

// PublishAuditCompleted serialises event and LPUSHes it onto the queue.
// Consumers pop from the other end (BRPOP) to read in publish order.
func (p *Publisher) PublishAuditCompleted(ctx context.Context, event *models.AuditEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	env := Envelope{
		ID:        uuid.New().String(),
		Type:      EventAuditCompleted,
		CreatedAt: p.now().UTC(),
		Payload:   payload,
	}
	msg, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	if err := p.rdb.LPush(ctx, p.queueName, msg).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Info("published audit event to queue",
		"event_id", env.ID,
		"audit_id", event.AuditID,
		"queue", p.queueName,
	)
	return nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
