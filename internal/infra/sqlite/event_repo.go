/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kentakayama/trust-anchor/internal/domain/model"
)

// EventRepository handles verification event persistence.
type EventRepository struct {
	db *sql.DB
}

func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Append inserts e at e.Seq. The primary key refuses a sequence number that
// is already taken.
func (r *EventRepository) Append(ctx context.Context, e *model.Event) error {
	const q = `
		INSERT INTO events (seq, kind, hw_id, counter, reason, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, q,
		toDB(e.Seq), int64(e.Kind), toDB(e.HWID), toDB(e.Counter), int64(e.Reason), e.RecordedAt.UTC().Unix())
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ListSince returns events with seq >= since in order. limit <= 0 means no limit.
func (r *EventRepository) ListSince(ctx context.Context, since uint64, limit int) ([]model.Event, error) {
	const q = `
		SELECT seq, kind, hw_id, counter, reason, recorded_at
		FROM events
		WHERE seq >= ?
		ORDER BY seq ASC
		LIMIT ?
	`
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, q, toDB(since), limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var (
			seq, hwID, counter, kind, reason, recordedAt int64
		)
		if err := rows.Scan(&seq, &kind, &hwID, &counter, &reason, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, model.Event{
			Seq:        fromDB(seq),
			Kind:       model.EventKind(kind),
			HWID:       fromDB(hwID),
			Counter:    fromDB(counter),
			Reason:     model.Reason(reason),
			RecordedAt: time.Unix(recordedAt, 0).UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func (r *EventRepository) Count(ctx context.Context) (uint64, error) {
	const q = `SELECT COUNT(*) FROM events`
	var n int64
	if err := r.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return uint64(n), nil
}
