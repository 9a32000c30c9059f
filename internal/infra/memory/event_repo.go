/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/kentakayama/trust-anchor/internal/domain/model"
)

// EventRepository stores verification events in memory (development/testing use).
type EventRepository struct {
	mu     sync.Mutex
	events []model.Event
}

func NewEventRepository() *EventRepository {
	return &EventRepository{}
}

func (r *EventRepository) Append(_ context.Context, e *model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.Seq != uint64(len(r.events)) {
		return fmt.Errorf("append event: seq %d, want %d", e.Seq, len(r.events))
	}
	r.events = append(r.events, *e)
	return nil
}

func (r *EventRepository) ListSince(_ context.Context, since uint64, limit int) ([]model.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if since >= uint64(len(r.events)) {
		return nil, nil
	}
	rest := r.events[since:]
	if limit > 0 && len(rest) > limit {
		rest = rest[:limit]
	}
	out := make([]model.Event, len(rest))
	copy(out, rest)
	return out, nil
}

func (r *EventRepository) Count(_ context.Context) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return uint64(len(r.events)), nil
}
