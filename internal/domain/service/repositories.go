/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package service

import (
	"context"

	"github.com/kentakayama/trust-anchor/internal/domain/model"
)

// TrustStore holds the owner, the authorized-device and approved-firmware
// sets, the per-device counters and the owner's last accepted command
// sequence number. It enforces no business rules; every setter must apply
// atomically. Absent keys read as false or 0.
type TrustStore interface {
	Owner(ctx context.Context) (model.Identity, error)
	CommandSeq(ctx context.Context) (uint64, error)
	SetCommandSeq(ctx context.Context, seq uint64) error
	IsAuthorized(ctx context.Context, hwID uint64) (bool, error)
	IsApproved(ctx context.Context, fwHash model.Hash256) (bool, error)
	Counter(ctx context.Context, hwID uint64) (uint64, error)
	SetAuthorized(ctx context.Context, hwID uint64, authorized bool) error
	SetApproved(ctx context.Context, fwHash model.Hash256, approved bool) error
	SetCounter(ctx context.Context, hwID uint64, counter uint64) error
}

// EventRepository defines the interface for verification event persistence.
// Sequence numbers are dense and start at 0.
type EventRepository interface {
	Append(ctx context.Context, e *model.Event) error
	ListSince(ctx context.Context, since uint64, limit int) ([]model.Event, error)
	Count(ctx context.Context) (uint64, error)
}
