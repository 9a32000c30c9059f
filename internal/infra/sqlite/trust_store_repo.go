/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kentakayama/trust-anchor/internal/domain"
	"github.com/kentakayama/trust-anchor/internal/domain/model"
)

// TrustStoreRepository persists the trust state. Each setter is a single
// upsert statement, so it applies atomically.
type TrustStoreRepository struct {
	db    *sql.DB
	owner model.Identity
}

// NewTrustStoreRepository binds the database to owner. The owner row is written
// on first use; a database already owned by another identity is refused.
func NewTrustStoreRepository(ctx context.Context, db *sql.DB, owner model.Identity) (*TrustStoreRepository, error) {
	if owner.IsZero() {
		return nil, domain.ErrOwnerMissing
	}

	const insert = `
		INSERT INTO owner (id, identity, created_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`
	if _, err := db.ExecContext(ctx, insert, owner[:], time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("insert owner: %w", err)
	}

	r := &TrustStoreRepository{db: db}
	stored, err := r.loadOwner(ctx)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(stored[:], owner[:]) {
		return nil, fmt.Errorf("%w: stored %s, configured %s", domain.ErrOwnerConflict, stored, owner)
	}
	r.owner = stored
	return r, nil
}

func (r *TrustStoreRepository) loadOwner(ctx context.Context) (model.Identity, error) {
	const query = `
		SELECT identity
		FROM owner
		WHERE id = 1
	`
	var raw []byte
	if err := r.db.QueryRowContext(ctx, query).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Identity{}, domain.ErrOwnerMissing
		}
		return model.Identity{}, fmt.Errorf("scan owner: %w", err)
	}
	return model.IdentityFromBytes(raw)
}

func (r *TrustStoreRepository) Owner(_ context.Context) (model.Identity, error) {
	return r.owner, nil
}

func (r *TrustStoreRepository) CommandSeq(ctx context.Context) (uint64, error) {
	const query = `
		SELECT command_seq
		FROM owner
		WHERE id = 1
	`
	var seq int64
	if err := r.db.QueryRowContext(ctx, query).Scan(&seq); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrOwnerMissing
		}
		return 0, fmt.Errorf("scan owner: %w", err)
	}
	return fromDB(seq), nil
}

func (r *TrustStoreRepository) SetCommandSeq(ctx context.Context, seq uint64) error {
	const q = `
		UPDATE owner
		SET command_seq = ?
		WHERE id = 1
	`
	res, err := r.db.ExecContext(ctx, q, toDB(seq))
	if err != nil {
		return fmt.Errorf("update owner: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrOwnerMissing
	}
	return nil
}

func (r *TrustStoreRepository) IsAuthorized(ctx context.Context, hwID uint64) (bool, error) {
	const query = `
		SELECT authorized
		FROM authorized_devices
		WHERE hw_id = ?
		LIMIT 1
	`
	var authorized bool
	if err := r.db.QueryRowContext(ctx, query, toDB(hwID)).Scan(&authorized); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("scan authorized_devices: %w", err)
	}
	return authorized, nil
}

func (r *TrustStoreRepository) IsApproved(ctx context.Context, fwHash model.Hash256) (bool, error) {
	const query = `
		SELECT approved
		FROM approved_firmware
		WHERE fw_hash = ?
		LIMIT 1
	`
	var approved bool
	if err := r.db.QueryRowContext(ctx, query, fwHash[:]).Scan(&approved); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("scan approved_firmware: %w", err)
	}
	return approved, nil
}

func (r *TrustStoreRepository) Counter(ctx context.Context, hwID uint64) (uint64, error) {
	const query = `
		SELECT counter
		FROM counters
		WHERE hw_id = ?
		LIMIT 1
	`
	var counter int64
	if err := r.db.QueryRowContext(ctx, query, toDB(hwID)).Scan(&counter); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("scan counters: %w", err)
	}
	return fromDB(counter), nil
}

func (r *TrustStoreRepository) SetAuthorized(ctx context.Context, hwID uint64, authorized bool) error {
	const q = `
		INSERT INTO authorized_devices (hw_id, authorized, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(hw_id) DO UPDATE SET
			authorized = excluded.authorized,
			updated_at = excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, q, toDB(hwID), authorized, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert authorized_devices: %w", err)
	}
	return nil
}

func (r *TrustStoreRepository) SetApproved(ctx context.Context, fwHash model.Hash256, approved bool) error {
	const q = `
		INSERT INTO approved_firmware (fw_hash, approved, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(fw_hash) DO UPDATE SET
			approved = excluded.approved,
			updated_at = excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, q, fwHash[:], approved, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert approved_firmware: %w", err)
	}
	return nil
}

func (r *TrustStoreRepository) SetCounter(ctx context.Context, hwID uint64, counter uint64) error {
	const q = `
		INSERT INTO counters (hw_id, counter, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(hw_id) DO UPDATE SET
			counter = excluded.counter,
			updated_at = excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, q, toDB(hwID), toDB(counter), time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert counters: %w", err)
	}
	return nil
}
