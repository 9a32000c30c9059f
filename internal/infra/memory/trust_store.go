/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package memory

import (
	"context"
	"sync"

	"github.com/kentakayama/trust-anchor/internal/domain/model"
	"github.com/kentakayama/trust-anchor/internal/util"
)

// TrustStore keeps the trust state in process memory. It is safe for
// concurrent use and loses everything on exit.
type TrustStore struct {
	mu         sync.RWMutex
	owner      model.Identity
	authorized util.Set[uint64]
	approved   util.Set[model.Hash256]
	counters   map[uint64]uint64
	commandSeq uint64
}

func NewTrustStore(owner model.Identity) *TrustStore {
	return &TrustStore{
		owner:      owner,
		authorized: util.NewSet[uint64](),
		approved:   util.NewSet[model.Hash256](),
		counters:   make(map[uint64]uint64),
	}
}

func (s *TrustStore) Owner(_ context.Context) (model.Identity, error) {
	// owner is immutable after construction
	return s.owner, nil
}

func (s *TrustStore) CommandSeq(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commandSeq, nil
}

func (s *TrustStore) SetCommandSeq(_ context.Context, seq uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commandSeq = seq
	return nil
}

func (s *TrustStore) IsAuthorized(_ context.Context, hwID uint64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authorized.Has(hwID), nil
}

func (s *TrustStore) IsApproved(_ context.Context, fwHash model.Hash256) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.approved.Has(fwHash), nil
}

func (s *TrustStore) Counter(_ context.Context, hwID uint64) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters[hwID], nil
}

func (s *TrustStore) SetAuthorized(_ context.Context, hwID uint64, authorized bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authorized.Put(hwID, authorized)
	return nil
}

func (s *TrustStore) SetApproved(_ context.Context, fwHash model.Hash256, approved bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approved.Put(fwHash, approved)
	return nil
}

func (s *TrustStore) SetCounter(_ context.Context, hwID uint64, counter uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[hwID] = counter
	return nil
}
