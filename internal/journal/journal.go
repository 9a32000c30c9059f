/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Package journal keeps an append-only, Merkle-committed record of every
// verification event.
//
// Entries are RFC 6962 leaves over the CBOR array [seq, recorded_at, event].
// The tree is held as a compact range and rebuilt from the repository at
// start-up, so only the repository is durable.
package journal

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/kentakayama/trust-anchor/internal/domain/model"
	"github.com/kentakayama/trust-anchor/internal/domain/service"
	"github.com/transparency-dev/merkle/compact"
	"github.com/transparency-dev/merkle/rfc6962"
	"golang.org/x/mod/sumdb/note"
)

// replay batch size used when rebuilding the tree
const rebuildBatch = 256

type Journal struct {
	mu     sync.Mutex
	repo   service.EventRepository
	origin string
	signer note.Signer
	rng    *compact.Range
	logger *log.Logger
	now    func() time.Time
}

var rangeFactory = compact.RangeFactory{Hash: rfc6962.DefaultHasher.HashChildren}

// New opens the journal stored in repo. signer may be nil, in which case
// SignedCheckpoint is unavailable.
func New(ctx context.Context, repo service.EventRepository, origin string, signer note.Signer, logger *log.Logger) (*Journal, error) {
	if logger == nil {
		logger = log.Default()
	}
	j := &Journal{
		repo:   repo,
		origin: origin,
		signer: signer,
		rng:    rangeFactory.NewEmptyRange(0),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Second) },
	}
	if err := j.rebuild(ctx); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Journal) rebuild(ctx context.Context) error {
	for {
		events, err := j.repo.ListSince(ctx, j.rng.End(), rebuildBatch)
		if err != nil {
			return fmt.Errorf("rebuild journal: %w", err)
		}
		if len(events) == 0 {
			break
		}
		for _, e := range events {
			if e.Seq != j.rng.End() {
				return fmt.Errorf("rebuild journal: gap at %d (found %d)", j.rng.End(), e.Seq)
			}
			leaf, err := LeafData(e)
			if err != nil {
				return fmt.Errorf("rebuild journal: %w", err)
			}
			if err := j.rng.Append(rfc6962.DefaultHasher.HashLeaf(leaf), nil); err != nil {
				return fmt.Errorf("rebuild journal: %w", err)
			}
		}
	}
	if j.rng.End() > 0 {
		j.logger.Printf("journal %q restored with %d entries", j.origin, j.rng.End())
	}
	return nil
}

// LeafData returns the bytes that are hashed into the tree for e.
func LeafData(e model.Event) ([]byte, error) {
	return cbor.Marshal([]any{e.Seq, e.RecordedAt.Unix(), e})
}

// Record assigns the next sequence number and a timestamp to e, stores it and
// extends the tree. The stored event is returned.
func (j *Journal) Record(ctx context.Context, e model.Event) (model.Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	e.Seq = j.rng.End()
	e.RecordedAt = j.now()

	leaf, err := LeafData(e)
	if err != nil {
		return e, fmt.Errorf("encode journal entry: %w", err)
	}
	if err := j.repo.Append(ctx, &e); err != nil {
		return e, err
	}
	if err := j.rng.Append(rfc6962.DefaultHasher.HashLeaf(leaf), nil); err != nil {
		return e, fmt.Errorf("extend journal tree: %w", err)
	}
	return e, nil
}

// Since lists stored events starting at sequence number since.
func (j *Journal) Since(ctx context.Context, since uint64, limit int) ([]model.Event, error) {
	return j.repo.ListSince(ctx, since, limit)
}

func (j *Journal) Size() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.rng.End()
}

func (j *Journal) Checkpoint() (Checkpoint, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	cp := Checkpoint{Origin: j.origin, Size: j.rng.End()}
	if cp.Size == 0 {
		cp.Hash = rfc6962.DefaultHasher.EmptyRoot()
		return cp, nil
	}
	root, err := j.rng.GetRootHash(nil)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("journal root: %w", err)
	}
	cp.Hash = root
	return cp, nil
}

// SignedCheckpoint returns the current checkpoint as a signed note.
func (j *Journal) SignedCheckpoint() ([]byte, error) {
	if j.signer == nil {
		return nil, ErrNoSigner
	}
	cp, err := j.Checkpoint()
	if err != nil {
		return nil, err
	}
	return note.Sign(&note.Note{Text: string(cp.Marshal())}, j.signer)
}
