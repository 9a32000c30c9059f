/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Package anchor implements the receipt verification engine: the owner-only
// administrative commands, the ordered admission gates for execution
// receipts and the read-only queries over the trust store.
package anchor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"

	"github.com/kentakayama/trust-anchor/internal/digest"
	"github.com/kentakayama/trust-anchor/internal/domain"
	"github.com/kentakayama/trust-anchor/internal/domain/model"
	"github.com/kentakayama/trust-anchor/internal/domain/service"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/kentakayama/trust-anchor/internal/anchor")

// Recorder receives every emitted event after the decision was committed.
type Recorder interface {
	Record(ctx context.Context, e model.Event) (model.Event, error)
}

// Observer is notified of every command and receipt outcome.
type Observer interface {
	ObserveCommand(op string, result string)
	ObserveReceipt(e model.Event)
}

// Command results reported to the Observer.
const (
	ResultOK     = "ok"
	ResultDenied = "denied"
	ResultStale  = "stale"
	ResultError  = "error"
)

// Option configures an Engine.
type Option func(*Engine)

// WithRecorder sets the Recorder that journals every receipt decision.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithObserver sets the Observer notified of command and receipt outcomes.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// Engine serialises every mutation of the trust store behind one lock; the
// four gates and the counter write of a receipt run as one critical section.
type Engine struct {
	mu       sync.RWMutex
	store    service.TrustStore
	owner    model.Identity
	recorder Recorder
	observer Observer
	logger   *log.Logger
}

// NewEngine creates an Engine over store, which must already carry an owner.
func NewEngine(ctx context.Context, store service.TrustStore, logger *log.Logger, opts ...Option) (*Engine, error) {
	if logger == nil {
		logger = log.Default()
	}
	owner, err := store.Owner(ctx)
	if err != nil {
		return nil, fmt.Errorf("load owner: %w", err)
	}
	if owner.IsZero() {
		return nil, domain.ErrOwnerMissing
	}
	e := &Engine{
		store:  store,
		owner:  owner,
		logger: logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Owner returns the identity fixed at deployment.
func (e *Engine) Owner() model.Identity {
	return e.owner
}

// AuthorizeDevice adds hwID to the authorized set.
func (e *Engine) AuthorizeDevice(ctx context.Context, caller model.Identity, hwID uint64) error {
	return e.admin(ctx, caller, AuthorizeDevice(hwID), nil)
}

// RevokeDevice clears the authorization of hwID. Its counter is kept, so a
// re-authorized device cannot replay old receipts.
func (e *Engine) RevokeDevice(ctx context.Context, caller model.Identity, hwID uint64) error {
	return e.admin(ctx, caller, RevokeDevice(hwID), nil)
}

// ApproveFirmware adds fwHash to the approved set.
func (e *Engine) ApproveFirmware(ctx context.Context, caller model.Identity, fwHash model.Hash256) error {
	return e.admin(ctx, caller, ApproveFirmware(fwHash), nil)
}

// Dispatch runs an authenticated administrative command received from a
// transport. seq must be strictly greater than the last accepted one, the
// same rule the counter gate applies to receipts; otherwise the command is
// refused with ErrStaleCommand and nothing changes. The sequence number only
// advances once the command has been applied.
func (e *Engine) Dispatch(ctx context.Context, caller model.Identity, seq uint64, cmd Command) error {
	if !cmd.Op.IsAdmin() {
		return fmt.Errorf("%w: %s", ErrUnknownOpcode, cmd.Op)
	}
	return e.admin(ctx, caller, cmd, &seq)
}

// admin applies cmd. A nil seq marks an in-process call that carries no
// sequence number.
func (e *Engine) admin(ctx context.Context, caller model.Identity, cmd Command, seq *uint64) (err error) {
	ctx, span := tracer.Start(ctx, "anchor."+cmd.Op.String(),
		trace.WithAttributes(
			attribute.String("anchor.caller", caller.String()),
			attribute.String("anchor.op", cmd.Op.String()),
		))
	defer func() {
		result := ResultOK
		switch {
		case errors.Is(err, ErrAccessDenied):
			result = ResultDenied
			span.SetStatus(codes.Error, err.Error())
		case errors.Is(err, ErrStaleCommand):
			result = ResultStale
			span.SetStatus(codes.Error, err.Error())
		case err != nil:
			result = ResultError
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("anchor.result", result))
		span.End()
		if e.observer != nil {
			e.observer.ObserveCommand(cmd.Op.String(), result)
		}
	}()

	if caller != e.owner {
		e.logger.Printf("%s refused: caller %s is not the owner", cmd.Op, caller)
		return ErrAccessDenied
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if seq != nil {
		span.SetAttributes(attribute.String("anchor.seq", fmt.Sprintf("%d", *seq)))
		last, err := e.store.CommandSeq(ctx)
		if err != nil {
			return fmt.Errorf("load command sequence: %w", err)
		}
		if *seq <= last {
			e.logger.Printf("%s refused: sequence number %d is not above %d", cmd.Op, *seq, last)
			return fmt.Errorf("%w: got %d, last accepted %d", ErrStaleCommand, *seq, last)
		}
	}

	switch cmd.Op {
	case OpAuthorizeDevice:
		err = e.store.SetAuthorized(ctx, cmd.HWID, true)
	case OpRevokeDevice:
		err = e.store.SetAuthorized(ctx, cmd.HWID, false)
	case OpApproveFirmware:
		err = e.store.SetApproved(ctx, cmd.FirmwareHash, true)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownOpcode, cmd.Op)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", cmd.Op, err)
	}
	if seq != nil {
		// a crash before this write leaves an applied command replayable
		// once; every admin command is idempotent, so that is harmless
		if err := e.store.SetCommandSeq(ctx, *seq); err != nil {
			return fmt.Errorf("store command sequence: %w", err)
		}
	}

	switch cmd.Op {
	case OpApproveFirmware:
		e.logger.Printf("%s: firmware %s", cmd.Op, cmd.FirmwareHash)
	default:
		e.logger.Printf("%s: device %#x", cmd.Op, cmd.HWID)
	}
	return nil
}

// VerifyReceipt runs the admission gates in order and stops at the first
// failure:
//
//  1. the device is authorized
//  2. the firmware is approved
//  3. the counter is strictly greater than the last accepted one
//  4. the digest matches the receipt fields
//
// An accepted receipt advances the device counter and yields a
// VerificationPassed event. A rejected one leaves the store untouched and
// yields a VerificationFailed event together with a *RejectedError.
//
// The event is returned even when err is non-nil. An error wrapping
// ErrJournal means the decision stands but could not be recorded.
//
// The counter write and the journal append are separate writes to the
// store. If the process dies between the two, the device counter has
// advanced but the journal never sees that decision. The journal stays
// dense; it just lacks the entry, and the device's next receipt must still
// carry a higher counter.
func (e *Engine) VerifyReceipt(ctx context.Context, r model.Receipt) (model.Event, error) {
	ctx, span := tracer.Start(ctx, "anchor.VerifyReceipt",
		trace.WithAttributes(
			attribute.String("anchor.hw_id", fmt.Sprintf("%#x", r.HWID)),
			attribute.String("anchor.counter", fmt.Sprintf("%d", r.Counter)),
		))
	defer span.End()

	ev, err, jerr := e.decide(ctx, r)
	if err != nil {
		if _, rejected := ReasonOf(err); !rejected {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			e.logger.Printf("receipt from %#x: %v", r.HWID, err)
			return model.Event{}, err
		}
	}
	span.SetAttributes(
		attribute.String("anchor.outcome", ev.Kind.String()),
		attribute.String("anchor.reason", ev.Reason.String()),
	)
	if ev.IsPassed() {
		e.logger.Printf("receipt from %#x accepted at counter %d", r.HWID, r.Counter)
	} else {
		e.logger.Printf("receipt from %#x rejected: %s", r.HWID, ev.Reason)
	}
	if e.observer != nil {
		e.observer.ObserveReceipt(ev)
	}

	if jerr != nil {
		e.logger.Printf("failed to record %s for %#x: %v", ev.Kind, ev.HWID, jerr)
		span.RecordError(jerr)
		return ev, errors.Join(err, fmt.Errorf("%w: %v", ErrJournal, jerr))
	}
	return ev, err
}

// decide runs the gates and records the outcome while holding the lock, so
// the journal order is the decision order.
func (e *Engine) decide(ctx context.Context, r model.Receipt) (ev model.Event, err error, jerr error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ev, err = e.admit(ctx, r)
	if err != nil {
		if _, rejected := ReasonOf(err); !rejected {
			return model.Event{}, err, nil
		}
	}
	if e.recorder != nil {
		recorded, rerr := e.recorder.Record(ctx, ev)
		if rerr != nil {
			return ev, err, rerr
		}
		ev = recorded
	}
	return ev, err, nil
}

// admit must be called with e.mu held.
func (e *Engine) admit(ctx context.Context, r model.Receipt) (model.Event, error) {
	reject := func(reason model.Reason) (model.Event, error) {
		return model.Failed(r.HWID, reason), &RejectedError{HWID: r.HWID, Reason: reason}
	}

	authorized, err := e.store.IsAuthorized(ctx, r.HWID)
	if err != nil {
		return model.Event{}, err
	}
	if !authorized {
		return reject(model.ReasonDeviceNotAuthorized)
	}

	approved, err := e.store.IsApproved(ctx, r.FirmwareHash)
	if err != nil {
		return model.Event{}, err
	}
	if !approved {
		return reject(model.ReasonFirmwareNotApproved)
	}

	last, err := e.store.Counter(ctx, r.HWID)
	if err != nil {
		return model.Event{}, err
	}
	if r.Counter <= last {
		return reject(model.ReasonReplayOrStaleCounter)
	}

	if digest.ForReceipt(r) != r.Digest {
		return reject(model.ReasonDigestMismatch)
	}

	if err := e.store.SetCounter(ctx, r.HWID, r.Counter); err != nil {
		return model.Event{}, err
	}
	return model.Passed(r.HWID, r.Counter), nil
}

// CommandSeq returns the sequence number of the last command accepted
// through Dispatch. The next command must carry a greater one.
func (e *Engine) CommandSeq(ctx context.Context) (uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.CommandSeq(ctx)
}

func (e *Engine) IsAuthorized(ctx context.Context, hwID uint64) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.IsAuthorized(ctx, hwID)
}

func (e *Engine) IsApprovedFirmware(ctx context.Context, fwHash model.Hash256) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.IsApproved(ctx, fwHash)
}

func (e *Engine) Counter(ctx context.Context, hwID uint64) (uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.Counter(ctx, hwID)
}

// Status reports what a device needs to submit its next receipt. Once the
// counter reaches MaxUint64 no further receipt can pass; NextCounter stays at
// MaxUint64 and Exhausted is set.
func (e *Engine) Status(ctx context.Context, hwID uint64) (model.TrustStatus, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	authorized, err := e.store.IsAuthorized(ctx, hwID)
	if err != nil {
		return model.TrustStatus{}, err
	}
	counter, err := e.store.Counter(ctx, hwID)
	if err != nil {
		return model.TrustStatus{}, err
	}

	st := model.TrustStatus{
		HWID:        hwID,
		Authorized:  authorized,
		Counter:     counter,
		NextCounter: counter + 1,
	}
	if counter == math.MaxUint64 {
		st.NextCounter = counter
		st.Exhausted = true
	}
	if counter > 0 {
		last := counter
		st.LastVerified = &last
	}
	return st, nil
}
