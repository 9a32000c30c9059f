/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package anchor

import (
	"errors"
	"fmt"

	"github.com/kentakayama/trust-anchor/internal/domain/model"
)

var (
	ErrAccessDenied     = errors.New("not owner")
	ErrStaleCommand     = errors.New("stale command sequence number")
	ErrRejected         = errors.New("receipt rejected")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNotCOSE          = errors.New("not a COSE_Sign1 message")
	ErrUnknownOpcode    = errors.New("unknown opcode")
	ErrInvalidValue     = errors.New("invalid value")
	ErrNotSupported     = errors.New("not supported")
	ErrJournal          = errors.New("journal append failed")
)

// Fault codes carried in error replies.
const (
	FaultNotOwner       uint32 = 14534
	FaultNotOwnerReason        = "Not owner"
)

// RejectedError is returned by VerifyReceipt when one of the gates fails.
type RejectedError struct {
	HWID   uint64
	Reason model.Reason
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("receipt from %#x rejected: %s", e.HWID, e.Reason)
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}

// ReasonOf extracts the gate failure carried by err, if any.
func ReasonOf(err error) (model.Reason, bool) {
	var re *RejectedError
	if errors.As(err, &re) {
		return re.Reason, true
	}
	return model.ReasonNone, false
}
