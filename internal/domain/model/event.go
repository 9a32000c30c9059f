/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Reason tells which gate rejected a receipt. The numbering follows the gate
// order and is part of the wire format.
type Reason uint8

const (
	ReasonNone                 Reason = 0
	ReasonDeviceNotAuthorized  Reason = 1
	ReasonFirmwareNotApproved  Reason = 2
	ReasonReplayOrStaleCounter Reason = 3
	ReasonDigestMismatch       Reason = 4
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "NONE"
	case ReasonDeviceNotAuthorized:
		return "DEVICE_NOT_AUTHORIZED"
	case ReasonFirmwareNotApproved:
		return "FIRMWARE_NOT_APPROVED"
	case ReasonReplayOrStaleCounter:
		return "REPLAY_OR_STALE_COUNTER"
	case ReasonDigestMismatch:
		return "DIGEST_MISMATCH"
	default:
		return fmt.Sprintf("REASON(%d)", uint8(r))
	}
}

func (r Reason) Valid() bool {
	return r >= ReasonDeviceNotAuthorized && r <= ReasonDigestMismatch
}

// EventKind values are the message opcodes of the outbound events.
type EventKind uint32

const (
	EventVerificationPassed EventKind = 0xeb9f1ed5
	EventVerificationFailed EventKind = 0x92a79d64
)

func (k EventKind) String() string {
	switch k {
	case EventVerificationPassed:
		return "VerificationPassed"
	case EventVerificationFailed:
		return "VerificationFailed"
	default:
		return fmt.Sprintf("EventKind(%#x)", uint32(k))
	}
}

var ErrUnknownEvent = errors.New("unknown event kind")

// Event is emitted once per verification request.
//
// On the wire a passed event is [kind, hw_id, counter] and a failed one is
// [kind, hw_id, reason]. Seq and RecordedAt are assigned by the journal and are
// not part of that encoding.
type Event struct {
	Seq        uint64
	Kind       EventKind
	HWID       uint64
	Counter    uint64 // VerificationPassed only
	Reason     Reason // VerificationFailed only
	RecordedAt time.Time
}

func Passed(hwID, counter uint64) Event {
	return Event{Kind: EventVerificationPassed, HWID: hwID, Counter: counter}
}

func Failed(hwID uint64, reason Reason) Event {
	return Event{Kind: EventVerificationFailed, HWID: hwID, Reason: reason}
}

func (e Event) IsPassed() bool {
	return e.Kind == EventVerificationPassed
}

func (e Event) MarshalCBOR() ([]byte, error) {
	switch e.Kind {
	case EventVerificationPassed:
		return cbor.Marshal([]any{uint32(e.Kind), e.HWID, e.Counter})
	case EventVerificationFailed:
		return cbor.Marshal([]any{uint32(e.Kind), e.HWID, uint8(e.Reason)})
	default:
		return nil, ErrUnknownEvent
	}
}

func (e *Event) UnmarshalCBOR(data []byte) error {
	var a []cbor.RawMessage
	if err := cbor.Unmarshal(data, &a); err != nil {
		return err
	}
	if len(a) != 3 {
		return fmt.Errorf("event must have 3 items, got %d", len(a))
	}
	var kind uint32
	if err := cbor.Unmarshal(a[0], &kind); err != nil {
		return err
	}
	e.Kind = EventKind(kind)
	if err := cbor.Unmarshal(a[1], &e.HWID); err != nil {
		return err
	}

	switch e.Kind {
	case EventVerificationPassed:
		return cbor.Unmarshal(a[2], &e.Counter)
	case EventVerificationFailed:
		var r uint8
		if err := cbor.Unmarshal(a[2], &r); err != nil {
			return err
		}
		e.Reason = Reason(r)
		if !e.Reason.Valid() {
			return fmt.Errorf("invalid reason %d", r)
		}
		return nil
	default:
		return ErrUnknownEvent
	}
}
