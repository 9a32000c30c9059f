/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package anchor

import (
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
	"github.com/kentakayama/trust-anchor/internal/digest"
	"github.com/kentakayama/trust-anchor/internal/domain/model"
)

// Opcode identifies an inbound message.
type Opcode uint32

const (
	OpAuthorizeDevice Opcode = 0x27d3e2ba
	OpApproveFirmware Opcode = 0xf1496a39
	OpRevokeDevice    Opcode = 0x2f2aa60c
	OpVerifyReceipt   Opcode = 0xd00fed3b
)

func (o Opcode) String() string {
	switch o {
	case OpAuthorizeDevice:
		return "AuthorizeDevice"
	case OpApproveFirmware:
		return "ApproveFirmware"
	case OpRevokeDevice:
		return "RevokeDevice"
	case OpVerifyReceipt:
		return "VerifyReceipt"
	default:
		return fmt.Sprintf("Opcode(%#x)", uint32(o))
	}
}

func (o Opcode) IsAdmin() bool {
	return o == OpAuthorizeDevice || o == OpApproveFirmware || o == OpRevokeDevice
}

// Command is an administrative request.
//
//	[opcode, hw_id]     AuthorizeDevice, RevokeDevice
//	[opcode, fw_hash]   ApproveFirmware
type Command struct {
	Op           Opcode
	HWID         uint64
	FirmwareHash model.Hash256
}

func AuthorizeDevice(hwID uint64) Command {
	return Command{Op: OpAuthorizeDevice, HWID: hwID}
}

func RevokeDevice(hwID uint64) Command {
	return Command{Op: OpRevokeDevice, HWID: hwID}
}

func ApproveFirmware(fwHash model.Hash256) Command {
	return Command{Op: OpApproveFirmware, FirmwareHash: fwHash}
}

func (c Command) MarshalCBOR() ([]byte, error) {
	switch c.Op {
	case OpAuthorizeDevice, OpRevokeDevice:
		return cbor.Marshal([]any{uint32(c.Op), c.HWID})
	case OpApproveFirmware:
		return cbor.Marshal([]any{uint32(c.Op), c.FirmwareHash[:]})
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownOpcode, c.Op)
	}
}

func (c *Command) UnmarshalCBOR(data []byte) error {
	var a []cbor.RawMessage
	if err := cbor.Unmarshal(data, &a); err != nil {
		return err
	}
	if len(a) != 2 {
		return fmt.Errorf("%w: command must have 2 items, got %d", ErrInvalidValue, len(a))
	}
	var op uint32
	if err := cbor.Unmarshal(a[0], &op); err != nil {
		return fmt.Errorf("%w: opcode: %v", ErrInvalidValue, err)
	}
	c.Op = Opcode(op)

	switch c.Op {
	case OpAuthorizeDevice, OpRevokeDevice:
		if err := cbor.Unmarshal(a[1], &c.HWID); err != nil {
			return fmt.Errorf("%w: hw_id: %v", ErrInvalidValue, err)
		}
	case OpApproveFirmware:
		h, err := decodeWord(a[1])
		if err != nil {
			return fmt.Errorf("fw_hash: %w", err)
		}
		c.FirmwareHash = h
	default:
		return fmt.Errorf("%w: %s", ErrUnknownOpcode, c.Op)
	}
	return nil
}

// EncodeReceipt encodes r as a VerifyReceipt message
//
//	[opcode, hw_id, fw_hash, ex_hash, counter, digest]
//
// with the 256-bit fields as 32-byte strings. When signedDigest is set the
// digest is sent as a CBOR integer in the signed two's-complement reading.
func EncodeReceipt(r model.Receipt, signedDigest bool) ([]byte, error) {
	var d any = r.Digest[:]
	if signedDigest {
		d = digest.ToSigned(r.Digest)
	}
	return cbor.Marshal([]any{
		uint32(OpVerifyReceipt),
		r.HWID,
		r.FirmwareHash[:],
		r.ExecutionHash[:],
		r.Counter,
		d,
	})
}

// DecodeReceipt parses a VerifyReceipt message. Every 256-bit field may be a
// 32-byte string or an integer in either the signed or the unsigned
// convention; all are normalised to the unsigned form.
func DecodeReceipt(data []byte) (model.Receipt, error) {
	var r model.Receipt
	var a []cbor.RawMessage
	if err := cbor.Unmarshal(data, &a); err != nil {
		return r, err
	}
	if len(a) != 6 {
		return r, fmt.Errorf("%w: receipt must have 6 items, got %d", ErrInvalidValue, len(a))
	}
	var op uint32
	if err := cbor.Unmarshal(a[0], &op); err != nil {
		return r, fmt.Errorf("%w: opcode: %v", ErrInvalidValue, err)
	}
	if Opcode(op) != OpVerifyReceipt {
		return r, fmt.Errorf("%w: %s", ErrUnknownOpcode, Opcode(op))
	}
	if err := cbor.Unmarshal(a[1], &r.HWID); err != nil {
		return r, fmt.Errorf("%w: hw_id: %v", ErrInvalidValue, err)
	}
	var err error
	if r.FirmwareHash, err = decodeWord(a[2]); err != nil {
		return r, fmt.Errorf("fw_hash: %w", err)
	}
	if r.ExecutionHash, err = decodeWord(a[3]); err != nil {
		return r, fmt.Errorf("ex_hash: %w", err)
	}
	if err := cbor.Unmarshal(a[4], &r.Counter); err != nil {
		return r, fmt.Errorf("%w: counter: %v", ErrInvalidValue, err)
	}
	if r.Digest, err = decodeWord(a[5]); err != nil {
		return r, fmt.Errorf("digest: %w", err)
	}
	return r, nil
}

func decodeWord(raw cbor.RawMessage) (model.Hash256, error) {
	var v any
	if err := cbor.Unmarshal(raw, &v); err != nil {
		return model.Hash256{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	var n *big.Int
	switch t := v.(type) {
	case []byte:
		h, err := model.HashFromBytes(t)
		if err != nil {
			return h, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return h, nil
	case uint64:
		n = new(big.Int).SetUint64(t)
	case int64:
		n = big.NewInt(t)
	case big.Int:
		n = &t
	case *big.Int:
		n = t
	default:
		return model.Hash256{}, fmt.Errorf("%w: unexpected type %T", ErrInvalidValue, v)
	}
	h, err := digest.FromInteger(n)
	if err != nil {
		return h, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return h, nil
}

// Fault is the error reply [code, message].
type Fault struct {
	_       struct{} `cbor:",toarray"`
	Code    uint32
	Message string
}

func NotOwnerFault() Fault {
	return Fault{Code: FaultNotOwner, Message: FaultNotOwnerReason}
}
