/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Package digest computes the content-binding hash of an execution receipt.
//
// The input is the fixed 80-byte packing
//
//	hw_id (8) | fw_hash (32) | ex_hash (32) | counter (8)
//
// big-endian without padding, hashed with SHA-256.
package digest

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/kentakayama/trust-anchor/internal/domain/model"
)

const PackedSize = 8 + 32 + 32 + 8

var ErrOutOfRange = errors.New("value does not fit in 256 bits")

var (
	two256 = new(big.Int).Lsh(big.NewInt(1), 256)
	two255 = new(big.Int).Lsh(big.NewInt(1), 255)
)

func Pack(hwID uint64, fwHash, exHash model.Hash256, counter uint64) [PackedSize]byte {
	var buf [PackedSize]byte
	binary.BigEndian.PutUint64(buf[0:8], hwID)
	copy(buf[8:40], fwHash[:])
	copy(buf[40:72], exHash[:])
	binary.BigEndian.PutUint64(buf[72:80], counter)
	return buf
}

func Compute(hwID uint64, fwHash, exHash model.Hash256, counter uint64) model.Hash256 {
	packed := Pack(hwID, fwHash, exHash, counter)
	return sha256.Sum256(packed[:])
}

// ForReceipt recomputes the digest a receipt should carry. The receipt's own
// Digest field is ignored.
func ForReceipt(r model.Receipt) model.Hash256 {
	return Compute(r.HWID, r.FirmwareHash, r.ExecutionHash, r.Counter)
}

// FromUnsigned converts an integer in [0, 2^256) to its canonical form.
func FromUnsigned(v *big.Int) (model.Hash256, error) {
	var h model.Hash256
	if v.Sign() < 0 || v.BitLen() > 256 {
		return h, ErrOutOfRange
	}
	v.FillBytes(h[:])
	return h, nil
}

// FromSigned reads v as a signed two's-complement 256-bit integer, that is a
// value in [-2^255, 2^255), and returns the canonical unsigned form.
func FromSigned(v *big.Int) (model.Hash256, error) {
	if v.Cmp(two255) >= 0 || v.Cmp(new(big.Int).Neg(two255)) < 0 {
		return model.Hash256{}, ErrOutOfRange
	}
	if v.Sign() >= 0 {
		return FromUnsigned(v)
	}
	return FromUnsigned(new(big.Int).Add(v, two256))
}

// FromInteger accepts either convention: negative values are read as signed
// two's-complement, non-negative values below 2^256 as unsigned. The two
// readings agree on [0, 2^255) so no value is ambiguous.
func FromInteger(v *big.Int) (model.Hash256, error) {
	if v.Sign() < 0 {
		return FromSigned(v)
	}
	return FromUnsigned(v)
}

func ToUnsigned(h model.Hash256) *big.Int {
	return new(big.Int).SetBytes(h[:])
}

func ToSigned(h model.Hash256) *big.Int {
	v := ToUnsigned(h)
	if v.Cmp(two255) >= 0 {
		v.Sub(v, two256)
	}
	return v
}
