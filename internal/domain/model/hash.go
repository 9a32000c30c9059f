/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package model

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Hash256 is an opaque 256-bit unsigned value in big-endian byte order.
// Firmware hashes, external hashes and receipt digests all use it.
type Hash256 [32]byte

func (h Hash256) String() string {
	return hex.EncodeToString(h[:])
}

func HashFromBytes(b []byte) (Hash256, error) {
	var h Hash256
	if len(b) != len(h) {
		return h, fmt.Errorf("hash must be %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

// ParseHash accepts 64 hex digits with an optional 0x prefix.
func ParseHash(s string) (Hash256, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(s), "0x"))
	if err != nil {
		return Hash256{}, fmt.Errorf("parse hash: %w", err)
	}
	return HashFromBytes(b)
}
