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

// Identity names a caller. It is the SHA-256 COSE_Key thumbprint of the key
// that authenticated the caller.
type Identity [32]byte

func (i Identity) String() string {
	return hex.EncodeToString(i[:])
}

func (i Identity) IsZero() bool {
	return i == Identity{}
}

func IdentityFromBytes(b []byte) (Identity, error) {
	var id Identity
	if len(b) != len(id) {
		return id, fmt.Errorf("identity must be %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

func ParseIdentity(s string) (Identity, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return Identity{}, fmt.Errorf("parse identity: %w", err)
	}
	return IdentityFromBytes(b)
}
