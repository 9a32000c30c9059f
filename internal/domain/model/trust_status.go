/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package model

// TrustStatus summarises what the trust store knows about one device.
type TrustStatus struct {
	HWID         uint64  `cbor:"hw_id"`
	Authorized   bool    `cbor:"authorized"`
	Counter      uint64  `cbor:"counter"`
	NextCounter  uint64  `cbor:"next_counter"`
	Exhausted    bool    `cbor:"exhausted,omitempty"` // counter reached MaxUint64
	LastVerified *uint64 `cbor:"last_verified,omitempty"` // nil until a receipt was accepted
}
