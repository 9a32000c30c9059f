/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package model

// Receipt is an execution receipt submitted for verification. It is never
// persisted; only its counter survives an accepted verification.
type Receipt struct {
	HWID          uint64
	FirmwareHash  Hash256
	ExecutionHash Hash256
	Counter       uint64
	Digest        Hash256
}
