/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package domain

import "errors"

var (
	ErrOwnerConflict = errors.New("trust store is owned by a different identity")
	ErrOwnerMissing  = errors.New("trust store has no owner")
)
