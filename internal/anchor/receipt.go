/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package anchor

import (
	"github.com/kentakayama/trust-anchor/internal/digest"
	"github.com/kentakayama/trust-anchor/internal/domain/model"
)

// NewReceipt builds a receipt with its digest filled in, as a device would
// submit it.
func NewReceipt(hwID uint64, fwHash, exHash model.Hash256, counter uint64) model.Receipt {
	return model.Receipt{
		HWID:          hwID,
		FirmwareHash:  fwHash,
		ExecutionHash: exHash,
		Counter:       counter,
		Digest:        digest.Compute(hwID, fwHash, exHash, counter),
	}
}
