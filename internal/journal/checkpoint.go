/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package journal

import (
	"errors"
	"fmt"

	flog "github.com/transparency-dev/formats/log"
	"golang.org/x/mod/sumdb/note"
)

var ErrNoSigner = errors.New("journal has no checkpoint signer")

// Checkpoint commits to the first Size entries of the journal. Its text form
// is the transparency-log checkpoint body: origin, size and base64 root hash
// on three lines.
type Checkpoint = flog.Checkpoint

// OpenCheckpoint verifies a signed checkpoint note issued by v for origin and
// returns its body.
func OpenCheckpoint(msg []byte, origin string, v note.Verifier) (Checkpoint, error) {
	cp, _, _, err := flog.ParseCheckpoint(msg, origin, v)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("open checkpoint: %w", err)
	}
	return *cp, nil
}
