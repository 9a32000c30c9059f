/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package digest

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/kentakayama/trust-anchor/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	demoHWID    = uint64(0x1337133713371337)
	demoFW      = "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
	demoEX      = "cafecafecafecafecafecafecafecafecafecafecafecafecafecafecafecafe"
	demoDigest1 = "e1e5de5317ac5e0bf87dada0b61188540c5f397dabd6394123b8e207f487422b"
	demoDigest2 = "b714d8157a50f21f4bec4db157576af5d4145ed1ccecfb8e0e567f08afca7dfa"
	// demoDigest1 read as a signed 256-bit integer
	demoDigest1Signed = "-1e1a21ace853a1f40782525f49ee77abf3a0c6825429c6bedc471df80b78bdd5"
)

func mustHash(t *testing.T, s string) model.Hash256 {
	t.Helper()
	h, err := model.ParseHash(s)
	require.Nil(t, err)
	return h
}

func TestPack_LayoutIsBigEndianWithoutPadding(t *testing.T) {
	packed := Pack(demoHWID, mustHash(t, demoFW), mustHash(t, demoEX), 2)

	expected := "1337133713371337" + demoFW + demoEX + "0000000000000002"
	assert.Equal(t, PackedSize, len(packed))
	assert.Equal(t, expected, hex.EncodeToString(packed[:]))
}

func TestCompute_KnownVectors(t *testing.T) {
	fw := mustHash(t, demoFW)
	ex := mustHash(t, demoEX)

	assert.Equal(t, demoDigest1, Compute(demoHWID, fw, ex, 1).String())
	assert.Equal(t, demoDigest2, Compute(demoHWID, fw, ex, 2).String())
}

func TestForReceipt_IgnoresSubmittedDigest(t *testing.T) {
	r := model.Receipt{
		HWID:          demoHWID,
		FirmwareHash:  mustHash(t, demoFW),
		ExecutionHash: mustHash(t, demoEX),
		Counter:       1,
		Digest:        model.Hash256{0x01},
	}
	assert.Equal(t, demoDigest1, ForReceipt(r).String())
}

func TestSignedAndUnsignedConventions_Agree(t *testing.T) {
	expected := mustHash(t, demoDigest1)

	signed, ok := new(big.Int).SetString(demoDigest1Signed, 16)
	require.True(t, ok)
	unsigned, ok := new(big.Int).SetString(demoDigest1, 16)
	require.True(t, ok)

	fromSigned, err := FromSigned(signed)
	require.Nil(t, err)
	assert.Equal(t, expected, fromSigned)

	fromUnsigned, err := FromUnsigned(unsigned)
	require.Nil(t, err)
	assert.Equal(t, expected, fromUnsigned)

	viaInteger, err := FromInteger(signed)
	require.Nil(t, err)
	assert.Equal(t, expected, viaInteger)
	viaInteger, err = FromInteger(unsigned)
	require.Nil(t, err)
	assert.Equal(t, expected, viaInteger)

	assert.Equal(t, 0, ToSigned(expected).Cmp(signed))
	assert.Equal(t, 0, ToUnsigned(expected).Cmp(unsigned))
}

func TestSignedConvention_SmallValuesAreUnchanged(t *testing.T) {
	h := mustHash(t, demoDigest2)
	// the top bit is set here as well, so the signed reading is negative
	assert.Equal(t, -1, ToSigned(h).Sign())

	var small model.Hash256
	small[31] = 0x2a
	assert.Equal(t, int64(42), ToSigned(small).Int64())
	assert.Equal(t, int64(42), ToUnsigned(small).Int64())
}

func TestConversions_RejectOutOfRange(t *testing.T) {
	two256 := new(big.Int).Lsh(big.NewInt(1), 256)
	two255 := new(big.Int).Lsh(big.NewInt(1), 255)

	_, err := FromUnsigned(two256)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = FromUnsigned(big.NewInt(-1))
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = FromSigned(two255)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = FromSigned(new(big.Int).Sub(new(big.Int).Neg(two255), big.NewInt(1)))
	assert.ErrorIs(t, err, ErrOutOfRange)

	minSigned, err := FromSigned(new(big.Int).Neg(two255))
	require.Nil(t, err)
	assert.Equal(t, byte(0x80), minSigned[0])

	_, err = FromInteger(two256)
	assert.ErrorIs(t, err, ErrOutOfRange)
}
