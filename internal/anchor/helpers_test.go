/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package anchor

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"io"
	"log"
	"sync"
	"testing"

	"github.com/kentakayama/trust-anchor/internal/domain/model"
	"github.com/kentakayama/trust-anchor/internal/infra/memory"
	"github.com/stretchr/testify/require"
	"github.com/veraison/go-cose"
)

const demoHWID = uint64(0x1337133713371337)

var (
	demoFW = mustParseHash("deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef")
	demoEX = mustParseHash("cafecafecafecafecafecafecafecafecafecafecafecafecafecafecafecafe")
)

func mustParseHash(s string) model.Hash256 {
	h, err := model.ParseHash(s)
	if err != nil {
		panic(err)
	}
	return h
}

func newTestKey(t *testing.T) *cose.Key {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.Nil(t, err)
	return &cose.Key{
		Type:      cose.KeyTypeEC2,
		Algorithm: cose.AlgorithmES256,
		Params: map[any]any{
			cose.KeyLabelEC2Curve: cose.CurveP256,
			cose.KeyLabelEC2X:     priv.X.FillBytes(make([]byte, 32)),
			cose.KeyLabelEC2Y:     priv.Y.FillBytes(make([]byte, 32)),
			cose.KeyLabelEC2D:     priv.D.FillBytes(make([]byte, 32)),
		},
	}
}

func newTestIdentity(t *testing.T) (*cose.Key, model.Identity) {
	t.Helper()
	key := newTestKey(t)
	id, err := IdentityOf(key)
	require.Nil(t, err)
	return key, id
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestEngine(t *testing.T, owner model.Identity, opts ...Option) (*Engine, *memory.TrustStore) {
	t.Helper()
	store := memory.NewTrustStore(owner)
	e, err := NewEngine(context.Background(), store, quietLogger(), opts...)
	require.Nil(t, err)
	return e, store
}

type fakeObserver struct {
	mu       sync.Mutex
	commands []string
	events   []model.Event
}

func (o *fakeObserver) ObserveCommand(op string, result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.commands = append(o.commands, op+":"+result)
}

func (o *fakeObserver) ObserveReceipt(e model.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, e)
}

type failingRecorder struct{ err error }

func (r failingRecorder) Record(_ context.Context, e model.Event) (model.Event, error) {
	return e, r.err
}
