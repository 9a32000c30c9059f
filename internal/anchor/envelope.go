/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package anchor

import (
	"crypto"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/kentakayama/trust-anchor/internal/domain/model"
	"github.com/veraison/go-cose"
)

// SignedCommand is the payload of an administrative COSE_Sign1 envelope.
// The signer's public key travels with the command; whoever holds the
// matching private key is the caller. Seq must exceed the last sequence
// number the engine accepted, so a captured envelope cannot be sent twice.
type SignedCommand struct {
	_         struct{} `cbor:",toarray"`
	Command   Command
	Seq       uint64
	SignerKey cose.Key
}

// OpenedCommand is a command whose envelope signature has been checked.
type OpenedCommand struct {
	Command Command
	Seq     uint64
	Caller  model.Identity
}

// IdentityOf returns the caller identity bound to key, its SHA-256 COSE_Key
// thumbprint. The thumbprint only covers public members, so a private key and
// its public half share an identity.
func IdentityOf(key *cose.Key) (model.Identity, error) {
	if key == nil {
		return model.Identity{}, errors.New("key is nil")
	}
	kid, err := key.Thumbprint(crypto.SHA256)
	if err != nil {
		return model.Identity{}, err
	}
	return model.IdentityFromBytes(kid)
}

// PublicKey returns a copy of key without its private parameters.
func PublicKey(key *cose.Key) (*cose.Key, error) {
	if key == nil {
		return nil, errors.New("key is nil")
	}
	switch key.Type {
	case cose.KeyTypeEC2, cose.KeyTypeOKP:
	default:
		return nil, fmt.Errorf("%w: key type %v", ErrNotSupported, key.Type)
	}
	pub := *key
	pub.Ops = nil
	pub.Params = make(map[any]any, len(key.Params))
	for k, v := range key.Params {
		// EC2 d and OKP d share the label
		if k == cose.KeyLabelEC2D {
			continue
		}
		pub.Params[k] = v
	}
	return &pub, nil
}

// SignCommand wraps cmd and its sequence number in a COSE_Sign1 envelope
// signed with the private key.
func SignCommand(key *cose.Key, seq uint64, cmd Command) ([]byte, error) {
	signer, err := key.Signer()
	if err != nil {
		return nil, err
	}
	alg, err := key.AlgorithmOrDefault()
	if err != nil {
		return nil, err
	}
	pub, err := PublicKey(key)
	if err != nil {
		return nil, err
	}
	kid, err := key.Thumbprint(crypto.SHA256)
	if err != nil {
		return nil, err
	}

	headers := cose.Headers{
		Protected: cose.ProtectedHeader{
			cose.HeaderLabelAlgorithm: alg,
		},
		Unprotected: cose.UnprotectedHeader{
			cose.HeaderLabelKeyID: kid,
		},
	}

	payload, err := cbor.Marshal(SignedCommand{Command: cmd, Seq: seq, SignerKey: *pub})
	if err != nil {
		return nil, err
	}
	return cose.Sign1(rand.Reader, signer, headers, payload, nil)
}

// OpenCommand checks the envelope signature against the embedded key and
// returns the command together with its sequence number and the
// authenticated caller. Whether the sequence number is fresh is up to the
// engine.
func OpenCommand(raw []byte) (OpenedCommand, error) {
	var msg cose.Sign1Message
	if err := msg.UnmarshalCBOR(raw); err != nil {
		return OpenedCommand{}, fmt.Errorf("%w: %v", ErrNotCOSE, err)
	}

	var sc SignedCommand
	if err := cbor.Unmarshal(msg.Payload, &sc); err != nil {
		return OpenedCommand{}, err
	}
	pub, err := PublicKey(&sc.SignerKey)
	if err != nil {
		return OpenedCommand{}, fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}
	verifier, err := pub.Verifier()
	if err != nil {
		return OpenedCommand{}, fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}
	if err := msg.Verify(nil, verifier); err != nil {
		return OpenedCommand{}, fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}

	caller, err := IdentityOf(pub)
	if err != nil {
		return OpenedCommand{}, fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}
	return OpenedCommand{Command: sc.Command, Seq: sc.Seq, Caller: caller}, nil
}
