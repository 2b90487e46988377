// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package worker implements the message-envelope protocol that offloads
// cipher operations to a separate execution context. One correlation bridge
// and one envelope shape are shared by two transport variants: an in-process
// goroutine worker and a framed-stream worker running in another process.
package worker

import (
	"github.com/vmihailenco/msgpack/v5"
)

// Message types understood by the protocol. A response type is the request
// type with the "-response" suffix appended.
const (
	TypeInit            = "init"
	TypeReady           = "ready"
	TypeError           = "error"
	TypeEncrypt         = "encrypt"
	TypeEncryptResponse = "encrypt-response"
	TypeDecrypt         = "decrypt"
	TypeDecryptResponse = "decrypt-response"

	responseSuffix = "-response"
)

// Envelope is the wire shape of every protocol message. Request and response
// envelopes carry a session-unique non-zero ID; lifecycle messages (ready,
// init-scoped errors) carry ID zero and are never matched against the
// pending-request table.
type Envelope struct {
	Type    string             `msgpack:"type"`
	ID      uint64             `msgpack:"id,omitempty"`
	Payload msgpack.RawMessage `msgpack:"payload,omitempty"`
	Error   string             `msgpack:"error,omitempty"`
}

// ValueKind tags an encoded plaintext value inside an encrypt job.
type ValueKind uint8

const (
	ValueBool ValueKind = iota
	ValueUint8
	ValueUint16
	ValueUint32
	ValueUint64
	ValueUint128
	ValueUint256
	ValueAddress
)

// EncodedValue is one plaintext value in transit. Data is the big-endian
// byte representation of the value; booleans encode as a single 0 or 1 byte.
type EncodedValue struct {
	Kind ValueKind `msgpack:"kind"`
	Data []byte    `msgpack:"data"`
}

// EncryptJob asks the worker to encrypt a batch of values for a contract on
// behalf of a user.
type EncryptJob struct {
	ContractAddress string         `msgpack:"contractAddress"`
	UserAddress     string         `msgpack:"userAddress"`
	Values          []EncodedValue `msgpack:"values"`
}

// EncryptResult is the worker's reply to an EncryptJob.
type EncryptResult struct {
	Handles    [][]byte `msgpack:"handles"`
	InputProof []byte   `msgpack:"inputProof"`
}

// DecryptJob asks the worker to decrypt a ciphertext.
type DecryptJob struct {
	Ciphertext []byte            `msgpack:"ciphertext"`
	Params     map[string]string `msgpack:"params,omitempty"`
}

// DecryptResult is the worker's reply to a DecryptJob.
type DecryptResult struct {
	Plaintext []byte `msgpack:"plaintext"`
}
