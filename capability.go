// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"context"
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/holiman/uint256"
)

// Storage is the minimal key-value capability the runtime persists
// decryption signatures to. Implementations may be backed by anything
// addressable by string keys (browser localStorage, a file, a database row).
type Storage interface {
	// GetItem returns the stored value and whether the key was present.
	GetItem(ctx context.Context, key string) (string, bool, error)
	// SetItem stores the value under the key, overwriting any previous value.
	SetItem(ctx context.Context, key string, value string) error
	// RemoveItem deletes the key. Removing an absent key is not an error.
	RemoveItem(ctx context.Context, key string) error
}

// Signer produces EIP-712 signatures on behalf of a user. Signing may prompt
// the user and is therefore treated as slow and interruptible.
type Signer interface {
	Address() common.Address
	SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error)
}

// UserDecryptRequest carries everything the engine needs to privately decrypt
// a set of handles on behalf of an authorized user.
type UserDecryptRequest struct {
	Requests          []DecryptRequest
	PrivateKey        string
	PublicKey         string
	Signature         string
	ContractAddresses []common.Address
	UserAddress       common.Address
	StartTimestamp    int64
	DurationDays      int64
}

// Engine is the externally supplied homomorphic cipher capability. The
// runtime never performs cipher math itself; it orchestrates calls into an
// Engine implementation.
//
// Decrypted values are returned as big integers regardless of the encrypted
// type: booleans decrypt to 0 or 1 and addresses to their 160-bit value.
type Engine interface {
	// CreateEncryptedInput returns a builder accumulating plaintext values to
	// be encrypted for the given contract on behalf of the given user.
	CreateEncryptedInput(contractAddress, userAddress common.Address) EncryptedInputBuilder

	// GenerateKeypair returns a fresh ephemeral keypair used to bind a
	// decryption authorization.
	GenerateKeypair() (publicKey, privateKey string, err error)

	// UserDecrypt decrypts the requested handles under a decryption
	// authorization, returning a value per handle.
	UserDecrypt(ctx context.Context, req UserDecryptRequest) (map[common.Hash]*big.Int, error)
}

// PublicDecrypter is the optional engine capability for decrypting publicly
// decryptable handles. Engines that do not support it simply omit the method.
type PublicDecrypter interface {
	PublicDecrypt(ctx context.Context, requests []DecryptRequest) (map[common.Hash]*big.Int, error)
}

// EncryptedInputBuilder accumulates typed plaintext values and encrypts them
// in one shot. Builders are single-use and not safe for concurrent use.
type EncryptedInputBuilder interface {
	AddBool(value bool) EncryptedInputBuilder
	Add8(value uint8) EncryptedInputBuilder
	Add16(value uint16) EncryptedInputBuilder
	Add32(value uint32) EncryptedInputBuilder
	Add64(value uint64) EncryptedInputBuilder
	Add128(value *uint256.Int) EncryptedInputBuilder
	Add256(value *uint256.Int) EncryptedInputBuilder
	AddAddress(value common.Address) EncryptedInputBuilder
	Encrypt(ctx context.Context) (*EncryptResult, error)
}

// NetworkTransport is a JSON-RPC shaped request capability. A URL network
// descriptor resolves to an rpc.Client-backed implementation; callers may
// supply their own.
type NetworkTransport interface {
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)
}

// EngineConfig is handed to the engine factory when an instance is created.
type EngineConfig struct {
	ChainID    uint64
	NetworkURL string
	Transport  NetworkTransport
}

// EngineFactory constructs the engine capability. Creation is expected to be
// expensive (key material fetches, parameter downloads) and is guarded by the
// instance lifecycle manager.
type EngineFactory func(ctx context.Context, cfg EngineConfig) (Engine, error)
