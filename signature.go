// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"go.uber.org/zap"
)

// signatureSchemaVersion versions the persisted signature format. Entries
// with any other version are treated as cache misses.
const signatureSchemaVersion = 1

// signatureKeyPrefix namespaces signature entries in Storage.
const signatureKeyPrefix = "fhe.sig.v1."

// DecryptionSignature is a time-bounded authorization permitting private
// decryption on behalf of a user. It is valid for exactly the sorted,
// deduplicated contract-address set it was created for.
type DecryptionSignature struct {
	Version           int              `json:"version"`
	PublicKey         string           `json:"publicKey"`
	PrivateKey        string           `json:"privateKey"`
	Signature         string           `json:"signature"`
	ContractAddresses []common.Address `json:"contractAddresses"`
	UserAddress       common.Address   `json:"userAddress"`
	StartTimestamp    int64            `json:"startTimestamp"`
	DurationDays      int64            `json:"durationDays"`
}

// ExpiresAt returns the instant the authorization lapses
func (s *DecryptionSignature) ExpiresAt() time.Time {
	return time.Unix(s.StartTimestamp+s.DurationDays*86400, 0)
}

// ValidAt reports whether the authorization is usable at the given instant
func (s *DecryptionSignature) ValidAt(now time.Time) bool {
	return s.Version == signatureSchemaVersion && now.Before(s.ExpiresAt())
}

// normalizeAddresses returns the sorted, deduplicated copy of addrs. The
// normalized set is the identity of an authorization: {A, B} and {B, A} are
// the same set, {A, B, C} is not.
func normalizeAddresses(addrs []common.Address) []common.Address {
	normalized := make([]common.Address, len(addrs))
	copy(normalized, addrs)
	sort.Slice(normalized, func(i, j int) bool {
		return bytes.Compare(normalized[i][:], normalized[j][:]) < 0
	})

	deduped := normalized[:0]
	for i, addr := range normalized {
		if i == 0 || addr != normalized[i-1] {
			deduped = append(deduped, addr)
		}
	}
	return deduped
}

// signatureCacheKey derives the deterministic storage key of an
// authorization from the chain, the user, and the normalized contract set.
func signatureCacheKey(chainID uint64, user common.Address, normalized []common.Address) string {
	var chainBytes [8]byte
	binary.BigEndian.PutUint64(chainBytes[:], chainID)

	parts := make([][]byte, 0, len(normalized)+2)
	parts = append(parts, chainBytes[:], user.Bytes())
	for _, addr := range normalized {
		parts = append(parts, addr.Bytes())
	}
	return signatureKeyPrefix + hex.EncodeToString(crypto.Keccak256(parts...))
}

// decryptionTypedData builds the EIP-712 payload binding the ephemeral
// public key, the contract set, and the validity window.
func (c *Client) decryptionTypedData(publicKey string, normalized []common.Address, startTimestamp, durationDays int64) apitypes.TypedData {
	contracts := make([]any, len(normalized))
	for i, addr := range normalized {
		contracts[i] = addr.Hex()
	}

	domain := apitypes.TypedDataDomain{
		Name:    "Decryption",
		Version: "1",
		ChainId: math.NewHexOrDecimal256(int64(c.cfg.ChainID)),
	}
	if c.cfg.VerifyingContract != (common.Address{}) {
		domain.VerifyingContract = c.cfg.VerifyingContract.Hex()
	}

	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"UserDecryptRequestVerification": {
				{Name: "publicKey", Type: "bytes"},
				{Name: "contractAddresses", Type: "address[]"},
				{Name: "startTimestamp", Type: "uint256"},
				{Name: "durationDays", Type: "uint256"},
			},
		},
		PrimaryType: "UserDecryptRequestVerification",
		Domain:      domain,
		Message: apitypes.TypedDataMessage{
			"publicKey":         publicKey,
			"contractAddresses": contracts,
			"startTimestamp":    fmt.Sprintf("%d", startTimestamp),
			"durationDays":      fmt.Sprintf("%d", durationDays),
		},
	}
}

// loadOrSign returns a valid decryption authorization for the contract set,
// reusing a cached one when possible. Concurrent calls for the same set
// share a single signing flow; the signer is never prompted twice for one
// logical authorization.
func (c *Client) loadOrSign(ctx context.Context, engine Engine, contractAddresses []common.Address) (*DecryptionSignature, error) {
	if c.cfg.Signer == nil {
		return nil, errConfig("a signer is required for decryption")
	}

	user := c.cfg.Signer.Address()
	normalized := normalizeAddresses(contractAddresses)
	key := signatureCacheKey(c.cfg.ChainID, user, normalized)

	if sig, ok := c.sigCache.Get(key); ok {
		return sig, nil
	}

	result, err, _ := c.signFlight.Do(key, func() (any, error) {
		if sig, err := c.loadStoredSignature(ctx, key); err != nil {
			return nil, err
		} else if sig != nil {
			return sig, nil
		}
		return c.signAuthorization(ctx, engine, user, normalized, key)
	})
	if err != nil {
		return nil, err
	}
	return result.(*DecryptionSignature), nil
}

// loadStoredSignature returns the persisted authorization under key if it is
// present, well-formed, and unexpired. Expired entries are cache misses, not
// errors; they are invalidated by time, never deleted.
func (c *Client) loadStoredSignature(ctx context.Context, key string) (*DecryptionSignature, error) {
	raw, ok, err := c.storage.GetItem(ctx, key)
	if err != nil {
		return nil, &Error{Kind: KindSignature, Message: "failed to read signature storage", Err: err}
	}
	if !ok {
		return nil, nil
	}

	var sig DecryptionSignature
	if err := json.Unmarshal([]byte(raw), &sig); err != nil {
		c.logger.Debug("discarding unreadable signature entry", zap.String("key", key))
		return nil, nil
	}
	if !sig.ValidAt(time.Now()) {
		return nil, nil
	}

	c.sigCache.Put(key, &sig, sig.ExpiresAt())
	return &sig, nil
}

func (c *Client) signAuthorization(ctx context.Context, engine Engine, user common.Address, normalized []common.Address, key string) (*DecryptionSignature, error) {
	publicKey, privateKey, err := engine.GenerateKeypair()
	if err != nil {
		return nil, &Error{Kind: KindSignature, Message: "failed to generate keypair", Err: err}
	}

	startTimestamp := time.Now().Unix()
	durationDays := c.cfg.signatureDuration()
	typedData := c.decryptionTypedData(publicKey, normalized, startTimestamp, durationDays)

	signatureBytes, err := c.cfg.Signer.SignTypedData(ctx, typedData)
	if err != nil {
		return nil, classify(err, KindSignature, "typed data signing failed")
	}

	sig := &DecryptionSignature{
		Version:           signatureSchemaVersion,
		PublicKey:         publicKey,
		PrivateKey:        privateKey,
		Signature:         hex.EncodeToString(signatureBytes),
		ContractAddresses: normalized,
		UserAddress:       user,
		StartTimestamp:    startTimestamp,
		DurationDays:      durationDays,
	}

	encoded, err := json.Marshal(sig)
	if err != nil {
		return nil, &Error{Kind: KindSignature, Message: "failed to encode signature", Err: err}
	}
	if err := c.storage.SetItem(ctx, key, string(encoded)); err != nil {
		return nil, &Error{Kind: KindSignature, Message: "failed to persist signature", Err: err}
	}

	c.sigCache.Put(key, sig, sig.ExpiresAt())
	return sig, nil
}

// ClearSignature removes the cached authorization for the contract set, both
// in memory and in storage. This is the only path that deletes an entry.
func (c *Client) ClearSignature(ctx context.Context, contractAddresses []common.Address) error {
	if c.cfg.Signer == nil {
		return errConfig("a signer is required for decryption")
	}
	normalized := normalizeAddresses(contractAddresses)
	key := signatureCacheKey(c.cfg.ChainID, c.cfg.Signer.Address(), normalized)
	c.sigCache.Delete(key)
	if err := c.storage.RemoveItem(ctx, key); err != nil {
		return &Error{Kind: KindSignature, Message: "failed to remove signature", Err: err}
	}
	return nil
}
