// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/luxfi/fhe/middleware"
)

// DecryptRequest names one handle to decrypt. Handles are opaque ciphertext
// references scoped to a contract; the (handle, contract) pair is the unit
// of identity.
type DecryptRequest struct {
	Handle          common.Hash
	ContractAddress common.Address
}

func validateDecryptRequests(requests []DecryptRequest) error {
	if len(requests) == 0 {
		return errConfig("no decrypt requests")
	}
	for i, req := range requests {
		if req.Handle == (common.Hash{}) {
			return errConfig("request %d: handle is required", i)
		}
		if req.ContractAddress == (common.Address{}) {
			return errConfig("request %d: contract address is required", i)
		}
	}
	return nil
}

// requestAddressUnion collects the distinct contract addresses across the
// request set. The union, not the per-request address, keys the decryption
// authorization so one signature covers the whole batch.
func requestAddressUnion(requests []DecryptRequest) []common.Address {
	addrs := make([]common.Address, len(requests))
	for i, req := range requests {
		addrs[i] = req.ContractAddress
	}
	return normalizeAddresses(addrs)
}

// Decrypt privately decrypts the requested handles under a single
// decryption authorization covering every contract in the request set,
// obtaining and caching the authorization as needed. One engine call serves
// the whole set.
func (c *Client) Decrypt(ctx context.Context, requests ...DecryptRequest) (map[common.Hash]*big.Int, error) {
	if err := validateDecryptRequests(requests); err != nil {
		return nil, err
	}

	mc := &middleware.Context{
		Op:           middleware.OpDecrypt,
		RequestCount: len(requests),
		Timestamp:    time.Now(),
	}

	result, err := c.decryptPipeline.Execute(ctx, mc, func(ctx context.Context, _ *middleware.Context) (any, error) {
		return c.doDecrypt(ctx, requests)
	})
	if err != nil {
		typed := classify(err, KindDecryption, "decryption failed")
		c.events.Emit(EventOperationError, map[string]any{
			"op":       string(middleware.OpDecrypt),
			"requests": len(requests),
			"kind":     string(typed.Kind),
		})
		return nil, typed
	}

	c.events.Emit(EventOperationSuccess, map[string]any{
		"op":       string(middleware.OpDecrypt),
		"requests": len(requests),
	})
	return result.(map[common.Hash]*big.Int), nil
}

func (c *Client) doDecrypt(ctx context.Context, requests []DecryptRequest) (map[common.Hash]*big.Int, error) {
	engine, err := c.EnsureInstance(ctx)
	if err != nil {
		return nil, err
	}

	sig, err := c.loadOrSign(ctx, engine, requestAddressUnion(requests))
	if err != nil {
		return nil, err
	}

	values, err := engine.UserDecrypt(ctx, UserDecryptRequest{
		Requests:          requests,
		PrivateKey:        sig.PrivateKey,
		PublicKey:         sig.PublicKey,
		Signature:         sig.Signature,
		ContractAddresses: sig.ContractAddresses,
		UserAddress:       sig.UserAddress,
		StartTimestamp:    sig.StartTimestamp,
		DurationDays:      sig.DurationDays,
	})
	if err != nil {
		return nil, classify(err, KindDecryption, "engine decryption failed")
	}
	return values, nil
}

// BatchDecrypt decrypts heterogeneous requests spanning multiple contracts.
// It is Decrypt with the variadic shape flattened: one authorization over
// the address union, one engine call.
func (c *Client) BatchDecrypt(ctx context.Context, requests []DecryptRequest) (map[common.Hash]*big.Int, error) {
	return c.Decrypt(ctx, requests...)
}

// PublicDecrypt decrypts publicly decryptable handles. It requires no
// authorization but only engines with the PublicDecrypter capability
// support it.
func (c *Client) PublicDecrypt(ctx context.Context, requests ...DecryptRequest) (map[common.Hash]*big.Int, error) {
	if err := validateDecryptRequests(requests); err != nil {
		return nil, err
	}

	mc := &middleware.Context{
		Op:           middleware.OpDecrypt,
		RequestCount: len(requests),
		Timestamp:    time.Now(),
	}

	result, err := c.decryptPipeline.Execute(ctx, mc, func(ctx context.Context, _ *middleware.Context) (any, error) {
		engine, err := c.EnsureInstance(ctx)
		if err != nil {
			return nil, err
		}
		decrypter, ok := engine.(PublicDecrypter)
		if !ok {
			return nil, &Error{Kind: KindDecryption, Message: "engine does not support public decryption"}
		}
		values, err := decrypter.PublicDecrypt(ctx, requests)
		if err != nil {
			return nil, classify(err, KindDecryption, "engine public decryption failed")
		}
		return values, nil
	})
	if err != nil {
		typed := classify(err, KindDecryption, "public decryption failed")
		c.events.Emit(EventOperationError, map[string]any{
			"op":       string(middleware.OpDecrypt),
			"public":   true,
			"requests": len(requests),
			"kind":     string(typed.Kind),
		})
		return nil, typed
	}

	c.events.Emit(EventOperationSuccess, map[string]any{
		"op":       string(middleware.OpDecrypt),
		"public":   true,
		"requests": len(requests),
	})
	return result.(map[common.Hash]*big.Int), nil
}
