// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/fhe/middleware"
	"github.com/luxfi/fhe/worker"
)

// ValueType tags one plaintext value in an encrypt request.
type ValueType uint8

const (
	ValueTypeBool ValueType = iota
	ValueTypeUint8
	ValueTypeUint16
	ValueTypeUint32
	ValueTypeUint64
	ValueTypeUint128
	ValueTypeUint256
	ValueTypeAddress
)

func (t ValueType) bits() uint {
	switch t {
	case ValueTypeUint8:
		return 8
	case ValueTypeUint16:
		return 16
	case ValueTypeUint32:
		return 32
	case ValueTypeUint64:
		return 64
	case ValueTypeUint128:
		return 128
	default:
		return 256
	}
}

// EncryptValue is one plaintext value to encrypt. Exactly one of the carrier
// fields is meaningful, selected by Type.
type EncryptValue struct {
	Type    ValueType
	Bool    bool
	Uint    *uint256.Int
	Address common.Address
}

// Bool wraps a boolean plaintext
func Bool(v bool) EncryptValue {
	return EncryptValue{Type: ValueTypeBool, Bool: v}
}

// Uint8 wraps an 8-bit plaintext
func Uint8(v uint8) EncryptValue {
	return EncryptValue{Type: ValueTypeUint8, Uint: uint256.NewInt(uint64(v))}
}

// Uint16 wraps a 16-bit plaintext
func Uint16(v uint16) EncryptValue {
	return EncryptValue{Type: ValueTypeUint16, Uint: uint256.NewInt(uint64(v))}
}

// Uint32 wraps a 32-bit plaintext
func Uint32(v uint32) EncryptValue {
	return EncryptValue{Type: ValueTypeUint32, Uint: uint256.NewInt(uint64(v))}
}

// Uint64 wraps a 64-bit plaintext
func Uint64(v uint64) EncryptValue {
	return EncryptValue{Type: ValueTypeUint64, Uint: uint256.NewInt(v)}
}

// Uint128 wraps a 128-bit plaintext
func Uint128(v *uint256.Int) EncryptValue {
	return EncryptValue{Type: ValueTypeUint128, Uint: v}
}

// Uint256 wraps a 256-bit plaintext
func Uint256(v *uint256.Int) EncryptValue {
	return EncryptValue{Type: ValueTypeUint256, Uint: v}
}

// AddressValue wraps an address plaintext
func AddressValue(v common.Address) EncryptValue {
	return EncryptValue{Type: ValueTypeAddress, Address: v}
}

func (v EncryptValue) validate() error {
	switch v.Type {
	case ValueTypeBool, ValueTypeAddress:
		return nil
	case ValueTypeUint8, ValueTypeUint16, ValueTypeUint32, ValueTypeUint64, ValueTypeUint128, ValueTypeUint256:
		if v.Uint == nil {
			return errConfig("uint value is nil")
		}
		if uint(v.Uint.BitLen()) > v.Type.bits() {
			return errConfig("value %s does not fit in %d bits", v.Uint, v.Type.bits())
		}
		return nil
	default:
		return errConfig("unknown value type %d", v.Type)
	}
}

// EncryptRequest asks for a batch of values to be encrypted for a contract
// on behalf of a user.
type EncryptRequest struct {
	ContractAddress common.Address
	UserAddress     common.Address
	Values          []EncryptValue
}

func (r *EncryptRequest) validate() error {
	if r.ContractAddress == (common.Address{}) {
		return errConfig("contract address is required")
	}
	if r.UserAddress == (common.Address{}) {
		return errConfig("user address is required")
	}
	if len(r.Values) == 0 {
		return errConfig("encrypt request has no values")
	}
	for i, v := range r.Values {
		if err := v.validate(); err != nil {
			return errConfig("value %d: %s", i, err.(*Error).Message)
		}
	}
	return nil
}

// EncryptResult carries the ciphertext handles and the input proof produced
// for one encrypt request, in value order.
type EncryptResult struct {
	Handles    [][]byte
	InputProof []byte
}

// Encrypt encrypts the request's values, through the worker bridge when one
// is attached, otherwise on the engine's input builder. Input validation
// fails synchronously before any asynchronous work begins.
func (c *Client) Encrypt(ctx context.Context, req EncryptRequest) (*EncryptResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	mc := &middleware.Context{
		Op:              middleware.OpEncrypt,
		ContractAddress: req.ContractAddress.Hex(),
		UserAddress:     req.UserAddress.Hex(),
		Timestamp:       time.Now(),
	}

	result, err := c.encryptPipeline.Execute(ctx, mc, func(ctx context.Context, _ *middleware.Context) (any, error) {
		return c.doEncrypt(ctx, req)
	})
	if err != nil {
		typed := classify(err, KindEncryption, "encryption failed")
		c.events.Emit(EventOperationError, map[string]any{
			"op":       string(middleware.OpEncrypt),
			"contract": req.ContractAddress.Hex(),
			"kind":     string(typed.Kind),
		})
		return nil, typed
	}

	c.events.Emit(EventOperationSuccess, map[string]any{
		"op":       string(middleware.OpEncrypt),
		"contract": req.ContractAddress.Hex(),
		"values":   len(req.Values),
	})
	return result.(*EncryptResult), nil
}

func (c *Client) doEncrypt(ctx context.Context, req EncryptRequest) (*EncryptResult, error) {
	if bridge := c.workerBridge(); bridge != nil {
		c.emitDebug(map[string]any{
			"step":     "worker_offload",
			"contract": req.ContractAddress.Hex(),
			"values":   len(req.Values),
		})
		return c.encryptViaWorker(ctx, bridge, req)
	}

	engine, err := c.EnsureInstance(ctx)
	if err != nil {
		return nil, err
	}

	builder := engine.CreateEncryptedInput(req.ContractAddress, req.UserAddress)
	for _, v := range req.Values {
		switch v.Type {
		case ValueTypeBool:
			builder.AddBool(v.Bool)
		case ValueTypeUint8:
			builder.Add8(uint8(v.Uint.Uint64()))
		case ValueTypeUint16:
			builder.Add16(uint16(v.Uint.Uint64()))
		case ValueTypeUint32:
			builder.Add32(uint32(v.Uint.Uint64()))
		case ValueTypeUint64:
			builder.Add64(v.Uint.Uint64())
		case ValueTypeUint128:
			builder.Add128(v.Uint)
		case ValueTypeUint256:
			builder.Add256(v.Uint)
		case ValueTypeAddress:
			builder.AddAddress(v.Address)
		}
	}
	return builder.Encrypt(ctx)
}

func (c *Client) encryptViaWorker(ctx context.Context, bridge *worker.Bridge, req EncryptRequest) (*EncryptResult, error) {
	job := worker.EncryptJob{
		ContractAddress: req.ContractAddress.Hex(),
		UserAddress:     req.UserAddress.Hex(),
		Values:          make([]worker.EncodedValue, len(req.Values)),
	}
	for i, v := range req.Values {
		job.Values[i] = encodeValue(v)
	}

	result, err := bridge.Encrypt(ctx, job)
	if err != nil {
		return nil, classifyWorkerErr(err)
	}
	return &EncryptResult{Handles: result.Handles, InputProof: result.InputProof}, nil
}

func encodeValue(v EncryptValue) worker.EncodedValue {
	switch v.Type {
	case ValueTypeBool:
		data := []byte{0}
		if v.Bool {
			data[0] = 1
		}
		return worker.EncodedValue{Kind: worker.ValueBool, Data: data}
	case ValueTypeAddress:
		return worker.EncodedValue{Kind: worker.ValueAddress, Data: v.Address.Bytes()}
	case ValueTypeUint8:
		return worker.EncodedValue{Kind: worker.ValueUint8, Data: v.Uint.Bytes()}
	case ValueTypeUint16:
		return worker.EncodedValue{Kind: worker.ValueUint16, Data: v.Uint.Bytes()}
	case ValueTypeUint32:
		return worker.EncodedValue{Kind: worker.ValueUint32, Data: v.Uint.Bytes()}
	case ValueTypeUint64:
		return worker.EncodedValue{Kind: worker.ValueUint64, Data: v.Uint.Bytes()}
	case ValueTypeUint128:
		return worker.EncodedValue{Kind: worker.ValueUint128, Data: v.Uint.Bytes()}
	default:
		return worker.EncodedValue{Kind: worker.ValueUint256, Data: v.Uint.Bytes()}
	}
}

func classifyWorkerErr(err error) *Error {
	switch {
	case errors.Is(err, worker.ErrTimeout):
		return &Error{Kind: KindWorkerTimeout, Message: "worker request timed out", Err: err}
	default:
		return classify(err, KindWorker, "worker operation failed")
	}
}

// BatchEncrypt runs the requests concurrently and returns results in input
// order. Semantics are fail-fast: the first failure cancels the remaining
// work and is returned alone; no partial results are exposed.
func (c *Client) BatchEncrypt(ctx context.Context, reqs []EncryptRequest) ([]*EncryptResult, error) {
	if len(reqs) == 0 {
		return nil, errConfig("no encrypt requests")
	}
	for i := range reqs {
		if err := reqs[i].validate(); err != nil {
			return nil, errConfig("request %d: %s", i, err.(*Error).Message)
		}
	}

	results := make([]*EncryptResult, len(reqs))
	group, gctx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		group.Go(func() error {
			result, err := c.Encrypt(gctx, req)
			if err != nil {
				return fmt.Errorf("request %d: %w", i, err)
			}
			results[i] = result
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, classify(err, KindEncryption, "batch encryption failed")
	}
	return results, nil
}
