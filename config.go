// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// DefaultSignatureDurationDays is the lifetime of a decryption authorization
// when the caller does not choose one.
const DefaultSignatureDurationDays = 365

// NetworkDescriptor names the network an engine instance talks to: either a
// JSON-RPC URL to dial or a caller-supplied transport. The variant is fixed
// at configuration time; nothing downstream inspects the value again.
type NetworkDescriptor struct {
	url       string
	transport NetworkTransport
}

// NetworkURL describes a network by its JSON-RPC endpoint
func NetworkURL(url string) NetworkDescriptor {
	return NetworkDescriptor{url: url}
}

// NetworkVia describes a network by a caller-supplied transport
func NetworkVia(transport NetworkTransport) NetworkDescriptor {
	return NetworkDescriptor{transport: transport}
}

// IsZero reports whether no network was configured
func (d NetworkDescriptor) IsZero() bool {
	return d.url == "" && d.transport == nil
}

// ClientConfig configures a client. It is immutable after NewClient returns.
type ClientConfig struct {
	// Network is the engine's network. It may be left zero when the client
	// is constructed before a network is known (server rendering); in that
	// case instance creation fails until MockChains covers ChainID.
	Network NetworkDescriptor

	// ChainID identifies the chain decryption authorizations are scoped to.
	ChainID uint64

	// MockChains maps chain ids to local RPC URLs for development setups
	// without a live provider. When Network is zero and MockChains has an
	// entry for ChainID, that URL is used as the network.
	MockChains map[uint64]string

	// EngineFactory constructs the cipher engine. Required.
	EngineFactory EngineFactory

	// Signer authorizes private decryption. Required for Decrypt.
	Signer Signer

	// Storage persists decryption signatures. Defaults to MemoryStorage.
	Storage Storage

	// VerifyingContract, when set, is bound into the EIP-712 domain of
	// decryption authorizations.
	VerifyingContract common.Address

	// SignatureDurationDays overrides DefaultSignatureDurationDays.
	SignatureDurationDays int64

	// Logger defaults to a nop logger.
	Logger *zap.Logger

	// Registerer, when set, enables pipeline metrics.
	Registerer prometheus.Registerer

	// Debug enables debug events and the logging middleware.
	Debug bool
}

func (cfg *ClientConfig) validate() error {
	if cfg.EngineFactory == nil {
		return errConfig("engine factory is required")
	}
	if cfg.SignatureDurationDays < 0 {
		return errConfig("signature duration must not be negative")
	}
	for chainID, url := range cfg.MockChains {
		if url == "" {
			return errConfig("mock chain %d has an empty RPC URL", chainID)
		}
	}
	return nil
}

func (cfg *ClientConfig) signatureDuration() int64 {
	if cfg.SignatureDurationDays > 0 {
		return cfg.SignatureDurationDays
	}
	return DefaultSignatureDurationDays
}
