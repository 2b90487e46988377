// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package fhe is a client-side runtime for confidential computation against
// a homomorphic-encryption backend. It orchestrates engine instance
// lifecycle, decryption-authorization caching, worker offload, and the
// middleware pipeline around every encrypt/decrypt operation; the cipher
// math itself lives behind the Engine capability.
package fhe

import (
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/luxfi/fhe/cache"
	"github.com/luxfi/fhe/middleware"
	"github.com/luxfi/fhe/worker"
)

// Client is the runtime entry point. All public operations are safe for
// concurrent use; mutable state is limited to single-assignment slots
// guarded by the client's lock.
type Client struct {
	cfg     ClientConfig
	logger  *zap.Logger
	storage Storage
	events  *EventBus

	encryptPipeline *middleware.Pipeline
	decryptPipeline *middleware.Pipeline

	mu     sync.RWMutex
	engine Engine
	status InstanceStatus

	createFlight singleflight.Group
	signFlight   singleflight.Group
	sigCache     *cache.TTLCache[string, *DecryptionSignature]

	worker *worker.Bridge
}

// NewClient constructs a client from cfg. The configuration is validated
// eagerly; a missing network is deliberately not an error here (see
// resolveNetwork).
func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	storage := cfg.Storage
	if storage == nil {
		storage = NewMemoryStorage()
	}

	c := &Client{
		cfg:             cfg,
		logger:          logger,
		storage:         storage,
		events:          NewEventBus(),
		encryptPipeline: middleware.NewPipeline(),
		decryptPipeline: middleware.NewPipeline(),
		status:          StatusIdle,
		sigCache:        cache.NewTTLCache[string, *DecryptionSignature](),
	}

	if cfg.Debug {
		c.encryptPipeline.Use(middleware.Logging(logger))
		c.decryptPipeline.Use(middleware.Logging(logger))
	}
	if cfg.Registerer != nil {
		metrics := middleware.NewMetrics(cfg.Registerer)
		c.encryptPipeline.Use(middleware.Observe(metrics))
		c.decryptPipeline.Use(middleware.Observe(metrics))
	}

	return c, nil
}

// Use appends a middleware to the pipeline of the given operation family
func (c *Client) Use(op middleware.Op, m middleware.Middleware) {
	switch op {
	case middleware.OpEncrypt:
		c.encryptPipeline.Use(m)
	case middleware.OpDecrypt:
		c.decryptPipeline.Use(m)
	}
}

// Events exposes the client-owned event bus
func (c *Client) Events() *EventBus {
	return c.events
}

// SetWorker attaches a worker bridge; subsequent encrypt operations are
// offloaded through it instead of running on the engine directly. Passing
// nil detaches the worker.
func (c *Client) SetWorker(bridge *worker.Bridge) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.worker = bridge
}

// ShouldRetry is the default retry predicate: only transport and
// worker-timeout flavored failures are retried.
func ShouldRetry(err error) bool {
	return IsKind(err, KindNetwork) || IsKind(err, KindWorkerTimeout)
}

func (c *Client) workerBridge() *worker.Bridge {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.worker
}

func (c *Client) emitDebug(fields map[string]any) {
	if c.cfg.Debug {
		c.events.Emit(EventDebug, fields)
	}
}
