// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"context"
)

// InstanceStatus tracks engine instance creation. Transitions run forward
// (idle, loading, initializing, initialized) with error as the failure
// terminal; ClearInstance resets to idle.
type InstanceStatus string

const (
	StatusIdle         InstanceStatus = "idle"
	StatusLoading      InstanceStatus = "loading"
	StatusInitializing InstanceStatus = "initializing"
	StatusInitialized  InstanceStatus = "initialized"
	StatusError        InstanceStatus = "error"
)

// CreateInstanceOptions tunes one CreateInstance call.
type CreateInstanceOptions struct {
	// Force discards any cached instance and creates a fresh one.
	Force bool
	// OnStatusChange observes each status transition of this creation.
	OnStatusChange func(InstanceStatus)
}

// Status returns the current instance status
func (c *Client) Status() InstanceStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Instance returns the cached engine, if any
func (c *Client) Instance() Engine {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.engine
}

// CreateInstance returns the cached engine or creates one. Concurrent calls
// while a creation is running share the single in-flight outcome. A caller
// whose context is canceled receives an AbortError; the shared creation
// itself is only abandoned if the engine factory observes the cancellation,
// in which case nothing is cached.
func (c *Client) CreateInstance(ctx context.Context, opts CreateInstanceOptions) (Engine, error) {
	if !opts.Force {
		if engine := c.Instance(); engine != nil {
			return engine, nil
		}
	}

	engineCfg, err := c.resolveNetwork()
	if err != nil {
		return nil, err
	}

	resultCh := c.createFlight.DoChan("instance", func() (any, error) {
		return c.createEngine(ctx, engineCfg, opts)
	})

	select {
	case <-ctx.Done():
		// The creation keeps running for any other waiters; this caller
		// just stops waiting and its result is discarded.
		return nil, errAbort(ctx.Err())
	case result := <-resultCh:
		if result.Err != nil {
			return nil, result.Err
		}
		return result.Val.(Engine), nil
	}
}

func (c *Client) createEngine(ctx context.Context, engineCfg EngineConfig, opts CreateInstanceOptions) (Engine, error) {
	c.setStatus(StatusLoading, opts.OnStatusChange)

	if engineCfg.Transport == nil && engineCfg.NetworkURL != "" {
		transport, err := DialTransport(ctx, engineCfg.NetworkURL)
		if err != nil {
			// Dial failures are creation failures; the network cause stays
			// reachable through the error chain.
			return nil, c.failCreation(errInstance("failed to dial network", err), opts)
		}
		engineCfg.Transport = transport
	}

	c.setStatus(StatusInitializing, opts.OnStatusChange)

	engine, err := c.cfg.EngineFactory(ctx, engineCfg)
	if err != nil {
		return nil, c.failCreation(err, opts)
	}

	c.mu.Lock()
	c.engine = engine
	c.status = StatusInitialized
	c.mu.Unlock()
	c.notifyStatus(StatusInitialized, opts.OnStatusChange)
	return engine, nil
}

// failCreation classifies a creation failure and records the terminal
// status. Cancellation is not recorded as an error state: a later call
// should retry from idle.
func (c *Client) failCreation(err error, opts CreateInstanceOptions) error {
	typed := classify(err, KindInstance, "engine creation failed")
	if typed.Kind == KindAbort {
		c.setStatus(StatusIdle, opts.OnStatusChange)
	} else {
		c.setStatus(StatusError, opts.OnStatusChange)
	}
	return typed
}

// EnsureInstance returns the cached engine, creating one with default
// options if needed.
func (c *Client) EnsureInstance(ctx context.Context) (Engine, error) {
	return c.CreateInstance(ctx, CreateInstanceOptions{})
}

// ClearInstance drops the cached engine and resets status to idle. Cached
// decryption signatures are kept; they are scoped to the chain, not the
// instance.
func (c *Client) ClearInstance() {
	c.mu.Lock()
	c.engine = nil
	c.status = StatusIdle
	c.mu.Unlock()
	c.notifyStatus(StatusIdle, nil)
}

func (c *Client) setStatus(status InstanceStatus, observer func(InstanceStatus)) {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
	c.notifyStatus(status, observer)
}

func (c *Client) notifyStatus(status InstanceStatus, observer func(InstanceStatus)) {
	if observer != nil {
		observer(status)
	}
	c.events.Emit(EventInstanceStatus, map[string]any{"status": string(status)})
}
