// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// DefaultRequestTimeout bounds how long the bridge waits for one response.
const DefaultRequestTimeout = 60 * time.Second

var (
	// ErrTimeout is returned when a request receives no response within its
	// timeout. The late response, if it ever arrives, is dropped.
	ErrTimeout = errors.New("worker request timed out")
	// ErrTerminated is returned for requests pending when the bridge or its
	// transport dies, and for any use of the bridge afterwards.
	ErrTerminated = errors.New("worker terminated")
	// ErrRemote carries an error message produced inside the worker.
	ErrRemote = errors.New("worker error")
)

type bridgeState uint8

const (
	stateCreated bridgeState = iota
	stateInitializing
	stateInitialized
	stateTerminated
)

type outcome struct {
	payload msgpack.RawMessage
	err     error
}

type pendingRequest struct {
	ch    chan outcome
	timer *time.Timer
}

// BridgeConfig configures a Bridge.
type BridgeConfig struct {
	Transport Transport
	// RequestTimeout defaults to DefaultRequestTimeout when zero.
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

// Bridge correlates asynchronous requests to responses across a worker
// boundary. Requests are independently concurrent: each carries its own
// session-unique id and its own timeout, and none blocks another. Responses
// may arrive in any order.
type Bridge struct {
	transport Transport
	timeout   time.Duration
	logger    *zap.Logger

	nextID atomic.Uint64

	mu       sync.Mutex
	state    bridgeState
	initDone chan struct{}
	initErr  error
	pending  map[uint64]*pendingRequest
}

// NewBridge creates a bridge over the given transport. The bridge is not
// usable until Init succeeds, although Encrypt and Decrypt trigger
// initialization transparently.
func NewBridge(cfg BridgeConfig) *Bridge {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		transport: cfg.Transport,
		timeout:   timeout,
		logger:    logger,
		pending:   make(map[uint64]*pendingRequest),
	}
}

// Initialized reports whether the worker has acknowledged init
func (b *Bridge) Initialized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == stateInitialized
}

// Init starts the transport and performs the init handshake. Concurrent and
// repeated calls share one outstanding handshake; a caller whose context
// expires stops waiting, but the handshake itself continues and later
// callers observe its outcome.
func (b *Bridge) Init(ctx context.Context) error {
	b.mu.Lock()
	switch b.state {
	case stateInitialized:
		b.mu.Unlock()
		return nil
	case stateTerminated:
		b.mu.Unlock()
		return ErrTerminated
	case stateInitializing:
		done := b.initDone
		b.mu.Unlock()
		return b.awaitInit(ctx, done)
	}

	b.state = stateInitializing
	b.initDone = make(chan struct{})
	done := b.initDone
	b.mu.Unlock()

	if err := b.transport.Start(b.dispatch, b.transportFailed); err != nil {
		b.finishInit(err)
		return err
	}
	if err := b.transport.Send(Envelope{Type: TypeInit}); err != nil {
		b.finishInit(err)
		return err
	}

	return b.awaitInit(ctx, done)
}

func (b *Bridge) awaitInit(ctx context.Context, done chan struct{}) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initErr
}

// finishInit resolves the outstanding handshake. A failed handshake returns
// the bridge to the created state so init may be attempted again.
func (b *Bridge) finishInit(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != stateInitializing {
		return
	}
	b.initErr = err
	if err == nil {
		b.state = stateInitialized
	} else {
		b.state = stateCreated
	}
	close(b.initDone)
}

// Encrypt offloads an encrypt job to the worker
func (b *Bridge) Encrypt(ctx context.Context, job EncryptJob) (*EncryptResult, error) {
	raw, err := b.request(ctx, TypeEncrypt, job)
	if err != nil {
		return nil, err
	}
	var result EncryptResult
	if err := msgpack.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal encrypt response: %w", err)
	}
	return &result, nil
}

// Decrypt offloads a decrypt job to the worker
func (b *Bridge) Decrypt(ctx context.Context, job DecryptJob) (*DecryptResult, error) {
	raw, err := b.request(ctx, TypeDecrypt, job)
	if err != nil {
		return nil, err
	}
	var result DecryptResult
	if err := msgpack.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypt response: %w", err)
	}
	return &result, nil
}

// Terminate rejects every pending request, closes the transport, and leaves
// the bridge unusable.
func (b *Bridge) Terminate() {
	b.mu.Lock()
	if b.state == stateTerminated {
		b.mu.Unlock()
		return
	}
	if b.state == stateInitializing {
		b.initErr = ErrTerminated
		close(b.initDone)
	}
	b.state = stateTerminated
	orphans := b.takePendingLocked()
	b.mu.Unlock()

	_ = b.transport.Close()
	rejectAll(orphans, ErrTerminated)
}

// request performs one correlated round trip. The request is registered in
// the pending table before it is dispatched so a fast response cannot race
// its own registration.
func (b *Bridge) request(ctx context.Context, msgType string, payload any) (msgpack.RawMessage, error) {
	if err := b.Init(ctx); err != nil {
		return nil, err
	}

	data, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", msgType, err)
	}

	id := b.nextID.Add(1)
	req := &pendingRequest{ch: make(chan outcome, 1)}
	req.timer = time.AfterFunc(b.timeout, func() {
		b.expire(id)
	})

	b.mu.Lock()
	if b.state != stateInitialized {
		b.mu.Unlock()
		req.timer.Stop()
		return nil, ErrTerminated
	}
	b.pending[id] = req
	b.mu.Unlock()

	if err := b.transport.Send(Envelope{Type: msgType, ID: id, Payload: data}); err != nil {
		b.remove(id)
		req.timer.Stop()
		return nil, err
	}

	select {
	case <-ctx.Done():
		b.remove(id)
		req.timer.Stop()
		return nil, ctx.Err()
	case result := <-req.ch:
		return result.payload, result.err
	}
}

// dispatch routes one inbound envelope. Lifecycle messages carry no id and
// resolve the init handshake; everything else is matched against the pending
// table. Unmatched ids are late responses and are dropped.
func (b *Bridge) dispatch(env Envelope) {
	if env.ID == 0 {
		switch env.Type {
		case TypeReady:
			b.finishInit(nil)
		case TypeError:
			b.finishInit(fmt.Errorf("%w: %s", ErrRemote, env.Error))
		default:
			b.logger.Debug("dropping unknown lifecycle message", zap.String("type", env.Type))
		}
		return
	}

	b.mu.Lock()
	req, ok := b.pending[env.ID]
	if ok {
		delete(b.pending, env.ID)
	}
	b.mu.Unlock()
	if !ok {
		b.logger.Debug("dropping response with no pending request",
			zap.Uint64("id", env.ID),
			zap.String("type", env.Type),
		)
		return
	}
	req.timer.Stop()

	switch {
	case env.Type == TypeError:
		req.ch <- outcome{err: fmt.Errorf("%w: %s", ErrRemote, env.Error)}
	case strings.HasSuffix(env.Type, responseSuffix):
		req.ch <- outcome{payload: env.Payload}
	default:
		// Forward-compatible fallback: an id-bearing message of an unknown
		// type resolves with its raw payload.
		req.ch <- outcome{payload: env.Payload}
	}
}

func (b *Bridge) expire(id uint64) {
	b.mu.Lock()
	req, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	b.mu.Unlock()
	if ok {
		req.ch <- outcome{err: ErrTimeout}
	}
}

func (b *Bridge) remove(id uint64) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

// transportFailed handles transport death: the handshake (if outstanding)
// and every pending request fail, and the bridge becomes terminal.
func (b *Bridge) transportFailed(err error) {
	b.mu.Lock()
	if b.state == stateInitializing {
		b.initErr = err
		close(b.initDone)
	}
	alreadyTerminated := b.state == stateTerminated
	b.state = stateTerminated
	orphans := b.takePendingLocked()
	b.mu.Unlock()

	if !alreadyTerminated {
		b.logger.Debug("worker transport failed", zap.Error(err))
	}
	rejectAll(orphans, fmt.Errorf("%w: %v", ErrTerminated, err))
}

func (b *Bridge) takePendingLocked() map[uint64]*pendingRequest {
	orphans := b.pending
	b.pending = make(map[uint64]*pendingRequest)
	return orphans
}

func rejectAll(orphans map[uint64]*pendingRequest, err error) {
	for _, req := range orphans {
		if req.timer != nil {
			req.timer.Stop()
		}
		req.ch <- outcome{err: err}
	}
}
