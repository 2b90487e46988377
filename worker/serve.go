// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package worker

import (
	"context"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// Cipher is the capability the worker executes jobs against. It is the
// worker-side face of the cipher engine; the heavy math lives behind it.
type Cipher interface {
	Encrypt(ctx context.Context, job EncryptJob) (*EncryptResult, error)
	Decrypt(ctx context.Context, job DecryptJob) (*DecryptResult, error)
}

// Serve runs the worker side of the protocol: it answers init with ready and
// executes encrypt/decrypt jobs against the cipher, each on its own
// goroutine so a slow job never blocks the others. Serve returns when ctx is
// canceled or the transport fails, closing the transport on the way out.
func Serve(ctx context.Context, transport Transport, cipher Cipher, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	failed := make(chan error, 1)
	onError := func(err error) {
		select {
		case failed <- err:
		default:
		}
	}

	onMessage := func(env Envelope) {
		switch env.Type {
		case TypeInit:
			if err := transport.Send(Envelope{Type: TypeReady}); err != nil {
				logger.Debug("failed to acknowledge init", zap.Error(err))
			}
		case TypeEncrypt:
			go serveEncrypt(ctx, transport, cipher, env, logger)
		case TypeDecrypt:
			go serveDecrypt(ctx, transport, cipher, env, logger)
		default:
			logger.Debug("ignoring unknown request", zap.String("type", env.Type), zap.Uint64("id", env.ID))
		}
	}

	if err := transport.Start(onMessage, onError); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		_ = transport.Close()
		return ctx.Err()
	case err := <-failed:
		_ = transport.Close()
		return err
	}
}

func serveEncrypt(ctx context.Context, transport Transport, cipher Cipher, env Envelope, logger *zap.Logger) {
	var job EncryptJob
	if err := msgpack.Unmarshal(env.Payload, &job); err != nil {
		reply(transport, Envelope{Type: TypeError, ID: env.ID, Error: fmt.Sprintf("malformed encrypt job: %s", err)}, logger)
		return
	}

	result, err := cipher.Encrypt(ctx, job)
	if err != nil {
		reply(transport, Envelope{Type: TypeError, ID: env.ID, Error: err.Error()}, logger)
		return
	}

	payload, err := msgpack.Marshal(result)
	if err != nil {
		reply(transport, Envelope{Type: TypeError, ID: env.ID, Error: fmt.Sprintf("failed to marshal encrypt result: %s", err)}, logger)
		return
	}
	reply(transport, Envelope{Type: TypeEncryptResponse, ID: env.ID, Payload: payload}, logger)
}

func serveDecrypt(ctx context.Context, transport Transport, cipher Cipher, env Envelope, logger *zap.Logger) {
	var job DecryptJob
	if err := msgpack.Unmarshal(env.Payload, &job); err != nil {
		reply(transport, Envelope{Type: TypeError, ID: env.ID, Error: fmt.Sprintf("malformed decrypt job: %s", err)}, logger)
		return
	}

	result, err := cipher.Decrypt(ctx, job)
	if err != nil {
		reply(transport, Envelope{Type: TypeError, ID: env.ID, Error: err.Error()}, logger)
		return
	}

	payload, err := msgpack.Marshal(result)
	if err != nil {
		reply(transport, Envelope{Type: TypeError, ID: env.ID, Error: fmt.Sprintf("failed to marshal decrypt result: %s", err)}, logger)
		return
	}
	reply(transport, Envelope{Type: TypeDecryptResponse, ID: env.ID, Payload: payload}, logger)
}

func reply(transport Transport, env Envelope, logger *zap.Logger) {
	if err := transport.Send(env); err != nil {
		logger.Debug("failed to send worker reply",
			zap.Uint64("id", env.ID),
			zap.String("type", env.Type),
			zap.Error(err),
		)
	}
}
