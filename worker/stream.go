// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package worker

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/vmihailenco/msgpack/v5"
)

// MaxFrameSize bounds a single envelope on the wire.
const MaxFrameSize = 16 * 1024 * 1024

var _ Transport = (*StreamTransport)(nil)

// StreamTransport is the out-of-process transport variant: envelopes are
// msgpack-encoded and framed with a 4-byte big-endian length prefix over a
// byte stream (a pipe to a worker process, a local socket).
type StreamTransport struct {
	conn io.ReadWriteCloser

	writeMu sync.Mutex
	closed  atomic.Bool

	mu      sync.Mutex
	started bool
}

// NewStreamTransport wraps a byte stream connected to a worker process
func NewStreamTransport(conn io.ReadWriteCloser) *StreamTransport {
	return &StreamTransport{conn: conn}
}

// Send frames and writes one envelope
func (t *StreamTransport) Send(env Envelope) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}

	data, err := msgpack.Marshal(&env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	if len(data) > MaxFrameSize {
		return fmt.Errorf("envelope size %d exceeds maximum %d", len(data), MaxFrameSize)
	}

	frame := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(frame[0:4], uint32(len(data)))
	copy(frame[4:], data)

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.conn.Write(frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// Start reads frames until the stream fails or is closed. Calling Start on a
// live transport that is already reading is a no-op, so a failed init
// handshake can be retried over the same transport.
func (t *StreamTransport) Start(onMessage func(Envelope), onError func(error)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed.Load() {
		return ErrTransportClosed
	}
	if t.started {
		return nil
	}
	t.started = true

	go func() {
		header := make([]byte, 4)
		for {
			if _, err := io.ReadFull(t.conn, header); err != nil {
				t.readFailed(onError, err)
				return
			}
			size := binary.BigEndian.Uint32(header)
			if size > MaxFrameSize {
				t.readFailed(onError, fmt.Errorf("frame size %d exceeds maximum %d", size, MaxFrameSize))
				return
			}

			data := make([]byte, size)
			if _, err := io.ReadFull(t.conn, data); err != nil {
				t.readFailed(onError, err)
				return
			}

			var env Envelope
			if err := msgpack.Unmarshal(data, &env); err != nil {
				t.readFailed(onError, fmt.Errorf("failed to unmarshal envelope: %w", err))
				return
			}
			onMessage(env)
		}
	}()
	return nil
}

func (t *StreamTransport) readFailed(onError func(error), err error) {
	if t.closed.Load() {
		onError(ErrTransportClosed)
		return
	}
	onError(err)
}

// Close tears the stream down
func (t *StreamTransport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	return t.conn.Close()
}
