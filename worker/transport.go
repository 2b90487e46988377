// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package worker

import "errors"

var (
	// ErrTransportClosed is reported when a transport is used after, or
	// torn down by, Close.
	ErrTransportClosed = errors.New("worker transport closed")
)

// Transport moves envelopes between the host and one worker execution
// context. The variant is chosen explicitly at construction; the bridge and
// the serve loop never inspect which one they run on.
type Transport interface {
	// Send delivers an envelope to the peer. The envelope is owned by the
	// transport once Send returns.
	Send(env Envelope) error
	// Start begins delivering inbound envelopes to onMessage. A transport
	// failure is reported once to onError, after which no further messages
	// are delivered. Start may be called at most once.
	Start(onMessage func(Envelope), onError func(error)) error
	// Close tears the transport down. Pending deliveries are dropped.
	Close() error
}
