// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package worker

import (
	"sync"
)

var _ Transport = (*ThreadTransport)(nil)

// threadLink is the shared teardown state of a transport pair. Closing
// either end stops both pumps.
type threadLink struct {
	done chan struct{}
	once sync.Once
}

func (l *threadLink) close() {
	l.once.Do(func() {
		close(l.done)
	})
}

// ThreadTransport is the in-process transport variant: the worker runs on a
// goroutine and envelopes cross by value over channels, so payload ownership
// transfers with the message and no memory is shared.
type ThreadTransport struct {
	link *threadLink
	out  chan Envelope
	in   chan Envelope

	mu      sync.Mutex
	started bool
}

// NewThreadPair creates the two linked ends of an in-process transport.
// The host end belongs to the bridge, the worker end to the serve loop.
func NewThreadPair(buffer int) (host, worker *ThreadTransport) {
	link := &threadLink{done: make(chan struct{})}
	a := make(chan Envelope, buffer)
	b := make(chan Envelope, buffer)
	host = &ThreadTransport{link: link, out: a, in: b}
	worker = &ThreadTransport{link: link, out: b, in: a}
	return host, worker
}

// Send delivers an envelope to the peer end
func (t *ThreadTransport) Send(env Envelope) error {
	select {
	case t.out <- env:
		return nil
	case <-t.link.done:
		return ErrTransportClosed
	}
}

// Start pumps inbound envelopes to onMessage until the link closes. Calling
// Start on a live transport that is already pumping is a no-op, so a failed
// init handshake can be retried over the same transport.
func (t *ThreadTransport) Start(onMessage func(Envelope), onError func(error)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	select {
	case <-t.link.done:
		return ErrTransportClosed
	default:
	}
	if t.started {
		return nil
	}
	t.started = true

	go func() {
		for {
			select {
			case env := <-t.in:
				onMessage(env)
			case <-t.link.done:
				onError(ErrTransportClosed)
				return
			}
		}
	}()
	return nil
}

// Close tears down both ends of the pair
func (t *ThreadTransport) Close() error {
	t.link.close()
	return nil
}
