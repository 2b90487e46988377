// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType classifies an event emitted on the bus.
type EventType string

const (
	EventInstanceStatus   EventType = "instance_status"
	EventOperationSuccess EventType = "operation_success"
	EventOperationError   EventType = "operation_error"
	EventDebug            EventType = "debug"
)

// Event is a passive observability record. Events carry no operation results;
// subscribers cannot influence the operation that emitted them.
type Event struct {
	ID     string
	Type   EventType
	Time   time.Time
	Fields map[string]any
}

// EventBus is a client-owned subscription registry. Emission is synchronous;
// a panicking subscriber is swallowed so observability can never break the
// operation being observed.
type EventBus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[EventType]map[uint64]func(Event)
}

// NewEventBus creates an empty event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subs: make(map[EventType]map[uint64]func(Event)),
	}
}

// Subscribe registers fn for events of the given type and returns the
// function that deregisters it.
func (b *EventBus) Subscribe(t EventType, fn func(Event)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	if b.subs[t] == nil {
		b.subs[t] = make(map[uint64]func(Event))
	}
	b.subs[t][id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[t], id)
	}
}

// Emit delivers an event to every subscriber of its type
func (b *EventBus) Emit(t EventType, fields map[string]any) {
	b.mu.RLock()
	fns := make([]func(Event), 0, len(b.subs[t]))
	for _, fn := range b.subs[t] {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	if len(fns) == 0 {
		return
	}

	event := Event{
		ID:     uuid.NewString(),
		Type:   t,
		Time:   time.Now(),
		Fields: fields,
	}
	for _, fn := range fns {
		deliver(fn, event)
	}
}

func deliver(fn func(Event), event Event) {
	defer func() {
		_ = recover()
	}()
	fn(event)
}
