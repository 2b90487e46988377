// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package middleware implements the chain-of-responsibility pipeline wrapped
// around every encrypt and decrypt operation, together with the built-in
// retry, dedupe, rate-limit, logging, and metrics policies.
package middleware

import (
	"context"
	"fmt"
	"time"
)

// Op identifies which operation family a context belongs to.
type Op string

const (
	OpEncrypt Op = "encrypt"
	OpDecrypt Op = "decrypt"
)

// Context describes one operation flowing through a pipeline. It carries
// enough shape to derive a stable dedupe/rate-limit key but none of the
// operation's payload.
type Context struct {
	Op              Op
	ContractAddress string
	UserAddress     string
	RequestCount    int
	Timestamp       time.Time
}

// Key returns the stable identity of the operation used by the dedupe
// policy. Encrypt operations are identified by their contract and user;
// decrypt operations by their request count and timestamp.
func (c *Context) Key() string {
	if c.Op == OpEncrypt {
		return fmt.Sprintf("%s:%s:%s", c.Op, c.ContractAddress, c.UserAddress)
	}
	return fmt.Sprintf("%s:%d:%d", c.Op, c.RequestCount, c.Timestamp.UnixMilli())
}

// Handler is the innermost operation or a middleware-wrapped continuation.
type Handler func(ctx context.Context, mc *Context) (any, error)

// Middleware wraps a handler, returning a new handler.
type Middleware func(next Handler) Handler

// Pipeline is an ordered middleware chain. The first middleware registered
// is outermost: it runs first on the way in and last on the way out.
// Registration is not synchronized with execution; register middlewares
// before issuing operations.
type Pipeline struct {
	middlewares []Middleware
}

// NewPipeline creates an empty pipeline
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// Use appends a middleware to the chain
func (p *Pipeline) Use(m Middleware) {
	p.middlewares = append(p.middlewares, m)
}

// Execute runs mc through the chain, invoking final once no middleware
// remains.
func (p *Pipeline) Execute(ctx context.Context, mc *Context, final Handler) (any, error) {
	handler := final
	for i := len(p.middlewares) - 1; i >= 0; i-- {
		handler = p.middlewares[i](handler)
	}
	return handler(ctx, mc)
}
