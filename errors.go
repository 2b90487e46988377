// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind is the machine-readable classification of an Error.
type ErrorKind string

const (
	KindConfig        ErrorKind = "config"
	KindInstance      ErrorKind = "instance"
	KindEncryption    ErrorKind = "encryption"
	KindDecryption    ErrorKind = "decryption"
	KindSignature     ErrorKind = "signature"
	KindNetwork       ErrorKind = "network"
	KindAbort         ErrorKind = "abort"
	KindWorker        ErrorKind = "worker"
	KindWorkerTimeout ErrorKind = "worker_timeout"
)

// Error is the typed error returned by every public operation. Callers never
// see a raw transport or engine failure; the cause is wrapped and reachable
// through errors.Unwrap.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fhe %s error: %s: %s", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("fhe %s error: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause, if any
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a typed error wrapping an optional cause
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func errConfig(format string, args ...any) *Error {
	return &Error{Kind: KindConfig, Message: fmt.Sprintf(format, args...)}
}

func errInstance(message string, cause error) *Error {
	return &Error{Kind: KindInstance, Message: message, Err: cause}
}

func errAbort(cause error) *Error {
	return &Error{Kind: KindAbort, Message: "operation aborted", Err: cause}
}

// IsKind reports whether err or any error in its chain is an *Error of the
// given kind.
func IsKind(err error, kind ErrorKind) bool {
	for err != nil {
		var typed *Error
		if errors.As(err, &typed) {
			if typed.Kind == kind {
				return true
			}
			err = typed.Err
			continue
		}
		return false
	}
	return false
}

// classify wraps err as an *Error of the given kind unless it is already
// typed, in which case the original classification is preserved. Context
// cancellation always classifies as an abort.
func classify(err error, kind ErrorKind, message string) *Error {
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errAbort(err)
	}
	return &Error{Kind: kind, Message: message, Err: err}
}
