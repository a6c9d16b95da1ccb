// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package vkapi

import (
	"errors"
	"fmt"
)

// Kind classifies a vkapi error the way the command surface needs to
// decide whether to retry and how to report it to the host.
type Kind string

const (
	KindNetwork   Kind = "network"
	KindDecode    Kind = "decode"
	KindServer    Kind = "server"
	KindCancelled Kind = "cancelled"
	KindInvalid   Kind = "invalid-arguments"
)

// Error wraps an underlying cause with the Kind the command surface and
// retry policy need to act on.
type Error struct {
	Kind Kind
	Op   string // e.g. "board.getComments", "execute"
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ServerError represents the server's own {"error": {...}} payload.
type ServerError struct {
	Code    int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
}

// IsRetryable reports whether the error is a transient network or decode
// failure per §7 retry policy; server errors never retry.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindNetwork || e.Kind == KindDecode
	}
	return false
}

// errorKind returns the Kind label for metrics, falling back to "unknown"
// for errors that did not originate in this package.
func errorKind(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return string(e.Kind)
	}
	return "unknown"
}

func wrapNetwork(op string, err error) error {
	return &Error{Kind: KindNetwork, Op: op, Err: err}
}

func wrapDecode(op string, err error) error {
	return &Error{Kind: KindDecode, Op: op, Err: err}
}

func wrapServer(op string, err error) error {
	return &Error{Kind: KindServer, Op: op, Err: err}
}
