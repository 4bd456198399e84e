// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package smbd

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport categorizes failures of the underlying RDMA transport. They are fatal to the affected connection.
	ErrTransport = errors.New("transport error")

	// ErrProtocol categorizes malformed or unsupported messages. They are fatal to the affected connection.
	ErrProtocol = errors.New("protocol error")

	// ErrResourceExhausted categorizes a lack of send credits or buffers. It is backpressure and the operation might
	// be retried later.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrConfiguration categorizes invalid Parameters.
	ErrConfiguration = errors.New("configuration error")

	// ErrBind categorizes failures to start a Listener.
	ErrBind = errors.New("bind error")

	// ErrConnectionClosed is returned when using a torn down Connection.
	ErrConnectionClosed = errors.New("connection closed")
)

// Error of an operation, categorized by its Kind.
//
// errors.Is matches both the Kind and, through Unwrap, the wrapped cause.
type Error struct {
	// Kind is one of the category errors, e.g., ErrProtocol.
	Kind error

	// Op names the failed operation.
	Op string

	// Err is the underlying cause, might be nil.
	Err error
}

func newError(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Is reports if target is this Error's Kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Err
}
