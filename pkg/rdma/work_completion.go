// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rdma

import "fmt"

// WCStatus is the outcome of a work request.
type WCStatus int

const (
	// WCSuccess indicates a successfully finished work request.
	WCSuccess WCStatus = iota

	// WCLocalLenErr indicates an incoming message larger than the posted receive buffer.
	WCLocalLenErr

	// WCLocalProtErr indicates a protection error, e.g., an unregistered buffer.
	WCLocalProtErr

	// WCWRFlushErr indicates a work request flushed because the queue pair entered the error state.
	WCWRFlushErr

	// WCRnrRetryExcErr indicates the remote side had no receive posted for too long.
	WCRnrRetryExcErr

	// WCGeneralErr covers every other transport failure.
	WCGeneralErr
)

func (s WCStatus) String() string {
	switch s {
	case WCSuccess:
		return "success"
	case WCLocalLenErr:
		return "local length error"
	case WCLocalProtErr:
		return "local protection error"
	case WCWRFlushErr:
		return "work request flushed"
	case WCRnrRetryExcErr:
		return "RNR retry exceeded"
	case WCGeneralErr:
		return "general error"
	default:
		return "INVALID"
	}
}

// Err returns nil for WCSuccess and an error describing the status otherwise.
func (s WCStatus) Err() error {
	if s == WCSuccess {
		return nil
	}
	return fmt.Errorf("work completion status: %v", s)
}

// WCOpcode tells which kind of work request finished.
type WCOpcode int

const (
	// WCOpSend is the completion of a PostSend.
	WCOpSend WCOpcode = iota

	// WCOpRecv is the completion of a PostRecv.
	WCOpRecv
)

func (op WCOpcode) String() string {
	switch op {
	case WCOpSend:
		return "SEND"
	case WCOpRecv:
		return "RECV"
	default:
		return "INVALID"
	}
}

// WorkCompletion reports the outcome of a posted work request.
type WorkCompletion struct {
	// WRID is the work request ID given to PostSend or PostRecv.
	WRID uint64

	Status WCStatus
	Opcode WCOpcode

	// ByteLen is the amount of received bytes for a successful WCOpRecv.
	ByteLen uint32
}

func (wc WorkCompletion) String() string {
	return fmt.Sprintf("WC(id=%d, op=%v, status=%v, len=%d)", wc.WRID, wc.Opcode, wc.Status, wc.ByteLen)
}
