// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package smbd

// State of a Connection.
type State int32

const (
	// StateNegotiating is the initial State of each accepted Connection until a valid NegotiateRequest arrived.
	StateNegotiating State = iota

	// StateTransferring is entered after a successful negotiation.
	StateTransferring

	// StateError is terminal. The only way out is the teardown.
	StateError
)

func (s State) String() string {
	switch s {
	case StateNegotiating:
		return "negotiating"
	case StateTransferring:
		return "transferring"
	case StateError:
		return "error"
	default:
		return "INVALID"
	}
}

// canTransition checks the state machine's edges.
func (s State) canTransition(next State) bool {
	switch s {
	case StateNegotiating:
		return next == StateTransferring || next == StateError
	case StateTransferring:
		return next == StateError
	default:
		return false
	}
}
