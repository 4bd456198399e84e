// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import "fmt"

// Status is an NTSTATUS code as carried in a NegotiateResponse.
type Status uint32

const (
	// StatusSuccess indicates a successful negotiation.
	StatusSuccess Status = 0x00000000

	// StatusNotSupported indicates that no common protocol version exists.
	StatusNotSupported Status = 0xC00000BB

	// StatusInvalidParameter indicates a negotiation request with unacceptable values.
	StatusInvalidParameter Status = 0xC000000D
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "STATUS_SUCCESS"
	case StatusNotSupported:
		return "STATUS_NOT_SUPPORTED"
	case StatusInvalidParameter:
		return "STATUS_INVALID_PARAMETER"
	default:
		return fmt.Sprintf("STATUS(0x%08X)", uint32(s))
	}
}

// Ok is true for StatusSuccess.
func (s Status) Ok() bool {
	return s == StatusSuccess
}

// SelectVersion returns the highest version supported by both sides. False is returned if the version ranges do
// not overlap.
func SelectVersion(localMin, localMax, peerMin, peerMax uint16) (uint16, bool) {
	lower := localMin
	if peerMin > lower {
		lower = peerMin
	}

	upper := localMax
	if peerMax < upper {
		upper = peerMax
	}

	if lower > upper {
		return 0, false
	}
	return upper, true
}
