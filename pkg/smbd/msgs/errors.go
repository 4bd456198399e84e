// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"errors"
	"io"
)

var (
	// ErrTooShort is returned if a message ends before all of its fixed fields were read.
	ErrTooShort = errors.New("message too short")

	// ErrBadReserved is returned if a reserved field is not zero.
	ErrBadReserved = errors.New("reserved field is not zero")

	// ErrBadLayout is returned if a message's offset and length fields contradict each other.
	ErrBadLayout = errors.New("inconsistent message layout")
)

// readErr maps a premature end of input to ErrTooShort.
func readErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTooShort
	}
	return err
}
