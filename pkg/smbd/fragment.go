// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package smbd

import (
	"fmt"

	"github.com/dtn7/smbdirect-go/pkg/smbd/msgs"
)

// reassembler joins fragmented data transfer messages. Each fragment announces the amount of data still to follow.
type reassembler struct {
	limit uint32

	buf       []byte
	remaining uint32
	active    bool
}

func newReassembler(limit uint32) reassembler {
	return reassembler{limit: limit}
}

// add a fragment. The complete message is returned after its last fragment, otherwise nil. The result never aliases
// the fragment's data.
func (r *reassembler) add(dtm msgs.DataTransferMessage) ([]byte, error) {
	dataLen := uint32(len(dtm.Data))

	if !r.active {
		total := uint64(dataLen) + uint64(dtm.RemainingDataLength)
		if total > uint64(r.limit) {
			return nil, fmt.Errorf("message of %d bytes exceeds max fragmented size %d", total, r.limit)
		}

		r.buf = make([]byte, 0, total)
	} else if dataLen > r.remaining || r.remaining-dataLen != dtm.RemainingDataLength {
		expected := r.remaining
		r.reset()
		return nil, fmt.Errorf("fragment of %d bytes announces %d remaining bytes, %d were expected before",
			dataLen, dtm.RemainingDataLength, expected)
	}

	r.buf = append(r.buf, dtm.Data...)
	r.remaining = dtm.RemainingDataLength
	r.active = r.remaining > 0

	if r.active {
		return nil, nil
	}

	msg := r.buf
	r.reset()
	return msg, nil
}

func (r *reassembler) reset() {
	r.buf = nil
	r.remaining = 0
	r.active = false
}

// fragments needed to send size bytes with the given payload per fragment. An empty message needs one fragment.
func fragments(size, perFragment int) int {
	if size == 0 {
		return 1
	}
	return (size + perFragment - 1) / perFragment
}
