// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

// DataTransferHeaderSize is the length of a DataTransferMessage without its data.
const DataTransferHeaderSize = 24

// FlagResponseRequested asks the peer to answer promptly, e.g., to a keepalive.
const FlagResponseRequested uint16 = 0x0001

// DataTransferMessage carries upper layer data and credit information after a successful negotiation.
type DataTransferMessage struct {
	CreditsRequested    uint16
	CreditsGranted      uint16
	Flags               uint16
	RemainingDataLength uint32

	// Data of this fragment. After decoding, Data aliases the decoded byte slice.
	Data []byte
}

func (dtm DataTransferMessage) String() string {
	var b strings.Builder

	_, _ = fmt.Fprintf(&b, "DataTransferMessage(Credits Requested=%d, Credits Granted=%d, ",
		dtm.CreditsRequested, dtm.CreditsGranted)
	if dtm.ResponseRequested() {
		b.WriteString("Response Requested, ")
	}
	_, _ = fmt.Fprintf(&b, "Remaining=%d, Data Length=%d)", dtm.RemainingDataLength, len(dtm.Data))

	return b.String()
}

// ResponseRequested checks the FlagResponseRequested.
func (dtm DataTransferMessage) ResponseRequested() bool {
	return dtm.Flags&FlagResponseRequested != 0
}

// Len is the encoded length of this DataTransferMessage.
func (dtm DataTransferMessage) Len() int {
	return DataTransferHeaderSize + len(dtm.Data)
}

func (dtm DataTransferMessage) putHeader(dst []byte) {
	var offset uint32
	if len(dtm.Data) > 0 {
		offset = DataTransferHeaderSize
	}

	binary.BigEndian.PutUint16(dst[0:], dtm.CreditsRequested)
	binary.BigEndian.PutUint16(dst[2:], dtm.CreditsGranted)
	binary.BigEndian.PutUint16(dst[4:], dtm.Flags)
	binary.BigEndian.PutUint16(dst[6:], 0)
	binary.BigEndian.PutUint32(dst[8:], dtm.RemainingDataLength)
	binary.BigEndian.PutUint32(dst[12:], offset)
	binary.BigEndian.PutUint32(dst[16:], uint32(len(dtm.Data)))
	binary.BigEndian.PutUint32(dst[20:], 0)
}

// EncodeTo writes this DataTransferMessage into dst, e.g., a send buffer, and returns the encoded length.
func (dtm DataTransferMessage) EncodeTo(dst []byte) (int, error) {
	if n := dtm.Len(); len(dst) < n {
		return 0, fmt.Errorf("DataTransferMessage needs %d bytes, buffer has %d", n, len(dst))
	}

	dtm.putHeader(dst)
	copy(dst[DataTransferHeaderSize:], dtm.Data)

	return dtm.Len(), nil
}

// Marshal writes this DataTransferMessage's binary form.
func (dtm DataTransferMessage) Marshal(w io.Writer) error {
	var hdr [DataTransferHeaderSize]byte
	dtm.putHeader(hdr[:])

	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(dtm.Data) > 0 {
		if _, err := w.Write(dtm.Data); err != nil {
			return err
		}
	}
	return nil
}

// DecodeDataTransfer parses a received DataTransferMessage. The resulting Data aliases data.
func DecodeDataTransfer(data []byte) (dtm DataTransferMessage, err error) {
	if len(data) < DataTransferHeaderSize {
		err = ErrTooShort
		return
	}

	if reserved := binary.BigEndian.Uint16(data[6:]); reserved != 0 {
		err = fmt.Errorf("DataTransferMessage's reserved field is 0x%04X: %w", reserved, ErrBadReserved)
		return
	}

	dtm.CreditsRequested = binary.BigEndian.Uint16(data[0:])
	dtm.CreditsGranted = binary.BigEndian.Uint16(data[2:])
	dtm.Flags = binary.BigEndian.Uint16(data[4:])
	dtm.RemainingDataLength = binary.BigEndian.Uint32(data[8:])

	offset := binary.BigEndian.Uint32(data[12:])
	length := binary.BigEndian.Uint32(data[16:])

	if length == 0 {
		return
	}

	switch {
	case offset < DataTransferHeaderSize:
		err = fmt.Errorf("data offset %d overlaps the header: %w", offset, ErrBadLayout)
	case offset%8 != 0:
		err = fmt.Errorf("data offset %d is not 8 byte aligned: %w", offset, ErrBadLayout)
	case uint64(offset)+uint64(length) > uint64(len(data)):
		err = fmt.Errorf("data of %d bytes at offset %d exceeds message of %d bytes: %w",
			length, offset, len(data), ErrBadLayout)
	default:
		dtm.Data = data[offset : offset+length]
	}

	return
}
