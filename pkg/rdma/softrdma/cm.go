// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package softrdma

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	cmVersion uint8 = 1

	// cmAccept and cmReject are the one-octet answers to a connectHeader.
	cmAccept byte = 0x00
	cmReject byte = 0x01
)

var cmMagic = []byte("SRDM")

// connectHeader is sent by the active peer directly after the stream connection was established.
type connectHeader struct {
	QueueDepth uint16
}

func (ch connectHeader) String() string {
	return fmt.Sprintf("ConnectHeader(Version=%d, Queue Depth=%d)", cmVersion, ch.QueueDepth)
}

func (ch connectHeader) Marshal(w io.Writer) error {
	var data = make([]byte, 8)
	copy(data, cmMagic)
	data[4] = cmVersion
	binary.BigEndian.PutUint16(data[6:], ch.QueueDepth)

	if n, err := w.Write(data); err != nil {
		return err
	} else if n != len(data) {
		return fmt.Errorf("wrote %d octets instead of %d", n, len(data))
	}

	return nil
}

func (ch *connectHeader) Unmarshal(r io.Reader) error {
	var data = make([]byte, 8)

	if _, err := io.ReadFull(r, data); err != nil {
		return err
	}

	if !bytes.Equal(data[:4], cmMagic) {
		return fmt.Errorf("connect header's magic does not match: %x != 'SRDM'", data[:4])
	}

	if data[4] != cmVersion {
		return fmt.Errorf("connect header's version is wrong: %d instead of %d", data[4], cmVersion)
	}

	ch.QueueDepth = binary.BigEndian.Uint16(data[6:])

	return nil
}
