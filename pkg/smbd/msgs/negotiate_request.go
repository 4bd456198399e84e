// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// NegotiateRequestSize is the encoded length of a NegotiateRequest.
const NegotiateRequestSize = 20

// NegotiateRequest is the first message sent by the initiator of a connection.
type NegotiateRequest struct {
	MinVersion        uint16
	MaxVersion        uint16
	CreditsRequested  uint16
	PreferredSendSize uint32
	MaxReceiveSize    uint32
	MaxFragmentedSize uint32
}

func (req NegotiateRequest) String() string {
	return fmt.Sprintf(
		"NegotiateRequest(Version=[0x%04X, 0x%04X], Credits Requested=%d, Preferred Send Size=%d, "+
			"Max Receive Size=%d, Max Fragmented Size=%d)",
		req.MinVersion, req.MaxVersion, req.CreditsRequested, req.PreferredSendSize,
		req.MaxReceiveSize, req.MaxFragmentedSize)
}

// Marshal writes this NegotiateRequest's binary form.
func (req NegotiateRequest) Marshal(w io.Writer) error {
	var fields = []interface{}{
		req.MinVersion,
		req.MaxVersion,
		uint16(0),
		req.CreditsRequested,
		req.PreferredSendSize,
		req.MaxReceiveSize,
		req.MaxFragmentedSize,
	}

	for _, field := range fields {
		if err := binary.Write(w, binary.BigEndian, field); err != nil {
			return err
		}
	}

	return nil
}

// Unmarshal reads a NegotiateRequest.
func (req *NegotiateRequest) Unmarshal(r io.Reader) error {
	var reserved uint16
	var fields = []interface{}{
		&req.MinVersion,
		&req.MaxVersion,
		&reserved,
		&req.CreditsRequested,
		&req.PreferredSendSize,
		&req.MaxReceiveSize,
		&req.MaxFragmentedSize,
	}

	for _, field := range fields {
		if err := binary.Read(r, binary.BigEndian, field); err != nil {
			return readErr(err)
		}
	}

	if reserved != 0 {
		return fmt.Errorf("NegotiateRequest's reserved field is 0x%04X: %w", reserved, ErrBadReserved)
	}

	return nil
}

// DecodeNegotiateRequest from a received message. Trailing bytes are ignored; checking the message length is left to
// the caller.
func DecodeNegotiateRequest(data []byte) (req NegotiateRequest, err error) {
	err = req.Unmarshal(bytes.NewReader(data))
	return
}

// EncodeNegotiateRequest into a new byte slice of NegotiateRequestSize.
func EncodeNegotiateRequest(req NegotiateRequest) []byte {
	var buf = bytes.NewBuffer(make([]byte, 0, NegotiateRequestSize))
	_ = req.Marshal(buf)
	return buf.Bytes()
}
