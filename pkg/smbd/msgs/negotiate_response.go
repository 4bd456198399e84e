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

// NegotiateResponseSize is the encoded length of a NegotiateResponse.
const NegotiateResponseSize = 20

// NegotiateResponse is the acceptor's answer to a NegotiateRequest.
type NegotiateResponse struct {
	MinVersion        uint16
	MaxVersion        uint16
	NegotiatedVersion uint16
	CreditsRequested  uint16
	CreditsGranted    uint16
	Status            Status
	MaxReadWriteSize  uint32
}

func (resp NegotiateResponse) String() string {
	return fmt.Sprintf(
		"NegotiateResponse(Version=[0x%04X, 0x%04X], Negotiated Version=0x%04X, Credits Requested=%d, "+
			"Credits Granted=%d, Status=%v, Max Read Write Size=%d)",
		resp.MinVersion, resp.MaxVersion, resp.NegotiatedVersion, resp.CreditsRequested,
		resp.CreditsGranted, resp.Status, resp.MaxReadWriteSize)
}

// Marshal writes this NegotiateResponse's binary form.
func (resp NegotiateResponse) Marshal(w io.Writer) error {
	var fields = []interface{}{
		resp.MinVersion,
		resp.MaxVersion,
		resp.NegotiatedVersion,
		uint16(0),
		resp.CreditsRequested,
		resp.CreditsGranted,
		uint32(resp.Status),
		resp.MaxReadWriteSize,
	}

	for _, field := range fields {
		if err := binary.Write(w, binary.BigEndian, field); err != nil {
			return err
		}
	}

	return nil
}

// Unmarshal reads a NegotiateResponse.
func (resp *NegotiateResponse) Unmarshal(r io.Reader) error {
	var reserved uint16
	var status uint32
	var fields = []interface{}{
		&resp.MinVersion,
		&resp.MaxVersion,
		&resp.NegotiatedVersion,
		&reserved,
		&resp.CreditsRequested,
		&resp.CreditsGranted,
		&status,
		&resp.MaxReadWriteSize,
	}

	for _, field := range fields {
		if err := binary.Read(r, binary.BigEndian, field); err != nil {
			return readErr(err)
		}
	}

	if reserved != 0 {
		return fmt.Errorf("NegotiateResponse's reserved field is 0x%04X: %w", reserved, ErrBadReserved)
	}

	resp.Status = Status(status)
	return nil
}

// EncodeNegotiateResponse into a new byte slice of NegotiateResponseSize.
func EncodeNegotiateResponse(resp NegotiateResponse) []byte {
	var buf = bytes.NewBuffer(make([]byte, 0, NegotiateResponseSize))
	_ = resp.Marshal(buf)
	return buf.Bytes()
}

// DecodeNegotiateResponse from a received message.
func DecodeNegotiateResponse(data []byte) (resp NegotiateResponse, err error) {
	err = resp.Unmarshal(bytes.NewReader(data))
	return
}
