// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"bytes"
	"errors"
	"testing"
)

func TestDataTransferEncode(t *testing.T) {
	tests := []struct {
		dtm  DataTransferMessage
		data []byte
	}{
		{
			DataTransferMessage{CreditsRequested: 64, CreditsGranted: 2, Flags: FlagResponseRequested},
			[]byte{0x00, 0x40, 0x00, 0x02, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
		},
		{
			DataTransferMessage{CreditsRequested: 1, RemainingDataLength: 3, Data: []byte("hi")},
			[]byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x03,
				0x00, 0x00, 0x00, 0x18, 0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00, 0x00, 0x68, 0x69},
		},
	}

	for _, test := range tests {
		var dst = make([]byte, 64)
		if n, err := test.dtm.EncodeTo(dst); err != nil {
			t.Fatal(err)
		} else if !bytes.Equal(dst[:n], test.data) {
			t.Fatalf("Encoded data does not match, expected %x and got %x", test.data, dst[:n])
		}

		var buf bytes.Buffer
		if err := test.dtm.Marshal(&buf); err != nil {
			t.Fatal(err)
		} else if !bytes.Equal(buf.Bytes(), test.data) {
			t.Fatalf("Marshalled data does not match, expected %x and got %x", test.data, buf.Bytes())
		}

		dtm, err := DecodeDataTransfer(test.data)
		if err != nil {
			t.Fatal(err)
		}
		if dtm.CreditsRequested != test.dtm.CreditsRequested || dtm.CreditsGranted != test.dtm.CreditsGranted ||
			dtm.Flags != test.dtm.Flags || dtm.RemainingDataLength != test.dtm.RemainingDataLength ||
			!bytes.Equal(dtm.Data, test.dtm.Data) {
			t.Fatalf("Decoded message does not match, expected %v and got %v", test.dtm, dtm)
		}
	}
}

func TestDataTransferEncodeShortBuffer(t *testing.T) {
	dtm := DataTransferMessage{Data: []byte("payload")}
	if _, err := dtm.EncodeTo(make([]byte, DataTransferHeaderSize)); err == nil {
		t.Fatal("Encoding into a too small buffer succeeded")
	}
}

func TestDataTransferDecodeInvalid(t *testing.T) {
	tests := []struct {
		data []byte
		err  error
	}{
		{[]byte{0x00, 0x01, 0x00, 0x00}, ErrTooShort},
		{
			[]byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00,
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
			ErrBadReserved,
		},
		{
			// data offset inside the header
			[]byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
				0x00, 0x00, 0x00, 0x08, 0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00, 0x00, 0x68, 0x69},
			ErrBadLayout,
		},
		{
			// unaligned data offset
			[]byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
				0x00, 0x00, 0x00, 0x19, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x68, 0x69},
			ErrBadLayout,
		},
		{
			// data length exceeds message
			[]byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
				0x00, 0x00, 0x00, 0x18, 0x00, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00, 0x00, 0x68, 0x69},
			ErrBadLayout,
		},
	}

	for _, test := range tests {
		if _, err := DecodeDataTransfer(test.data); !errors.Is(err, test.err) {
			t.Fatalf("Expected %v for %x, got %v", test.err, test.data, err)
		}
	}
}
