// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

func TestNegotiateRequestDecode(t *testing.T) {
	tests := []struct {
		data []byte
		err  error
		req  NegotiateRequest
	}{
		{
			[]byte{0x00, 0x01, 0x00, 0x02, 0x00, 0x00, 0x00, 0x04, 0x00, 0x00, 0x04, 0x00,
				0x00, 0x00, 0x20, 0x00, 0x00, 0x10, 0x00, 0x00},
			nil,
			NegotiateRequest{
				MinVersion:        1,
				MaxVersion:        2,
				CreditsRequested:  4,
				PreferredSendSize: 1024,
				MaxReceiveSize:    8192,
				MaxFragmentedSize: 1048576,
			},
		},
		{
			[]byte{0x01, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0xFF, 0x00, 0x00, 0x05, 0x54,
				0x00, 0x00, 0x20, 0x00, 0x00, 0x10, 0x00, 0x00, 0x23, 0x23},
			nil,
			NegotiateRequest{
				MinVersion:        0x0100,
				MaxVersion:        0x0100,
				CreditsRequested:  255,
				PreferredSendSize: 1364,
				MaxReceiveSize:    8192,
				MaxFragmentedSize: 1048576,
			},
		},
		{
			[]byte{0x00, 0x01, 0x00, 0x02, 0x00, 0x01, 0x00, 0x04, 0x00, 0x00, 0x04, 0x00,
				0x00, 0x00, 0x20, 0x00, 0x00, 0x10, 0x00, 0x00},
			ErrBadReserved,
			NegotiateRequest{},
		},
		{
			[]byte{0x00, 0x01, 0x00, 0x02, 0x00, 0x00, 0x00, 0x04, 0x00, 0x00, 0x04, 0x00},
			ErrTooShort,
			NegotiateRequest{},
		},
		{[]byte{}, ErrTooShort, NegotiateRequest{}},
	}

	for _, test := range tests {
		req, err := DecodeNegotiateRequest(test.data)
		if test.err != nil {
			if !errors.Is(err, test.err) {
				t.Fatalf("Expected error %v for %x, got %v", test.err, test.data, err)
			}
			continue
		} else if err != nil {
			t.Fatal(err)
		}

		if !reflect.DeepEqual(req, test.req) {
			t.Fatalf("NegotiateRequest does not match, expected %v and got %v", test.req, req)
		}
		if data := EncodeNegotiateRequest(req); !bytes.Equal(data, test.data[:NegotiateRequestSize]) {
			t.Fatalf("Encoded data does not match, expected %x and got %x", test.data[:NegotiateRequestSize], data)
		}
	}
}

func TestNegotiateResponseEncode(t *testing.T) {
	tests := []struct {
		resp NegotiateResponse
		data []byte
	}{
		{
			NegotiateResponse{
				MinVersion:        1,
				MaxVersion:        1,
				NegotiatedVersion: 1,
				CreditsRequested:  64,
				CreditsGranted:    4,
				Status:            StatusSuccess,
				MaxReadWriteSize:  1048576,
			},
			[]byte{0x00, 0x01, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x00, 0x40, 0x00, 0x04,
				0x00, 0x00, 0x00, 0x00, 0x00, 0x10, 0x00, 0x00},
		},
		{
			NegotiateResponse{
				MinVersion: 1,
				MaxVersion: 1,
				Status:     StatusNotSupported,
			},
			[]byte{0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
				0xC0, 0x00, 0x00, 0xBB, 0x00, 0x00, 0x00, 0x00},
		},
	}

	for _, test := range tests {
		data := EncodeNegotiateResponse(test.resp)
		if !bytes.Equal(data, test.data) {
			t.Fatalf("Encoded data does not match, expected %x and got %x", test.data, data)
		}
		if len(data) != NegotiateResponseSize {
			t.Fatalf("Encoded length is %d instead of %d", len(data), NegotiateResponseSize)
		}

		if resp, err := DecodeNegotiateResponse(data); err != nil {
			t.Fatal(err)
		} else if resp != test.resp {
			t.Fatalf("NegotiateResponse does not match, expected %v and got %v", test.resp, resp)
		}
	}
}

func TestNegotiateResponseDecodeInvalid(t *testing.T) {
	if _, err := DecodeNegotiateResponse([]byte{0x00, 0x01}); !errors.Is(err, ErrTooShort) {
		t.Fatalf("Expected ErrTooShort, got %v", err)
	}

	data := []byte{0x00, 0x01, 0x00, 0x01, 0x00, 0x01, 0x12, 0x34, 0x00, 0x40, 0x00, 0x04,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x10, 0x00, 0x00}
	if _, err := DecodeNegotiateResponse(data); !errors.Is(err, ErrBadReserved) {
		t.Fatalf("Expected ErrBadReserved, got %v", err)
	}
}

func TestSelectVersion(t *testing.T) {
	tests := []struct {
		localMin, localMax, peerMin, peerMax uint16
		ok                                   bool
		version                              uint16
	}{
		{1, 1, 1, 2, true, 1},
		{1, 1, 3, 4, false, 0},
		{1, 5, 3, 4, true, 4},
		{3, 4, 1, 5, true, 4},
		{2, 3, 1, 2, true, 2},
		{0x0100, 0x0100, 0x0100, 0x0100, true, 0x0100},
		{4, 3, 1, 5, false, 0},
	}

	for _, test := range tests {
		version, ok := SelectVersion(test.localMin, test.localMax, test.peerMin, test.peerMax)
		if ok != test.ok || version != test.version {
			t.Fatalf("SelectVersion(%d, %d, %d, %d) = (%d, %t), expected (%d, %t)",
				test.localMin, test.localMax, test.peerMin, test.peerMax, version, ok, test.version, test.ok)
		}
	}
}

func TestSelectVersionWithinRange(t *testing.T) {
	for localMin := uint16(1); localMin <= 4; localMin++ {
		for localMax := localMin; localMax <= 4; localMax++ {
			for peerMin := uint16(1); peerMin <= 4; peerMin++ {
				for peerMax := peerMin; peerMax <= 4; peerMax++ {
					lower, upper := localMin, localMax
					if peerMin > lower {
						lower = peerMin
					}
					if peerMax < upper {
						upper = peerMax
					}

					version, ok := SelectVersion(localMin, localMax, peerMin, peerMax)
					if ok != (lower <= upper) {
						t.Fatalf("Overlap of [%d, %d] and [%d, %d] misjudged", localMin, localMax, peerMin, peerMax)
					} else if ok && (version < lower || version > upper) {
						t.Fatalf("Version %d outside of [%d, %d]", version, lower, upper)
					}
				}
			}
		}
	}
}

func TestStatusString(t *testing.T) {
	if s := StatusNotSupported.String(); s != "STATUS_NOT_SUPPORTED" {
		t.Fatalf("Unexpected string %q", s)
	}
	if s := Status(0xC0000001).String(); s != "STATUS(0xC0000001)" {
		t.Fatalf("Unexpected string %q", s)
	}
	if !StatusSuccess.Ok() || StatusNotSupported.Ok() {
		t.Fatal("Ok misjudged a status")
	}
}
