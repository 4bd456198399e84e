// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2020 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"bytes"
	"reflect"
	"testing"
)

func TestAnnouncementCbor(t *testing.T) {
	var tests = []Announcement{
		{Type: SMBDirect, Port: 5445, Name: "fileserver"},
		{Type: Diagnostic, Port: 8080, Name: "fileserver"},
		{Type: SMBDirect, Port: 12345, Name: ""},
	}

	for _, dmIn := range tests {
		buff, err := MarshalAnnouncements([]Announcement{dmIn})
		if err != nil {
			t.Fatalf("Encoding failed: %v", err)
		}

		dmsOut, err := UnmarshalAnnouncements(buff)
		if err != nil {
			t.Fatalf("Decoding failed: %v", err)
		}

		if l := len(dmsOut); l != 1 {
			t.Fatalf("Length of decoded Announcements is %d != 1", l)
		}

		if !reflect.DeepEqual(dmIn, dmsOut[0]) {
			t.Fatalf("Decoded Announcement differs: %v became %v", dmIn, dmsOut[0])
		}
	}
}

func TestAnnouncementCborBytes(t *testing.T) {
	a := Announcement{Type: SMBDirect, Port: 5445, Name: "ab"}

	var buff bytes.Buffer
	if err := a.MarshalCbor(&buff); err != nil {
		t.Fatal(err)
	}

	// [1, 5445, "ab"]
	expected := []byte{0x83, 0x01, 0x19, 0x15, 0x45, 0x62, 0x61, 0x62}
	if !bytes.Equal(buff.Bytes(), expected) {
		t.Fatalf("Expected %x, got %x", expected, buff.Bytes())
	}
}

func TestAnnouncementCborInvalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"wrong length", []byte{0x82, 0x01, 0x01}},
		{"unknown type", []byte{0x83, 0x17, 0x01, 0x60}},
		{"port out of range", []byte{0x83, 0x01, 0x1A, 0x00, 0x01, 0x00, 0x00, 0x60}},
		{"truncated", []byte{0x83, 0x01}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var a Announcement
			if err := a.UnmarshalCbor(bytes.NewReader(test.data)); err == nil {
				t.Fatalf("Decoding %x succeeded: %v", test.data, a)
			}
		})
	}
}

func TestManagerHandleDiscovery(t *testing.T) {
	var got []Discovered
	manager := &Manager{
		Name:       "self",
		NotifyFunc: func(d Discovered) { got = append(got, d) },
	}

	payload, err := MarshalAnnouncements([]Announcement{
		{Type: SMBDirect, Port: 5445, Name: "self"},
		{Type: SMBDirect, Port: 5445, Name: "other"},
	})
	if err != nil {
		t.Fatal(err)
	}

	manager.handleDiscovery(Announcement{Type: SMBDirect, Port: 5445, Name: "self"}, "10.0.0.1")
	for _, a := range mustUnmarshal(t, payload) {
		manager.handleDiscovery(a, "10.0.0.2")
	}

	if len(got) != 1 {
		t.Fatalf("Expected one foreign announcement, got %v", got)
	}
	if ep := got[0].Endpoint(); ep != "10.0.0.2:5445" {
		t.Fatalf("Endpoint is %s", ep)
	}

	v6 := Discovered{Announcement: Announcement{Port: 5445}, Address: "fe80::1"}
	if ep := v6.Endpoint(); ep != "[fe80::1]:5445" {
		t.Fatalf("Endpoint is %s", ep)
	}
}

func mustUnmarshal(t *testing.T, data []byte) []Announcement {
	t.Helper()

	announcements, err := UnmarshalAnnouncements(data)
	if err != nil {
		t.Fatal(err)
	}
	return announcements
}
