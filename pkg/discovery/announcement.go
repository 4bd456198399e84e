// SPDX-FileCopyrightText: 2020 Markus Sommer
// SPDX-FileCopyrightText: 2020, 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dtn7/cboring"
)

// ServiceType of an announced listener.
type ServiceType uint64

const (
	// SMBDirect is a listener accepting SMB Direct connect requests.
	SMBDirect ServiceType = 1

	// Diagnostic is an HTTP endpoint serving a node's diagnostics.
	Diagnostic ServiceType = 2
)

// CheckValid returns an error for unknown ServiceTypes.
func (st ServiceType) CheckValid() error {
	switch st {
	case SMBDirect, Diagnostic:
		return nil
	default:
		return fmt.Errorf("unknown service type %d", uint64(st))
	}
}

func (st ServiceType) String() string {
	switch st {
	case SMBDirect:
		return "smbd"
	case Diagnostic:
		return "diag"
	default:
		return "unknown"
	}
}

// Announcement of some node's listener.
type Announcement struct {
	Type ServiceType
	Port uint
	Name string
}

// UnmarshalAnnouncements creates a new array of Announcement based on a CBOR byte string.
func UnmarshalAnnouncements(data []byte) (announcements []Announcement, err error) {
	buff := bytes.NewBuffer(data)

	if l, cErr := cboring.ReadArrayLength(buff); cErr != nil {
		err = cErr
		return
	} else {
		announcements = make([]Announcement, l)
	}

	for i := 0; i < len(announcements); i++ {
		if cErr := cboring.Unmarshal(&announcements[i], buff); cErr != nil {
			err = fmt.Errorf("unmarshalling Announcement %d failed: %v", i, cErr)
			return
		}
	}

	return
}

// MarshalAnnouncements into a CBOR byte string.
func MarshalAnnouncements(announcements []Announcement) (data []byte, err error) {
	buff := new(bytes.Buffer)

	if cErr := cboring.WriteArrayLength(uint64(len(announcements)), buff); cErr != nil {
		err = cErr
		return
	}

	for i := range announcements {
		announcement := announcements[i]
		if cErr := cboring.Marshal(&announcement, buff); cErr != nil {
			err = fmt.Errorf("marshalling Announcement %d (%v) failed: %v", i, announcement, cErr)
			return
		}
	}

	data = buff.Bytes()
	return
}

// MarshalCbor creates a CBOR representation for an Announcement.
func (announcement *Announcement) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(3, w); err != nil {
		return err
	}

	if err := cboring.WriteUInt(uint64(announcement.Type), w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(uint64(announcement.Port), w); err != nil {
		return err
	}
	if err := cboring.WriteTextString(announcement.Name, w); err != nil {
		return fmt.Errorf("marshalling name failed: %v", err)
	}

	return nil
}

// UnmarshalCbor creates an Announcement from its CBOR representation.
func (announcement *Announcement) UnmarshalCbor(r io.Reader) error {
	if l, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if l != 3 {
		return fmt.Errorf("wrong array length: %d instead of 3", l)
	}

	if n, err := cboring.ReadUInt(r); err != nil {
		return err
	} else if st := ServiceType(n); st.CheckValid() != nil {
		return st.CheckValid()
	} else {
		announcement.Type = st
	}
	if n, err := cboring.ReadUInt(r); err != nil {
		return err
	} else if n > 0xFFFF {
		return fmt.Errorf("port %d is out of range", n)
	} else {
		announcement.Port = uint(n)
	}
	if name, err := cboring.ReadTextString(r); err != nil {
		return fmt.Errorf("unmarshalling name failed: %v", err)
	} else {
		announcement.Name = name
	}

	return nil
}

func (announcement Announcement) String() string {
	return fmt.Sprintf("Announcement(%v,%d,%s)", announcement.Type, announcement.Port, announcement.Name)
}
