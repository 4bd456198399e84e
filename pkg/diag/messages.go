// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package diag

import (
	"time"

	"github.com/dtn7/smbdirect-go/pkg/smbd"
)

// NegotiatedInfo are the values agreed upon during a connection's negotiation.
type NegotiatedInfo struct {
	Version          uint16 `json:"version"`
	MaxSendSize      uint32 `json:"max_send_size"`
	MaxReceiveSize   uint32 `json:"max_receive_size"`
	MaxReadWriteSize uint32 `json:"max_read_write_size"`
	CreditsGranted   uint16 `json:"credits_granted"`
	CreditsRequested uint16 `json:"credits_requested"`
}

// ConnectionInfo describes one live connection.
type ConnectionInfo struct {
	SessionID  uint64          `json:"session"`
	Peer       string          `json:"peer"`
	State      string          `json:"state"`
	Created    time.Time       `json:"created"`
	Negotiated *NegotiatedInfo `json:"negotiated,omitempty"`
}

func newConnectionInfo(s smbd.Snapshot) ConnectionInfo {
	info := ConnectionInfo{
		SessionID: s.SessionID,
		Peer:      s.RemoteAddr,
		State:     s.State.String(),
		Created:   s.Created,
	}

	if n := s.Negotiated; n != nil {
		info.Negotiated = &NegotiatedInfo{
			Version:          n.Version,
			MaxSendSize:      n.MaxSendSize,
			MaxReceiveSize:   n.MaxReceiveSize,
			MaxReadWriteSize: n.MaxReadWriteSize,
			CreditsGranted:   n.CreditsGranted,
			CreditsRequested: n.CreditsRequested,
		}
	}

	return info
}

// EventMessage is sent to the /events WebSocket clients for each engine event.
type EventMessage struct {
	Type      string    `json:"type"`
	SessionID uint64    `json:"session,omitempty"`
	Peer      string    `json:"peer"`
	State     string    `json:"state"`
	Error     string    `json:"error,omitempty"`
	Time      time.Time `json:"time"`
}

func newEventMessage(ev smbd.Event) EventMessage {
	msg := EventMessage{
		Type:      ev.Type.String(),
		SessionID: ev.SessionID,
		Peer:      ev.RemoteAddr,
		State:     ev.State.String(),
		Time:      ev.Time,
	}

	if ev.Err != nil {
		msg.Error = ev.Err.Error()
	}

	return msg
}
