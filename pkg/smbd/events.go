// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package smbd

import (
	"fmt"
	"strings"
	"time"
)

// EventType indicates the kind of an Event.
type EventType uint

const (
	// EventAccepted is published after a connect request was accepted and its Connection registered.
	EventAccepted EventType = iota

	// EventRejected is published for a connect request rejected on the transport level.
	EventRejected

	// EventEstablished is published after a successful negotiation.
	EventEstablished

	// EventFailed is published when a Connection enters its Error state, except for a local Close.
	EventFailed

	// EventDropped is published when a reply had to be dropped because the outbox was full.
	EventDropped

	// EventRemoved is published after a Connection was torn down.
	EventRemoved
)

func (et EventType) String() string {
	switch et {
	case EventAccepted:
		return "accepted"
	case EventRejected:
		return "rejected"
	case EventEstablished:
		return "established"
	case EventFailed:
		return "failed"
	case EventDropped:
		return "dropped"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event reports a change of some Connection.
type Event struct {
	Type       EventType
	SessionID  uint64
	RemoteAddr string
	State      State
	Err        error
	Time       time.Time
}

func newEvent(eventType EventType, c *Connection, err error) Event {
	return Event{
		Type:       eventType,
		SessionID:  c.id,
		RemoteAddr: c.remoteAddr,
		State:      c.State(),
		Err:        err,
		Time:       time.Now(),
	}
}

func (e Event) String() string {
	var b strings.Builder

	_, _ = fmt.Fprintf(&b, "%v event for session %d from %s in state %v", e.Type, e.SessionID, e.RemoteAddr, e.State)
	if e.Err != nil {
		_, _ = fmt.Fprintf(&b, ": %v", e.Err)
	}

	return b.String()
}
