// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package buffers

import "fmt"

// State of a Buffer.
type State int

const (
	// Free buffers are owned by the Pool or, after being acquired, by the protocol layer.
	Free State = iota

	// Posted buffers are owned by the transport until their completion arrives.
	Posted

	// CompletedPendingConsumption buffers were completed by the transport and wait to be released.
	CompletedPendingConsumption
)

func (s State) String() string {
	switch s {
	case Free:
		return "free"
	case Posted:
		return "posted"
	case CompletedPendingConsumption:
		return "completed"
	default:
		return "INVALID"
	}
}

// Kind of a Buffer, either for sending or receiving.
type Kind int

const (
	// KindSend buffers are posted as send work requests.
	KindSend Kind = iota

	// KindReceive buffers are posted as receive work requests.
	KindReceive
)

func (k Kind) String() string {
	switch k {
	case KindSend:
		return "send"
	case KindReceive:
		return "receive"
	default:
		return "INVALID"
	}
}

// Buffer is a slice of registered memory, identified by its work request ID.
type Buffer struct {
	id     uint64
	kind   Kind
	state  State
	leased bool

	generation int
	region     *region
	mem        []byte
	length     int
}

// ID is used as the work request ID when posting this Buffer.
func (b *Buffer) ID() uint64 {
	return b.id
}

// Kind of this Buffer.
func (b *Buffer) Kind() Kind {
	return b.kind
}

// State of this Buffer.
func (b *Buffer) State() State {
	return b.state
}

// Cap is the size of this Buffer's memory.
func (b *Buffer) Cap() int {
	return len(b.mem)
}

// Bytes is the whole memory of this Buffer, e.g., to fill it before posting.
func (b *Buffer) Bytes() []byte {
	return b.mem
}

// Data is the posted length of a send Buffer or the received bytes of a completed receive Buffer.
func (b *Buffer) Data() []byte {
	return b.mem[:b.length]
}

func (b *Buffer) String() string {
	return fmt.Sprintf("Buffer(id=%d, %v, %v, len=%d/%d)", b.id, b.kind, b.state, b.length, len(b.mem))
}
