// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package buffers

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

var (
	// ErrPoolExhausted is returned if no Free buffer of the requested kind is left.
	ErrPoolExhausted = errors.New("buffer pool exhausted")

	// ErrOversized is returned if the requested length exceeds the buffer size.
	ErrOversized = errors.New("requested length exceeds buffer size")

	// ErrInvalidTransition is returned for a state change not allowed from the buffer's current state.
	ErrInvalidTransition = errors.New("invalid buffer state transition")

	// ErrUnknownBuffer is returned for a work request ID not belonging to this Pool.
	ErrUnknownBuffer = errors.New("unknown buffer")

	// ErrPoolClosed is returned after Close.
	ErrPoolClosed = errors.New("buffer pool closed")
)

// region is one memory mapping shared by the buffers of one Provision call.
type region struct {
	mem  []byte
	live int
}

// Pool of send and receive buffers.
type Pool struct {
	buffers map[uint64]*Buffer
	free    [2][]*Buffer
	size    [2]int

	generation [2]int
	regions    map[*region]struct{}

	nextID uint64
	closed bool
}

// NewPool creates an empty Pool. Buffers must be created by Provision.
func NewPool() *Pool {
	return &Pool{
		buffers: make(map[uint64]*Buffer),
		regions: make(map[*region]struct{}),
		nextID:  1,
	}
}

// Provision creates count buffers of the given size for one kind. Existing buffers of this kind are retired: Free
// ones immediately, all others when they are released.
func (p *Pool) Provision(kind Kind, count, size int) error {
	if p.closed {
		return ErrPoolClosed
	}
	if count < 0 || size <= 0 {
		return fmt.Errorf("cannot provision %d buffers of %d bytes", count, size)
	}

	p.generation[kind]++
	for _, b := range p.free[kind] {
		p.drop(b)
	}
	p.free[kind] = nil
	p.size[kind] = size

	if count == 0 {
		return nil
	}

	mem, err := mapRegion(count * size)
	if err != nil {
		return fmt.Errorf("mapping %d bytes failed: %w", count*size, err)
	}

	r := &region{mem: mem, live: count}
	p.regions[r] = struct{}{}

	for i := 0; i < count; i++ {
		b := &Buffer{
			id:         p.nextID,
			kind:       kind,
			state:      Free,
			generation: p.generation[kind],
			region:     r,
			mem:        mem[i*size : (i+1)*size : (i+1)*size],
		}
		p.nextID++

		p.buffers[b.id] = b
		p.free[kind] = append(p.free[kind], b)
	}

	return nil
}

// drop a buffer from this Pool, unmapping its region after its last buffer.
func (p *Pool) drop(b *Buffer) {
	delete(p.buffers, b.id)

	b.region.live--
	if b.region.live == 0 {
		delete(p.regions, b.region)
		_ = unmapRegion(b.region.mem)
	}
}

func (p *Pool) acquire(kind Kind) (*Buffer, error) {
	if p.closed {
		return nil, ErrPoolClosed
	}

	n := len(p.free[kind])
	if n == 0 {
		return nil, fmt.Errorf("no free %v buffer: %w", kind, ErrPoolExhausted)
	}

	b := p.free[kind][n-1]
	p.free[kind] = p.free[kind][:n-1]
	b.leased = true
	b.length = 0

	return b, nil
}

// AcquireSend leases a Free send buffer to be filled with length bytes.
func (p *Pool) AcquireSend(length int) (*Buffer, error) {
	if !p.closed && length > p.size[KindSend] {
		return nil, fmt.Errorf("%d bytes for send buffers of %d bytes: %w", length, p.size[KindSend], ErrOversized)
	}
	return p.acquire(KindSend)
}

// AcquireReceive leases a Free receive buffer to be posted.
func (p *Pool) AcquireReceive() (*Buffer, error) {
	return p.acquire(KindReceive)
}

// Post marks an acquired buffer as handed to the transport. For send buffers, length is the amount of bytes to be
// sent; for receive buffers, it is ignored.
func (p *Pool) Post(b *Buffer, length int) error {
	if p.closed {
		return ErrPoolClosed
	}
	if p.buffers[b.id] != b {
		return fmt.Errorf("posting %v: %w", b, ErrUnknownBuffer)
	}
	if b.state != Free || !b.leased {
		return fmt.Errorf("posting %v: %w", b, ErrInvalidTransition)
	}
	if length < 0 || length > len(b.mem) {
		return fmt.Errorf("posting %d bytes of %v: %w", length, b, ErrOversized)
	}

	b.state = Posted
	b.leased = false
	if b.kind == KindSend {
		b.length = length
	} else {
		b.length = 0
	}
	return nil
}

// Complete resolves a Posted buffer by its work request ID. For receive buffers, byteLen is the received length.
// An outcome error is returned, wrapped, together with the buffer, which must be released nonetheless.
func (p *Pool) Complete(wrID uint64, byteLen uint32, outcome error) (*Buffer, error) {
	b, ok := p.buffers[wrID]
	if !ok {
		return nil, fmt.Errorf("completing work request %d: %w", wrID, ErrUnknownBuffer)
	}
	if b.state != Posted {
		return b, fmt.Errorf("completing %v: %w", b, ErrInvalidTransition)
	}

	b.state = CompletedPendingConsumption
	if b.kind == KindReceive {
		if outcome == nil && int(byteLen) > len(b.mem) {
			outcome = fmt.Errorf("received %d bytes into %v: %w", byteLen, b, ErrOversized)
		} else if outcome == nil {
			b.length = int(byteLen)
		}
	}

	if outcome != nil {
		return b, fmt.Errorf("%v failed: %w", b, outcome)
	}
	return b, nil
}

// Release returns a completed buffer or an acquired, but never posted, buffer into the Pool.
func (p *Pool) Release(b *Buffer) error {
	if p.closed {
		return ErrPoolClosed
	}
	if p.buffers[b.id] != b {
		return fmt.Errorf("releasing %v: %w", b, ErrUnknownBuffer)
	}

	switch {
	case b.state == CompletedPendingConsumption:
	case b.state == Free && b.leased:
	default:
		return fmt.Errorf("releasing %v: %w", b, ErrInvalidTransition)
	}

	b.state = Free
	b.leased = false
	b.length = 0

	if b.generation != p.generation[b.kind] {
		p.drop(b)
	} else {
		p.free[b.kind] = append(p.free[b.kind], b)
	}
	return nil
}

// Lookup a buffer by its work request ID.
func (p *Pool) Lookup(wrID uint64) (*Buffer, bool) {
	b, ok := p.buffers[wrID]
	return b, ok
}

// Size of the current buffers of one kind.
func (p *Pool) Size(kind Kind) int {
	return p.size[kind]
}

// Available is the amount of Free, not acquired buffers of one kind.
func (p *Pool) Available(kind Kind) int {
	return len(p.free[kind])
}

// Count the buffers of a kind in a state.
func (p *Pool) Count(kind Kind, state State) (n int) {
	for _, b := range p.buffers {
		if b.kind == kind && b.state == state {
			n++
		}
	}
	return
}

// Owned is the amount of buffers still belonging to this Pool.
func (p *Pool) Owned() int {
	return len(p.buffers)
}

// Close releases all memory. The transport must not own any buffer anymore, i.e., its queue pair must be closed.
// Closing twice is a no-op.
func (p *Pool) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true

	var err error
	for r := range p.regions {
		if unmapErr := unmapRegion(r.mem); unmapErr != nil {
			err = multierror.Append(err, unmapErr)
		}
	}

	p.regions = nil
	p.buffers = make(map[uint64]*Buffer)
	p.free = [2][]*Buffer{}

	return err
}
