// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package smbd

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/smbdirect-go/pkg/rdma"
	"github.com/dtn7/smbdirect-go/pkg/smbd/buffers"
	"github.com/dtn7/smbdirect-go/pkg/smbd/msgs"
)

type sendRequest struct {
	payload []byte
	result  chan error
}

// Connection is the acceptor's side of one SMB Direct connection.
type Connection struct {
	id         uint64
	remoteAddr string
	created    time.Time
	params     Parameters

	registry *Registry
	handler  Handler
	publish  func(Event)

	state     int32
	published atomic.Value

	// Owned by the worker.
	transfer
	deadline  *windupClock
	keepalive *windupClock
	lingering bool
	finished  bool

	sendReqs chan sendRequest

	closeSyn    chan struct{}
	closeAck    chan struct{}
	closeOnce   sync.Once
	teardownErr error
}

// newConnection for an accepted queue pair. The Connection is in the Negotiating state with one receive buffer
// posted for the NegotiateRequest. Its worker is not yet started.
func newConnection(id uint64, qp rdma.QueuePair, params Parameters, registry *Registry, handler Handler,
	publish func(Event)) (*Connection, error) {
	c := &Connection{
		id:         id,
		remoteAddr: qp.RemoteAddr(),
		created:    time.Now(),
		params:     params,

		registry: registry,
		handler:  handler,
		publish:  publish,

		state: int32(StateNegotiating),

		transfer: transfer{
			qp:   qp,
			pool: buffers.NewPool(),
		},
		deadline:  newWindupClock(),
		keepalive: newWindupClock(),

		sendReqs: make(chan sendRequest),

		closeSyn: make(chan struct{}),
		closeAck: make(chan struct{}),
	}

	if c.publish == nil {
		c.publish = func(Event) {}
	}

	if err := c.pool.Provision(buffers.KindReceive, 1, msgs.NegotiateRequestSize); err != nil {
		return nil, newError(ErrTransport, "provision negotiation buffer", err)
	}
	if err := c.pool.Provision(buffers.KindSend, 1, msgs.NegotiateResponseSize); err != nil {
		_ = c.pool.Close()
		return nil, newError(ErrTransport, "provision negotiation buffer", err)
	}

	if b, err := c.pool.AcquireReceive(); err != nil {
		_ = c.pool.Close()
		return nil, newError(ErrTransport, "post negotiation buffer", err)
	} else if err := c.postRecv(b); err != nil {
		_ = c.pool.Close()
		return nil, err
	}

	return c, nil
}

// start the worker.
func (c *Connection) start() {
	c.deadline.Reschedule(c.params.NegotiateTimeout)
	go c.handle()
}

func (c *Connection) log() *log.Entry {
	return log.WithFields(log.Fields{
		"session": c.id,
		"peer":    c.remoteAddr,
		"state":   c.State(),
	})
}

func (c *Connection) String() string {
	return fmt.Sprintf("smbd://%s#%d", c.remoteAddr, c.id)
}

// ID is the session ID, unique within an Engine.
func (c *Connection) ID() uint64 {
	return c.id
}

// RemoteAddr of the peer.
func (c *Connection) RemoteAddr() string {
	return c.remoteAddr
}

// State of this Connection.
func (c *Connection) State() State {
	return State(atomic.LoadInt32(&c.state))
}

// Negotiated values, available after a successful negotiation.
func (c *Connection) Negotiated() (Negotiated, bool) {
	n, ok := c.published.Load().(Negotiated)
	return n, ok
}

// setState follows the state machine's edges; other transitions are ignored. The previous State is returned.
func (c *Connection) setState(next State) State {
	for {
		prev := c.State()
		if !prev.canTransition(next) {
			return prev
		}
		if atomic.CompareAndSwapInt32(&c.state, int32(prev), int32(next)) {
			c.log().WithField("previous", prev).Info("Connection changed state")
			return prev
		}
	}
}

// Snapshot of this Connection's immutable and synchronized fields.
func (c *Connection) Snapshot() Snapshot {
	s := Snapshot{
		SessionID:  c.id,
		RemoteAddr: c.remoteAddr,
		State:      c.State(),
		Created:    c.created,
	}
	if n, ok := c.Negotiated(); ok {
		s.Negotiated = &n
	}
	return s
}

// Send an upper layer message to the peer, fragmented if necessary. An ErrResourceExhausted is returned if earlier
// messages are still queued or if credits or send buffers are lacking for the first fragment; nothing is sent then.
// Otherwise the remaining fragments follow as the peer grants credits.
//
// Send must not be called from this Connection's Handler.
func (c *Connection) Send(payload []byte) error {
	if len(payload) == 0 {
		return newError(ErrProtocol, "send", fmt.Errorf("empty message"))
	}
	if s := c.State(); s != StateTransferring {
		return newError(ErrConnectionClosed, "send", fmt.Errorf("connection is %v", s))
	}

	req := sendRequest{
		payload: payload,
		result:  make(chan error, 1),
	}

	select {
	case c.sendReqs <- req:
	case <-c.closeAck:
		return newError(ErrConnectionClosed, "send", nil)
	}

	select {
	case err := <-req.result:
		return err
	case <-c.closeAck:
		return newError(ErrConnectionClosed, "send", nil)
	}
}

// Disconnect requests the teardown without waiting for it.
func (c *Connection) Disconnect() {
	c.closeOnce.Do(func() {
		close(c.closeSyn)
	})
}

// Done is closed after the teardown.
func (c *Connection) Done() <-chan struct{} {
	return c.closeAck
}

// Close tears this Connection down and blocks until all of its resources are released. Closing an already closed
// Connection is a no-op and returns the same result.
func (c *Connection) Close() error {
	c.Disconnect()
	<-c.closeAck
	return c.teardownErr
}

// fail moves this Connection into the Error state.
func (c *Connection) fail(err error) {
	c.setState(StateError)

	if errors.Is(err, ErrConnectionClosed) {
		c.log().Info("Connection closed locally")
		return
	}

	c.log().WithError(err).Warn("Connection failed")
	c.publish(newEvent(EventFailed, c, err))
}

// teardown releases all resources exactly once and removes this Connection from its Registry. It runs at the end of
// the worker, so no completion is dispatched afterwards.
func (c *Connection) teardown() {
	c.setState(StateError)

	c.deadline.Stop()
	c.keepalive.Stop()

	var err error
	if qpErr := c.qp.Close(); qpErr != nil {
		err = multierror.Append(err, qpErr)
	}
	if poolErr := c.pool.Close(); poolErr != nil {
		err = multierror.Append(err, poolErr)
	}
	c.teardownErr = err

	if c.registry != nil {
		c.registry.Remove(c.id)
	}

	c.log().Info("Connection removed")
	c.publish(newEvent(EventRemoved, c, nil))

	close(c.closeAck)
}
