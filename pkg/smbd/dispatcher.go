// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package smbd

import (
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/smbdirect-go/pkg/rdma"
	"github.com/dtn7/smbdirect-go/pkg/smbd/buffers"
	"github.com/dtn7/smbdirect-go/pkg/smbd/msgs"
)

// handle is the Connection's worker. It drains the completion queue in the transport's order and serializes all
// state changes of this Connection.
func (c *Connection) handle() {
	defer c.teardown()

	for !c.finished {
		var err error

		select {
		case <-c.closeSyn:
			err = newError(ErrConnectionClosed, "close", nil)

		case <-c.qp.Disconnected():
			err = newError(ErrTransport, "disconnect", errPeerDisconnected)

		case wc := <-c.qp.Completions():
			err = c.dispatch(wc)

		case <-c.deadline.C:
			err = c.handleDeadline()

		case <-c.keepalive.C:
			err = c.handleKeepalive()

		case req := <-c.sendReqs:
			err = c.handleSendRequest(req)
		}

		if err != nil {
			if c.lingering {
				c.log().WithError(err).Debug("Linger ended early")
				return
			}

			c.fail(err)
			return
		}
	}
}

// dispatch one WorkCompletion to its buffer and, for received messages, to the protocol handling of the current
// State.
func (c *Connection) dispatch(wc rdma.WorkCompletion) error {
	c.log().WithField("completion", wc).Debug("Dispatching work completion")

	b, err := c.pool.Complete(wc.WRID, wc.ByteLen, wc.Status.Err())
	if err != nil {
		if b != nil {
			_ = c.pool.Release(b)
		}
		return newError(ErrTransport, "completion", err)
	}

	if b.Kind() == buffers.KindSend {
		_ = c.pool.Release(b)

		if c.lingering {
			c.log().Debug("Failure response was sent")
			c.finished = true
			return nil
		}
	} else {
		err = c.handleReceive(b.Data())
		_ = c.pool.Release(b)

		if err != nil {
			return err
		}
	}

	if c.State() != StateTransferring {
		return nil
	}

	if err := c.replenish(); err != nil {
		return err
	}
	return c.flush()
}

func (c *Connection) handleReceive(data []byte) error {
	switch c.State() {
	case StateNegotiating:
		return c.handleNegotiateRequest(data)

	case StateTransferring:
		msg, err := c.receive(data)
		if err != nil {
			return err
		}
		if msg != nil {
			c.deliver(msg)
		}
		return nil

	default:
		return nil
	}
}

// deliver a reassembled message to the Handler and queue its reply.
func (c *Connection) deliver(msg []byte) {
	if c.handler == nil {
		c.log().WithField("size", len(msg)).Debug("No handler, dropping message")
		return
	}

	reply := c.handler.HandleMessage(c.id, msg)
	if len(reply) == 0 {
		return
	}

	if err := c.checkMessage(reply); err != nil {
		c.log().WithError(err).WithField("size", len(reply)).Error("Dropping reply")
		c.publish(newEvent(EventDropped, c, err))
		return
	}

	if !c.enqueue(reply) {
		err := newError(ErrResourceExhausted, "reply", fmt.Errorf("outbox of %d replies is full", outboxLimit))
		c.log().WithError(err).WithField("size", len(reply)).Error("Dropping reply")
		c.publish(newEvent(EventDropped, c, err))
	}
}

// handleSendRequest answers a request from Send. Only a transport failure is returned, as it is fatal.
func (c *Connection) handleSendRequest(req sendRequest) error {
	var err error

	switch {
	case c.State() != StateTransferring:
		err = newError(ErrConnectionClosed, "send", fmt.Errorf("connection is %v", c.State()))
	default:
		err = c.submit(req.payload)
		c.log().WithError(err).WithFields(log.Fields{
			"size":      len(req.payload),
			"fragments": fragments(len(req.payload), c.maxFragmentData()),
		}).Debug("Submitted message")
	}

	req.result <- err

	if errors.Is(err, ErrTransport) {
		return err
	}
	return nil
}

// handleDeadline ends a pending negotiation or a linger.
func (c *Connection) handleDeadline() error {
	if c.lingering {
		c.log().Debug("Linger timed out")
		c.finished = true
		return nil
	}

	if c.State() == StateNegotiating {
		return newError(ErrProtocol, "negotiate",
			fmt.Errorf("no NegotiateRequest within %v", c.params.NegotiateTimeout))
	}
	return nil
}

// handleKeepalive checks the time of the last received message against the keepalive interval, which errors for a
// silent peer. After half an interval without sending, a message requesting a response is sent.
func (c *Connection) handleKeepalive() error {
	if c.State() != StateTransferring {
		return nil
	}

	interval := c.params.KeepaliveInterval

	if silence := time.Since(c.lastReceive); silence >= interval {
		return newError(ErrTransport, "keepalive",
			fmt.Errorf("peer silent since %v, keepalive of %v", c.lastReceive, interval))
	}

	next := interval/2 - time.Since(c.lastSend)
	if next <= 0 {
		if err := c.sendEmpty(msgs.FlagResponseRequested); errors.Is(err, ErrResourceExhausted) {
			c.log().WithError(err).Debug("Cannot send keepalive")
		} else if err != nil {
			return err
		} else {
			c.log().Debug("Sent keepalive")
		}
		next = interval / 2
	}

	if untilDead := interval - time.Since(c.lastReceive); untilDead < next {
		next = untilDead
	}
	if next < time.Millisecond {
		next = time.Millisecond
	}

	c.keepalive.Reschedule(next)
	return nil
}
