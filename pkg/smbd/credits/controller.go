// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package credits implements the credit accounting of one SMB Direct connection.
//
// A send credit entitles the local side to send one message. Send credits are granted by the peer, piggy-backed on
// its messages. A receive credit is granted to the peer for each posted receive buffer, bounded by the receive
// credit maximum and by the peer's requested target.
//
// A Controller is not safe for concurrent use. It is owned by its connection's worker.
package credits

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrNoCreditsAvailable is returned when sending without a send credit.
	ErrNoCreditsAvailable = errors.New("no send credits available")

	// ErrCreditOverrun is returned when the peer sent a message without holding a receive credit.
	ErrCreditOverrun = errors.New("peer exceeded granted credits")
)

// Controller tracks send and receive credits.
type Controller struct {
	sendCreditsAvailable int
	sendCreditTarget     uint16

	recvCreditsGranted int
	recvCreditMax      uint16
	recvCreditTarget   uint16

	// newGrants are part of recvCreditsGranted, but were not yet announced to the peer.
	newGrants int
}

// NewController for a connection advertising sendCreditTarget and accepting at most recvCreditMax outstanding
// receive credits.
func NewController(sendCreditTarget, recvCreditMax uint16) *Controller {
	return &Controller{
		sendCreditTarget: sendCreditTarget,
		recvCreditMax:    recvCreditMax,
		recvCreditTarget: recvCreditMax,
	}
}

func (c *Controller) String() string {
	var b strings.Builder

	_, _ = fmt.Fprintf(&b, "send=%d/%d, ", c.sendCreditsAvailable, c.sendCreditTarget)
	_, _ = fmt.Fprintf(&b, "recv=%d/%d (target %d, unannounced %d)",
		c.recvCreditsGranted, c.recvCreditMax, c.recvCreditTarget, c.newGrants)

	return b.String()
}

// OnLocalSendIssued consumes one send credit. ErrNoCreditsAvailable is returned if there is none; the send must not
// be attempted then.
func (c *Controller) OnLocalSendIssued() error {
	if c.sendCreditsAvailable <= 0 {
		return ErrNoCreditsAvailable
	}

	c.sendCreditsAvailable--
	return nil
}

// OnCreditGrantReceived adds n send credits granted by the peer.
func (c *Controller) OnCreditGrantReceived(n uint16) {
	c.sendCreditsAvailable += int(n)
}

// CanSend checks if n messages may be sent with the available send credits.
func (c *Controller) CanSend(n int) bool {
	return n <= c.sendCreditsAvailable
}

// SetReceiveTarget updates the amount of receive credits the peer asks for, bounded by the receive credit maximum.
func (c *Controller) SetReceiveTarget(n uint16) {
	if n > c.recvCreditMax {
		n = c.recvCreditMax
	}
	c.recvCreditTarget = n
}

// CanGrant checks if another receive credit may be granted.
func (c *Controller) CanGrant() bool {
	limit := c.recvCreditTarget
	if c.recvCreditMax < limit {
		limit = c.recvCreditMax
	}
	return c.recvCreditsGranted < int(limit)
}

// OnLocalReceiveBufferAvailable grants a receive credit for a freshly posted receive buffer. False is returned if
// the receive credit limit was already reached; the buffer must not be posted then.
func (c *Controller) OnLocalReceiveBufferAvailable() bool {
	if !c.CanGrant() {
		return false
	}

	c.recvCreditsGranted++
	c.newGrants++
	return true
}

// OnRemoteSendReceived consumes one of the peer's receive credits for an incoming message. ErrCreditOverrun is
// returned if the peer held none.
func (c *Controller) OnRemoteSendReceived() error {
	if c.PeerCredits() <= 0 {
		return ErrCreditOverrun
	}

	c.recvCreditsGranted--
	return nil
}

// TakeNewGrants returns the receive credits not yet announced to the peer and marks them as announced.
func (c *Controller) TakeNewGrants() uint16 {
	n := c.newGrants
	if n > math.MaxUint16 {
		n = math.MaxUint16
	}

	c.newGrants -= n
	return uint16(n)
}

// PendingGrants is the amount of granted, but not yet announced, receive credits.
func (c *Controller) PendingGrants() int {
	return c.newGrants
}

// PeerCredits is the amount of receive credits the peer knows of.
func (c *Controller) PeerCredits() int {
	return c.recvCreditsGranted - c.newGrants
}

// SendCredits is the amount of available send credits.
func (c *Controller) SendCredits() int {
	return c.sendCreditsAvailable
}

// SendCreditTarget is the amount of send credits advertised to the peer.
func (c *Controller) SendCreditTarget() uint16 {
	return c.sendCreditTarget
}

// ReceiveCreditsGranted is the amount of receive credits granted, including unannounced ones.
func (c *Controller) ReceiveCreditsGranted() int {
	return c.recvCreditsGranted
}

// ReceiveCreditMax is the ceiling for ReceiveCreditsGranted.
func (c *Controller) ReceiveCreditMax() uint16 {
	return c.recvCreditMax
}

// ReceiveTarget is the amount of receive credits the peer asked for.
func (c *Controller) ReceiveTarget() uint16 {
	return c.recvCreditTarget
}
