// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package smbd

import (
	"fmt"

	"github.com/dtn7/smbdirect-go/pkg/smbd/msgs"
)

// handleNegotiateRequest answers the first message of a Connection. A malformed request is fatal without a
// response. Without a common version, a failure response is sent and the Connection lingers until it was sent.
func (c *Connection) handleNegotiateRequest(data []byte) error {
	req, err := msgs.DecodeNegotiateRequest(data)
	if err != nil {
		return newError(ErrProtocol, "negotiate", err)
	}
	if err := checkRequest(req); err != nil {
		return newError(ErrProtocol, "negotiate", err)
	}

	c.log().WithField("request", req).Debug("Received NegotiateRequest")

	negotiated, ok := c.params.negotiate(req)
	if !ok {
		return c.refuseNegotiation(req)
	}

	if err := c.setup(c.params, negotiated); err != nil {
		return err
	}

	c.credits.SetReceiveTarget(negotiated.CreditsGranted)
	if err := c.replenish(); err != nil {
		return err
	}

	resp := msgs.NegotiateResponse{
		MinVersion:        c.params.MinVersion,
		MaxVersion:        c.params.MaxVersion,
		NegotiatedVersion: negotiated.Version,
		CreditsRequested:  c.params.SendCreditTarget,
		CreditsGranted:    c.credits.TakeNewGrants(),
		Status:            msgs.StatusSuccess,
		MaxReadWriteSize:  negotiated.MaxReadWriteSize,
	}
	if err := c.postRaw(msgs.EncodeNegotiateResponse(resp)); err != nil {
		return err
	}

	c.log().WithField("response", resp).Debug("Sent NegotiateResponse")

	c.published.Store(negotiated)
	c.deadline.Stop()
	c.setState(StateTransferring)

	if c.params.KeepaliveInterval > 0 {
		c.keepalive.Reschedule(c.params.KeepaliveInterval / 2)
	}

	c.publish(newEvent(EventEstablished, c, nil))
	return nil
}

// refuseNegotiation sends a failure response and lets the Connection linger in its Error state.
func (c *Connection) refuseNegotiation(req msgs.NegotiateRequest) error {
	c.fail(newError(ErrProtocol, "negotiate", fmt.Errorf(
		"no common version of [0x%04X, 0x%04X] and [0x%04X, 0x%04X]",
		c.params.MinVersion, c.params.MaxVersion, req.MinVersion, req.MaxVersion)))

	resp := msgs.NegotiateResponse{
		MinVersion: c.params.MinVersion,
		MaxVersion: c.params.MaxVersion,
		Status:     msgs.StatusNotSupported,
	}
	if err := c.postRaw(msgs.EncodeNegotiateResponse(resp)); err != nil {
		c.log().WithError(err).Warn("Failed to send failure response")
		c.finished = true
		return nil
	}

	c.lingering = true
	c.deadline.Reschedule(c.params.NegotiateTimeout)
	return nil
}
