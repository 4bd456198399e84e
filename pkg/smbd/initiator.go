// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package smbd

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/smbdirect-go/pkg/rdma"
	"github.com/dtn7/smbdirect-go/pkg/smbd/buffers"
	"github.com/dtn7/smbdirect-go/pkg/smbd/msgs"
)

// Initiator is the active side of an SMB Direct connection. It is driven by the calling goroutine: completions are
// only processed while Negotiate, Send or Receive are running.
//
// The acceptor sizes its receive buffers based on the Initiator's MaxSendSize, bounded by its own MaxReceiveSize.
// Thus, the Initiator's MaxSendSize must not exceed the acceptor's MaxReceiveSize.
type Initiator struct {
	params Parameters

	transfer
	response    msgs.NegotiateResponse
	established bool
	inbox       [][]byte
}

// NewInitiator on a connected queue pair, e.g., from a Provider's Dial. The Parameters are validated.
func NewInitiator(qp rdma.QueuePair, params Parameters) (*Initiator, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	return &Initiator{
		params: params.Clone(),
		transfer: transfer{
			qp:   qp,
			pool: buffers.NewPool(),
		},
	}, nil
}

func (i *Initiator) log() *log.Entry {
	return log.WithFields(log.Fields{
		"peer":        i.qp.RemoteAddr(),
		"established": i.established,
	})
}

// Response of the acceptor, available after Negotiate.
func (i *Initiator) Response() msgs.NegotiateResponse {
	return i.response
}

// Negotiated values, available after Negotiate.
func (i *Initiator) Negotiated() Negotiated {
	return i.negotiated
}

// Negotiate sends the NegotiateRequest and awaits the response. A response with a failure status results in an
// ErrProtocol; the response is available through Response nonetheless.
func (i *Initiator) Negotiate(ctx context.Context) (msgs.NegotiateResponse, error) {
	if i.established {
		return i.response, newError(ErrProtocol, "negotiate", fmt.Errorf("already negotiated"))
	}

	if err := i.pool.Provision(buffers.KindReceive, 1, msgs.NegotiateResponseSize); err != nil {
		return i.response, newError(ErrTransport, "negotiate", err)
	}
	if err := i.pool.Provision(buffers.KindSend, 1, msgs.NegotiateRequestSize); err != nil {
		return i.response, newError(ErrTransport, "negotiate", err)
	}

	b, err := i.pool.AcquireReceive()
	if err != nil {
		return i.response, newError(ErrTransport, "negotiate", err)
	}
	if err := i.postRecv(b); err != nil {
		return i.response, err
	}

	req := i.params.request()
	if err := i.postRaw(msgs.EncodeNegotiateRequest(req)); err != nil {
		return i.response, err
	}
	i.log().WithField("request", req).Debug("Sent NegotiateRequest")

	var data []byte
	for data == nil {
		wc, err := i.poll(ctx)
		if err != nil {
			return i.response, err
		}

		b, err := i.pool.Complete(wc.WRID, wc.ByteLen, wc.Status.Err())
		if err != nil {
			return i.response, newError(ErrTransport, "negotiate", err)
		}
		if b.Kind() == buffers.KindReceive {
			data = append([]byte{}, b.Data()...)
		}
		_ = i.pool.Release(b)
	}

	resp, err := msgs.DecodeNegotiateResponse(data)
	if err != nil {
		return i.response, newError(ErrProtocol, "negotiate", err)
	}
	i.response = resp
	i.log().WithField("response", resp).Debug("Received NegotiateResponse")

	if !resp.Status.Ok() {
		return resp, newError(ErrProtocol, "negotiate", fmt.Errorf("acceptor answered %v", resp.Status))
	}
	if resp.NegotiatedVersion < i.params.MinVersion || resp.NegotiatedVersion > i.params.MaxVersion {
		return resp, newError(ErrProtocol, "negotiate",
			fmt.Errorf("negotiated version 0x%04X is not supported", resp.NegotiatedVersion))
	}
	if resp.CreditsGranted == 0 {
		return resp, newError(ErrProtocol, "negotiate", fmt.Errorf("no credits granted"))
	}

	negotiated := Negotiated{
		Version:          resp.NegotiatedVersion,
		MaxSendSize:      i.params.MaxSendSize,
		MaxReceiveSize:   i.params.MaxReceiveSize,
		MaxReadWriteSize: resp.MaxReadWriteSize,
		CreditsGranted:   resp.CreditsGranted,
		CreditsRequested: resp.CreditsRequested,
	}
	if err := i.setup(i.params, negotiated); err != nil {
		return resp, err
	}

	i.credits.OnCreditGrantReceived(resp.CreditsGranted)
	i.credits.SetReceiveTarget(resp.CreditsRequested)
	i.established = true

	if err := i.replenish(); err != nil {
		return resp, err
	}
	if err := i.flush(); err != nil {
		return resp, err
	}

	i.log().Info("Negotiation succeeded")
	return resp, nil
}

// poll waits for the next WorkCompletion.
func (i *Initiator) poll(ctx context.Context) (rdma.WorkCompletion, error) {
	select {
	case <-ctx.Done():
		return rdma.WorkCompletion{}, ctx.Err()

	case <-i.qp.Disconnected():
		return rdma.WorkCompletion{}, newError(ErrTransport, "poll", errPeerDisconnected)

	case wc := <-i.qp.Completions():
		return wc, nil
	}
}

// step waits for and dispatches one WorkCompletion of an established connection.
func (i *Initiator) step(ctx context.Context) error {
	wc, err := i.poll(ctx)
	if err != nil {
		return err
	}

	b, err := i.pool.Complete(wc.WRID, wc.ByteLen, wc.Status.Err())
	if err != nil {
		if b != nil {
			_ = i.pool.Release(b)
		}
		return newError(ErrTransport, "completion", err)
	}

	if b.Kind() == buffers.KindReceive {
		msg, recvErr := i.receive(b.Data())
		_ = i.pool.Release(b)

		if recvErr != nil {
			return recvErr
		}
		if msg != nil {
			i.inbox = append(i.inbox, msg)
		}
	} else {
		_ = i.pool.Release(b)
	}

	if err := i.replenish(); err != nil {
		return err
	}
	return i.flush()
}

// Send an upper layer message, waiting for credits and buffers if necessary. Fragments are sent as credits arrive.
// If ctx ends before the last fragment was sent, the remainder stays queued and is sent by later calls.
func (i *Initiator) Send(ctx context.Context, payload []byte) error {
	if !i.established {
		return newError(ErrProtocol, "send", fmt.Errorf("not negotiated"))
	}
	if err := i.checkMessage(payload); err != nil {
		return err
	}

	i.outbox = append(i.outbox, &outgoing{payload: payload})
	if err := i.flush(); err != nil {
		return err
	}

	for len(i.outbox) > 0 {
		if err := i.step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// TrySend starts sending an upper layer message without waiting. An ErrResourceExhausted is returned if not even
// its first fragment can be sent or if an earlier message is still queued; the remaining fragments are sent by
// later calls.
func (i *Initiator) TrySend(payload []byte) error {
	if !i.established {
		return newError(ErrProtocol, "send", fmt.Errorf("not negotiated"))
	}
	return i.submit(payload)
}

// Receive the next upper layer message.
func (i *Initiator) Receive(ctx context.Context) ([]byte, error) {
	if !i.established {
		return nil, newError(ErrProtocol, "receive", fmt.Errorf("not negotiated"))
	}

	for len(i.inbox) == 0 {
		if err := i.step(ctx); err != nil {
			return nil, err
		}
	}

	msg := i.inbox[0]
	i.inbox[0] = nil
	i.inbox = i.inbox[1:]
	return msg, nil
}

// Keepalive sends an empty message requesting a response.
func (i *Initiator) Keepalive() error {
	if !i.established {
		return newError(ErrProtocol, "keepalive", fmt.Errorf("not negotiated"))
	}
	return i.sendEmpty(msgs.FlagResponseRequested)
}

// SendCredits currently available.
func (i *Initiator) SendCredits() int {
	if i.credits == nil {
		return 0
	}
	return i.credits.SendCredits()
}

// Close the queue pair and release all buffers.
func (i *Initiator) Close() error {
	var err error
	if qpErr := i.qp.Close(); qpErr != nil {
		err = multierror.Append(err, qpErr)
	}
	if poolErr := i.pool.Close(); poolErr != nil {
		err = multierror.Append(err, poolErr)
	}
	return err
}
