// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package smbd

import (
	"errors"
	"fmt"
	"time"

	"github.com/dtn7/smbdirect-go/pkg/rdma"
	"github.com/dtn7/smbdirect-go/pkg/smbd/buffers"
	"github.com/dtn7/smbdirect-go/pkg/smbd/credits"
	"github.com/dtn7/smbdirect-go/pkg/smbd/msgs"
)

// outboxLimit bounds the replies waiting for send credits.
const outboxLimit = 16

// outgoing is an upper layer message sent fragment by fragment.
type outgoing struct {
	payload []byte
	offset  int
}

var errPeerDisconnected = errors.New("peer disconnected")

// transfer is the data transfer machinery shared by both sides of a connection, the acceptor's Connection and the
// Initiator. It is owned by a single goroutine.
type transfer struct {
	qp      rdma.QueuePair
	pool    *buffers.Pool
	credits *credits.Controller

	negotiated  Negotiated
	reassembler reassembler

	outbox       []*outgoing
	replyPending bool

	// lastEmpty is set if the last received message neither carried data nor requested a response.
	lastEmpty bool

	lastSend    time.Time
	lastReceive time.Time
}

// setup provisions the buffers for the negotiated sizes and posts the initial receives. Existing buffers are retired.
func (t *transfer) setup(params Parameters, negotiated Negotiated) error {
	t.negotiated = negotiated
	t.credits = credits.NewController(params.SendCreditTarget, params.ReceiveCreditMax)
	t.reassembler = newReassembler(params.MaxFragmentedSize)

	if err := t.pool.Provision(buffers.KindSend, int(params.SendCreditTarget), int(negotiated.MaxSendSize)); err != nil {
		return newError(ErrTransport, "provision send buffers", err)
	}
	if err := t.pool.Provision(buffers.KindReceive, int(params.ReceiveCreditMax), int(negotiated.MaxReceiveSize)); err != nil {
		return newError(ErrTransport, "provision receive buffers", err)
	}

	t.lastSend = time.Now()
	t.lastReceive = time.Now()

	return nil
}

// postRecv hands an acquired receive buffer to the transport.
func (t *transfer) postRecv(b *buffers.Buffer) error {
	if err := t.pool.Post(b, 0); err != nil {
		return newError(ErrTransport, "post receive", err)
	}
	if err := t.qp.PostRecv(b.ID(), b.Bytes()); err != nil {
		return newError(ErrTransport, "post receive", err)
	}
	return nil
}

// postSend hands the first n bytes of an acquired send buffer to the transport.
func (t *transfer) postSend(b *buffers.Buffer, n int) error {
	if err := t.pool.Post(b, n); err != nil {
		return newError(ErrTransport, "post send", err)
	}
	if err := t.qp.PostSend(b.ID(), b.Data()); err != nil {
		return newError(ErrTransport, "post send", err)
	}
	t.lastSend = time.Now()
	return nil
}

// postRaw sends a negotiation message, which is not subject to credits.
func (t *transfer) postRaw(data []byte) error {
	b, err := t.pool.AcquireSend(len(data))
	if err != nil {
		return newError(ErrResourceExhausted, "send negotiation message", err)
	}

	n := copy(b.Bytes(), data)
	return t.postSend(b, n)
}

// replenish posts receive buffers as long as receive credits may be granted.
func (t *transfer) replenish() error {
	for t.pool.Available(buffers.KindReceive) > 0 && t.credits.CanGrant() {
		b, err := t.pool.AcquireReceive()
		if err != nil {
			return newError(ErrTransport, "replenish", err)
		}
		if err := t.postRecv(b); err != nil {
			return err
		}
		t.credits.OnLocalReceiveBufferAvailable()
	}
	return nil
}

// maxFragmentData is the amount of data fitting in one message.
func (t *transfer) maxFragmentData() int {
	return int(t.negotiated.MaxSendSize) - msgs.DataTransferHeaderSize
}

// checkMessage ensures an upper layer message may be sent on this connection at all.
func (t *transfer) checkMessage(payload []byte) error {
	if len(payload) == 0 {
		return newError(ErrProtocol, "send", fmt.Errorf("empty message"))
	}
	if uint64(len(payload)) > uint64(t.negotiated.MaxReadWriteSize) {
		return newError(ErrProtocol, "send",
			fmt.Errorf("message of %d bytes exceeds max read write size %d", len(payload), t.negotiated.MaxReadWriteSize))
	}
	return nil
}

// canIssue checks if one more message may be sent now. The last send credit is kept for a message announcing new
// grants.
func (t *transfer) canIssue() error {
	switch sendCredits := t.credits.SendCredits(); {
	case sendCredits == 0:
		return newError(ErrResourceExhausted, "send", credits.ErrNoCreditsAvailable)
	case sendCredits == 1 && t.credits.PendingGrants() == 0:
		return newError(ErrResourceExhausted, "send",
			fmt.Errorf("last send credit is kept for a credit grant: %w", credits.ErrNoCreditsAvailable))
	}

	if t.pool.Available(buffers.KindSend) == 0 {
		return newError(ErrResourceExhausted, "send", buffers.ErrPoolExhausted)
	}
	return nil
}

// acquireSendBuffer for one message of the given length. A send credit is required but not yet consumed.
func (t *transfer) acquireSendBuffer(length int) (*buffers.Buffer, error) {
	if !t.credits.CanSend(1) {
		return nil, newError(ErrResourceExhausted, "acquire send buffer", credits.ErrNoCreditsAvailable)
	}

	b, err := t.pool.AcquireSend(length)
	if err != nil {
		return nil, newError(ErrResourceExhausted, "acquire send buffer", err)
	}
	return b, nil
}

// sendFragment encodes and posts one data transfer message, consuming a send credit and announcing new grants. Any
// message answers a requested response.
func (t *transfer) sendFragment(flags uint16, remaining uint32, data []byte) error {
	b, err := t.acquireSendBuffer(msgs.DataTransferHeaderSize + len(data))
	if err != nil {
		return err
	}

	if err := t.credits.OnLocalSendIssued(); err != nil {
		_ = t.pool.Release(b)
		return newError(ErrResourceExhausted, "send", err)
	}

	dtm := msgs.DataTransferMessage{
		CreditsRequested:    t.credits.SendCreditTarget(),
		CreditsGranted:      t.credits.TakeNewGrants(),
		Flags:               flags,
		RemainingDataLength: remaining,
		Data:                data,
	}

	n, err := dtm.EncodeTo(b.Bytes())
	if err != nil {
		_ = t.pool.Release(b)
		return newError(ErrTransport, "send", err)
	}

	if err := t.postSend(b, n); err != nil {
		return err
	}

	t.replyPending = false
	return nil
}

// submit queues an upper layer message and starts sending it. An ErrResourceExhausted is returned if earlier
// messages are still queued or if not even the first fragment can be sent; nothing is queued then. Otherwise the
// remaining fragments follow as credits arrive.
func (t *transfer) submit(payload []byte) error {
	if err := t.checkMessage(payload); err != nil {
		return err
	}
	if len(t.outbox) > 0 {
		return newError(ErrResourceExhausted, "send", fmt.Errorf("%d messages are waiting for credits", len(t.outbox)))
	}
	if err := t.canIssue(); err != nil {
		return err
	}

	t.outbox = append(t.outbox, &outgoing{payload: payload})
	return t.sendQueued()
}

// enqueue a message to be sent as soon as credits allow. False is returned if the outbox is full.
func (t *transfer) enqueue(message []byte) bool {
	if len(t.outbox) >= outboxLimit {
		return false
	}
	t.outbox = append(t.outbox, &outgoing{payload: message})
	return true
}

// sendQueued sends the fragments of queued messages in order, as far as credits and send buffers allow. A fragment
// leaving at most one send credit requests a response, so the peer answers with its pending grants.
func (t *transfer) sendQueued() error {
	perFragment := t.maxFragmentData()

	for len(t.outbox) > 0 {
		out := t.outbox[0]

		for out.offset < len(out.payload) {
			if t.canIssue() != nil {
				return nil
			}

			end := out.offset + perFragment
			if end > len(out.payload) {
				end = len(out.payload)
			}

			var flags uint16
			if t.credits.SendCredits() <= 2 {
				flags = msgs.FlagResponseRequested
			}

			if err := t.sendFragment(flags, uint32(len(out.payload)-end), out.payload[out.offset:end]); err != nil {
				return err
			}
			out.offset = end
		}

		t.outbox[0] = nil
		t.outbox = t.outbox[1:]
	}

	return nil
}

// sendEmpty sends a message without data, e.g., a keepalive or a credit grant.
func (t *transfer) sendEmpty(flags uint16) error {
	if err := t.canIssue(); err != nil {
		return err
	}
	return t.sendFragment(flags, 0, nil)
}

// flush sends queued fragments, answers a requested response and announces pending grants to a starving peer.
// Missing credits or buffers are not an error; the remaining work waits for the next call. Grants are not announced
// in response to an empty message, otherwise two peers could bounce empty messages forever. A grant spending the
// last send credit requests a response to get credits back.
func (t *transfer) flush() error {
	if err := t.sendQueued(); err != nil {
		return err
	}

	if t.replyPending {
		if err := t.sendEmpty(0); err != nil && !errors.Is(err, ErrResourceExhausted) {
			return err
		}
	}

	if !t.lastEmpty && t.credits.PeerCredits() == 0 && t.credits.PendingGrants() > 0 {
		var flags uint16
		if t.credits.SendCredits() == 1 {
			flags = msgs.FlagResponseRequested
		}

		if err := t.sendEmpty(flags); err != nil && !errors.Is(err, ErrResourceExhausted) {
			return err
		}
	}

	return nil
}

// receive interprets a data transfer message. A complete upper layer message is returned, otherwise nil.
func (t *transfer) receive(data []byte) ([]byte, error) {
	dtm, err := msgs.DecodeDataTransfer(data)
	if err != nil {
		return nil, newError(ErrProtocol, "receive", err)
	}

	if err := t.credits.OnRemoteSendReceived(); err != nil {
		return nil, newError(ErrProtocol, "receive", err)
	}

	t.lastReceive = time.Now()
	t.credits.OnCreditGrantReceived(dtm.CreditsGranted)
	t.credits.SetReceiveTarget(dtm.CreditsRequested)

	if dtm.ResponseRequested() {
		t.replyPending = true
	}
	t.lastEmpty = len(dtm.Data) == 0 && !dtm.ResponseRequested()

	switch {
	case len(dtm.Data) == 0 && dtm.RemainingDataLength == 0:
		return nil, nil

	case len(dtm.Data) == 0:
		return nil, newError(ErrProtocol, "receive",
			fmt.Errorf("empty fragment announces %d remaining bytes", dtm.RemainingDataLength))

	default:
		msg, err := t.reassembler.add(dtm)
		if err != nil {
			return nil, newError(ErrProtocol, "receive", err)
		}
		return msg, nil
	}
}
