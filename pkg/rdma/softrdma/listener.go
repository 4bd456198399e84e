// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package softrdma

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/smbdirect-go/pkg/rdma"
)

// listener is bound to a TCP port and emulates incoming connect requests.
type listener struct {
	listenAddress    string
	ln               *net.TCPListener
	device           rdma.DeviceAttr
	handshakeTimeout time.Duration

	requests chan rdma.ConnectRequest

	stopSyn   chan struct{}
	stopAck   chan struct{}
	closeOnce sync.Once
}

func (listener *listener) handle() {
	defer close(listener.stopAck)

	for {
		select {
		case <-listener.stopSyn:
			_ = listener.ln.Close()
			return

		default:
			if err := listener.ln.SetDeadline(time.Now().Add(50 * time.Millisecond)); err != nil {
				log.WithError(err).WithField("listener", listener).Warn(
					"Listener failed to set deadline on TCP socket")

				_ = listener.ln.Close()
				return
			} else if conn, err := listener.ln.Accept(); err == nil {
				go listener.handshake(conn)
			}
		}
	}
}

func (listener *listener) handshake(conn net.Conn) {
	logger := log.WithFields(log.Fields{
		"listener":   listener,
		"remoteAddr": conn.RemoteAddr().String(),
	})

	if err := conn.SetDeadline(time.Now().Add(listener.handshakeTimeout)); err != nil {
		logger.WithError(err).Warn("Failed to set handshake deadline")
		_ = conn.Close()
		return
	}

	var ch connectHeader
	if err := ch.Unmarshal(conn); err != nil {
		logger.WithError(err).Info("Failed to read connect header")
		_ = conn.Close()
		return
	}

	logger.WithField("header", ch).Debug("Received connect request")

	req := &connectRequest{
		conn:       conn,
		device:     listener.device,
		queueDepth: int(ch.QueueDepth),
	}

	select {
	case listener.requests <- req:
	case <-listener.stopSyn:
		_ = req.Reject()
	}
}

func (listener *listener) Requests() <-chan rdma.ConnectRequest {
	return listener.requests
}

func (listener *listener) Addr() string {
	return listener.ln.Addr().String()
}

func (listener *listener) Close() error {
	listener.closeOnce.Do(func() {
		close(listener.stopSyn)
		<-listener.stopAck
	})
	return nil
}

func (listener *listener) String() string {
	return fmt.Sprintf("softrdma://%s", listener.listenAddress)
}

// connectRequest is a pending incoming connection which must be answered exactly once.
type connectRequest struct {
	conn       net.Conn
	device     rdma.DeviceAttr
	queueDepth int

	answered uint32
}

func (req *connectRequest) RemoteAddr() string {
	return req.conn.RemoteAddr().String()
}

func (req *connectRequest) Device() rdma.DeviceAttr {
	return req.device
}

func (req *connectRequest) QueueDepth() int {
	return req.queueDepth
}

func (req *connectRequest) Accept(config rdma.QueuePairConfig) (rdma.QueuePair, error) {
	if !atomic.CompareAndSwapUint32(&req.answered, 0, 1) {
		return nil, fmt.Errorf("connect request from %s was already answered", req.RemoteAddr())
	}

	if _, err := req.conn.Write([]byte{cmAccept}); err != nil {
		_ = req.conn.Close()
		return nil, err
	}

	if err := req.conn.SetDeadline(time.Time{}); err != nil {
		_ = req.conn.Close()
		return nil, err
	}

	return newQueuePair(req.conn, config), nil
}

func (req *connectRequest) Reject() error {
	if !atomic.CompareAndSwapUint32(&req.answered, 0, 1) {
		return fmt.Errorf("connect request from %s was already answered", req.RemoteAddr())
	}

	_, writeErr := req.conn.Write([]byte{cmReject})
	closeErr := req.conn.Close()

	if writeErr != nil {
		return writeErr
	}
	return closeErr
}
