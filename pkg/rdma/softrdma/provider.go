// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package softrdma

import (
	"fmt"
	"io"
	"math"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/smbdirect-go/pkg/rdma"
)

// DefaultDevice is announced for connect requests if a Provider has no other Device configured.
var DefaultDevice = rdma.DeviceAttr{
	Name:    "softrdma0",
	MaxQPWR: 1024,
	MaxSge:  1,
}

// Provider implements rdma.Provider on top of TCP.
type Provider struct {
	// Device is reported for each incoming connect request.
	Device rdma.DeviceAttr

	// HandshakeTimeout bounds the connect request exchange.
	HandshakeTimeout time.Duration
}

// NewProvider creates a Provider for the DefaultDevice.
func NewProvider() *Provider {
	return &Provider{
		Device:           DefaultDevice,
		HandshakeTimeout: 3 * time.Second,
	}
}

// Listen on a TCP address, e.g., ":5445".
func (p *Provider) Listen(address string) (rdma.Listener, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return nil, err
	}

	ln, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return nil, err
	}

	listener := &listener{
		listenAddress:    address,
		ln:               ln,
		device:           p.Device,
		handshakeTimeout: p.HandshakeTimeout,

		requests: make(chan rdma.ConnectRequest, 16),

		stopSyn: make(chan struct{}),
		stopAck: make(chan struct{}),
	}
	go listener.handle()

	log.WithFields(log.Fields{
		"address": listener.Addr(),
		"device":  p.Device.Name,
	}).Debug("softrdma listener started")

	return listener, nil
}

// Dial a remote Listener.
func (p *Provider) Dial(address string, queueDepth int) (rdma.QueuePair, error) {
	conn, err := net.DialTimeout("tcp", address, p.HandshakeTimeout)
	if err != nil {
		return nil, err
	}

	return Connect(conn, queueDepth, p.HandshakeTimeout)
}

// Connect performs the active side of the connect request exchange on an established stream connection. The
// connection is closed if the exchange fails.
func Connect(conn net.Conn, queueDepth int, timeout time.Duration) (rdma.QueuePair, error) {
	if queueDepth < 1 || queueDepth > math.MaxUint16 {
		_ = conn.Close()
		return nil, fmt.Errorf("queue depth %d is out of range", queueDepth)
	}

	if timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}

	if err := (connectHeader{QueueDepth: uint16(queueDepth)}).Marshal(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}

	var answer [1]byte
	if _, err := io.ReadFull(conn, answer[:]); err != nil {
		_ = conn.Close()
		return nil, err
	}

	switch answer[0] {
	case cmAccept:
	case cmReject:
		_ = conn.Close()
		return nil, rdma.ErrRejected
	default:
		_ = conn.Close()
		return nil, fmt.Errorf("unknown connect answer 0x%02x", answer[0])
	}

	if err := conn.SetDeadline(time.Time{}); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return newQueuePair(conn, rdma.QueuePairConfig{SendDepth: queueDepth, RecvDepth: queueDepth}), nil
}

// Pipe creates two connected QueuePairs in memory.
func Pipe(config rdma.QueuePairConfig) (rdma.QueuePair, rdma.QueuePair) {
	a, b := net.Pipe()
	return newQueuePair(a, config), newQueuePair(b, config)
}
