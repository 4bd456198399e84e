// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rdma

import "errors"

var (
	// ErrQueuePairClosed is returned when posting to an already closed QueuePair.
	ErrQueuePairClosed = errors.New("queue pair closed")

	// ErrQueueFull is returned if a work queue has no room for another work request.
	ErrQueueFull = errors.New("work queue full")

	// ErrRejected is returned by a Dial if the remote side rejected the connect request.
	ErrRejected = errors.New("connect request rejected")
)

// DeviceAttr describes the capabilities of the device a connect request arrived on.
type DeviceAttr struct {
	// Name of the device, e.g., "mlx5_0".
	Name string

	// MaxQPWR is the maximum number of outstanding work requests per queue of a queue pair.
	MaxQPWR int

	// MaxSge is the maximum number of scatter/gather elements per work request.
	MaxSge int
}

// QueuePairConfig requests the dimensions of a new QueuePair.
type QueuePairConfig struct {
	// SendDepth is the maximum number of outstanding send work requests.
	SendDepth int

	// RecvDepth is the maximum number of outstanding receive work requests.
	RecvDepth int
}

// QueuePair of a reliable connection.
type QueuePair interface {
	// PostSend hands buf to the transport to be sent as one message. Its completion is reported with the given
	// work request ID on the Completions channel.
	PostSend(wrID uint64, buf []byte) error

	// PostRecv hands buf to the transport to be filled by the next incoming message.
	PostRecv(wrID uint64, buf []byte) error

	// Completions delivers WorkCompletions in the order the transport reports them. The channel is never closed.
	Completions() <-chan WorkCompletion

	// Disconnected is closed when the connection was lost or the peer disconnected.
	Disconnected() <-chan struct{}

	// RemoteAddr of the peer.
	RemoteAddr() string

	// Close destroys this QueuePair. Afterwards no further completion is delivered and all posted buffers are
	// owned by the caller again.
	Close() error
}

// ConnectRequest is an incoming request to establish a connection.
type ConnectRequest interface {
	// RemoteAddr of the requesting peer.
	RemoteAddr() string

	// Device this request arrived on.
	Device() DeviceAttr

	// QueueDepth requested by the peer.
	QueueDepth() int

	// Accept this request and create a QueuePair.
	Accept(config QueuePairConfig) (QueuePair, error)

	// Reject this request on the transport level.
	Reject() error
}

// Listener produces ConnectRequests for a bound address.
type Listener interface {
	// Requests delivers incoming ConnectRequests. Each one must be either accepted or rejected.
	Requests() <-chan ConnectRequest

	// Addr is the bound address.
	Addr() string

	// Close stops listening. Already accepted QueuePairs are not affected.
	Close() error
}

// Provider creates Listeners or active connections.
type Provider interface {
	// Listen binds to the given address.
	Listen(address string) (Listener, error)

	// Dial connects to a remote Listener and requests the given queue depth.
	Dial(address string, queueDepth int) (QueuePair, error)
}
