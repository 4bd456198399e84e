// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package smbd

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/smbdirect-go/pkg/rdma"
)

// eventBuffer is the capacity of the Events channel.
const eventBuffer = 64

// Engine owns the Parameters, the Registry and the Listener of an SMB Direct endpoint.
type Engine struct {
	provider rdma.Provider
	registry *Registry
	events   chan Event

	mutex    sync.RWMutex
	params   Parameters
	handler  Handler
	listener *Listener

	nextSession uint64
}

// NewEngine for a transport. The Parameters are validated.
func NewEngine(provider rdma.Provider, params Parameters) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	return &Engine{
		provider: provider,
		registry: NewRegistry(),
		events:   make(chan Event, eventBuffer),
		params:   params.Clone(),
	}, nil
}

// Parameters currently in use.
func (e *Engine) Parameters() Parameters {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return e.params.Clone()
}

// SetParameters replaces the Parameters for Connections accepted afterwards. Invalid Parameters are rejected and
// the prior ones stay in place.
func (e *Engine) SetParameters(params Parameters) error {
	if err := params.Validate(); err != nil {
		return err
	}

	e.mutex.Lock()
	e.params = params.Clone()
	e.mutex.Unlock()

	log.WithField("params", params).Info("Engine parameters updated")
	return nil
}

// SetHandler for messages of Connections accepted afterwards.
func (e *Engine) SetHandler(handler Handler) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.handler = handler
}

// Listen for connect requests. An ErrBind is returned if already listening or if the address cannot be claimed.
func (e *Engine) Listen(bindAddress string, port int) (*Listener, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.listener != nil {
		return nil, newError(ErrBind, "listen", fmt.Errorf("already listening on %s", e.listener.Addr()))
	}

	address := net.JoinHostPort(bindAddress, strconv.Itoa(port))
	ln, err := e.provider.Listen(address)
	if err != nil {
		return nil, newError(ErrBind, "listen", err)
	}

	e.listener = newListener(e, ln)

	log.WithField("address", ln.Addr()).Info("Engine started listening")
	return e.listener, nil
}

// Listener is the active Listener or nil.
func (e *Engine) Listener() *Listener {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return e.listener
}

// StopListening closes the active Listener, if any. Existing Connections are not affected.
func (e *Engine) StopListening() error {
	e.mutex.Lock()
	listener := e.listener
	e.listener = nil
	e.mutex.Unlock()

	if listener == nil {
		return nil
	}

	log.WithField("listener", listener).Info("Engine stops listening")
	return listener.Close()
}

// Registry of the live Connections.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Events of all Connections. Events are dropped if nobody reads them.
func (e *Engine) Events() <-chan Event {
	return e.events
}

func (e *Engine) publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	select {
	case e.events <- ev:
	default:
		log.WithField("event", ev).Debug("Event channel is full, dropping event")
	}
}

// accept sets up, registers and starts a Connection for an accepted queue pair.
func (e *Engine) accept(qp rdma.QueuePair, params Parameters) (*Connection, error) {
	e.mutex.RLock()
	handler := e.handler
	e.mutex.RUnlock()

	id := atomic.AddUint64(&e.nextSession, 1)

	c, err := newConnection(id, qp, params, e.registry, handler, e.publish)
	if err != nil {
		return nil, err
	}

	if err := e.registry.Insert(c); err != nil {
		// The negotiation receive is still posted.
		_ = qp.Close()
		_ = c.pool.Close()
		return nil, err
	}

	c.log().Info("Accepted connection")
	e.publish(newEvent(EventAccepted, c, nil))

	c.start()
	return c, nil
}

// Close stops listening and tears down every Connection.
func (e *Engine) Close() error {
	var err error

	if listenErr := e.StopListening(); listenErr != nil {
		err = multierror.Append(err, listenErr)
	}
	if teardownErr := e.registry.TeardownAll(); teardownErr != nil {
		err = multierror.Append(err, teardownErr)
	}

	return err
}
