// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package smbd

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/smbdirect-go/pkg/rdma"
)

// Listener accepts incoming connect requests for an Engine. Each accepted request results in a registered
// Connection in the Negotiating state.
type Listener struct {
	engine *Engine
	ln     rdma.Listener

	stopSyn   chan struct{}
	stopAck   chan struct{}
	closeOnce sync.Once
}

func newListener(engine *Engine, ln rdma.Listener) *Listener {
	listener := &Listener{
		engine: engine,
		ln:     ln,

		stopSyn: make(chan struct{}),
		stopAck: make(chan struct{}),
	}

	go listener.handle()

	return listener
}

func (listener *Listener) handle() {
	defer close(listener.stopAck)

	for {
		select {
		case <-listener.stopSyn:
			if err := listener.ln.Close(); err != nil {
				log.WithError(err).WithField("listener", listener).Warn("Closing transport listener errored")
			}
			return

		case req := <-listener.ln.Requests():
			listener.handleRequest(req)
		}
	}
}

// validateRequest checks a connect request against the device's capabilities and the queue depth limit.
func validateRequest(req rdma.ConnectRequest, params Parameters) error {
	if depth := req.QueueDepth(); depth < 1 || depth > MaxCQDepth {
		return fmt.Errorf("requested queue depth %d not in [1, %d]", depth, MaxCQDepth)
	}

	device := req.Device()

	need := int(params.SendCreditTarget)
	if int(params.ReceiveCreditMax) > need {
		need = int(params.ReceiveCreditMax)
	}
	if device.MaxQPWR < need {
		return fmt.Errorf("device %s supports %d work requests, %d are needed", device.Name, device.MaxQPWR, need)
	}

	if device.MaxSge < 1 {
		return fmt.Errorf("device %s supports no scatter/gather element", device.Name)
	}

	return nil
}

func (listener *Listener) handleRequest(req rdma.ConnectRequest) {
	params := listener.engine.Parameters()

	logger := log.WithFields(log.Fields{
		"listener": listener,
		"peer":     req.RemoteAddr(),
		"depth":    req.QueueDepth(),
	})

	if err := validateRequest(req, params); err != nil {
		logger.WithError(err).Info("Rejecting connect request")

		if rejectErr := req.Reject(); rejectErr != nil {
			logger.WithError(rejectErr).Debug("Rejecting connect request errored")
		}

		listener.engine.publish(Event{
			Type:       EventRejected,
			RemoteAddr: req.RemoteAddr(),
			State:      StateError,
			Err:        newError(ErrTransport, "accept", err),
		})
		return
	}

	qp, err := req.Accept(rdma.QueuePairConfig{
		SendDepth: int(params.SendCreditTarget),
		RecvDepth: int(params.ReceiveCreditMax),
	})
	if err != nil {
		logger.WithError(err).Warn("Accepting connect request failed")
		return
	}

	if _, err := listener.engine.accept(qp, params); err != nil {
		logger.WithError(err).Warn("Setting up connection failed")
		_ = qp.Close()
	}
}

// Addr of the underlying transport listener.
func (listener *Listener) Addr() string {
	return listener.ln.Addr()
}

// Close stops accepting connect requests. Existing Connections are not affected.
func (listener *Listener) Close() error {
	listener.closeOnce.Do(func() {
		close(listener.stopSyn)
		<-listener.stopAck
	})
	return nil
}

func (listener *Listener) String() string {
	return fmt.Sprintf("smbd://%s", listener.ln.Addr())
}
