// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package control

import (
	"errors"
	"fmt"
	"io"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/smbdirect-go/pkg/smbd"
)

// ErrNotSpecified is returned by control operations without defined semantics.
var ErrNotSpecified = errors.New("control operation is not specified")

// Device is the control interface of an Engine.
type Device struct {
	// Port to listen on, smbd.DefaultPort unless altered before Listen.
	Port int

	engine      *smbd.Engine
	bindAddress string

	mutex       sync.Mutex
	initialized bool
}

// NewDevice for an Engine, listening on the given bind address.
func NewDevice(engine *smbd.Engine, bindAddress string) *Device {
	return &Device{
		Port:        smbd.DefaultPort,
		engine:      engine,
		bindAddress: bindAddress,
	}
}

// Engine controlled by this Device.
func (d *Device) Engine() *smbd.Engine {
	return d.engine
}

// SetParams installs a parameter block and marks this Device as initialized. Invalid parameters are rejected and the
// prior block stays in place.
func (d *Device) SetParams(params smbd.Parameters) error {
	if err := d.engine.SetParameters(params); err != nil {
		log.WithError(err).Warn("Device rejected parameters")
		return err
	}

	d.mutex.Lock()
	d.initialized = true
	d.mutex.Unlock()

	return nil
}

// Initialized checks if SetParams succeeded at least once.
func (d *Device) Initialized() bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return d.initialized
}

// Listen for connect requests. The Device must be initialized.
func (d *Device) Listen() (*smbd.Listener, error) {
	if !d.Initialized() {
		return nil, fmt.Errorf("listen: device has no parameters: %w", smbd.ErrConfiguration)
	}

	return d.engine.Listen(d.bindAddress, d.Port)
}

// GetMemParams is reserved.
func (d *Device) GetMemParams() error {
	return ErrNotSpecified
}

// SetSessionID is reserved.
func (d *Device) SetSessionID(uint64) error {
	return ErrNotSpecified
}

// WriteStatus writes the amount of live connections followed by one line per connection.
func (d *Device) WriteStatus(w io.Writer) error {
	snapshots := d.engine.Registry().Snapshots()

	if _, err := fmt.Fprintf(w, "Connection Count = %d\n", len(snapshots)); err != nil {
		return err
	}

	for _, s := range snapshots {
		line := fmt.Sprintf("Session %d: %s %v", s.SessionID, s.RemoteAddr, s.State)
		if n := s.Negotiated; n != nil {
			line += fmt.Sprintf(" (version 0x%04X, send %d, receive %d, read write %d)",
				n.Version, n.MaxSendSize, n.MaxReceiveSize, n.MaxReadWriteSize)
		}

		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}

	return nil
}

// Close stops listening. Connections stay alive until their Engine is closed.
func (d *Device) Close() error {
	return d.engine.StopListening()
}
