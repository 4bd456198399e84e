// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package smbd

import (
	"fmt"
	"math"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/dtn7/smbdirect-go/pkg/smbd/msgs"
)

const (
	// Version1 is the SMB Direct protocol version 1.0.
	Version1 uint16 = 0x0100

	// DefaultPort is the well-known SMB Direct port.
	DefaultPort = 5445

	// MaxCQDepth limits the queue depth a peer may request.
	MaxCQDepth = 128

	// MinReceiveSize is the smallest acceptable receive size of any peer.
	MinReceiveSize = 128
)

// Parameters configure the engine. They are read at accept and negotiation time and never altered by the engine.
type Parameters struct {
	// MinVersion and MaxVersion of the supported protocol versions.
	MinVersion uint16
	MaxVersion uint16

	// SendCreditTarget is the amount of send credits asked from the peer. It is also the amount of send buffers.
	SendCreditTarget uint16

	// ReceiveCreditMax limits the receive credits granted to the peer. It is also the amount of receive buffers.
	ReceiveCreditMax uint16

	// MaxSendSize is the largest message to be sent, including the data transfer header.
	MaxSendSize uint32

	// MaxReceiveSize is the largest message to be received, including the data transfer header.
	MaxReceiveSize uint32

	// MaxFragmentedSize limits a reassembled message.
	MaxFragmentedSize uint32

	// MaxReadWriteSize is announced in the NegotiateResponse and limits upper layer messages in both directions.
	MaxReadWriteSize uint32

	// KeepaliveInterval after which a silent peer is considered dead. Zero disables keepalives.
	KeepaliveInterval time.Duration

	// NegotiateTimeout to wait for a NegotiateRequest after accepting a connection.
	NegotiateTimeout time.Duration

	// SecurityBlob is an opaque value handed over with the parameters.
	SecurityBlob []byte
}

// DefaultParameters with values as suggested by MS-SMBD.
func DefaultParameters() Parameters {
	return Parameters{
		MinVersion:        Version1,
		MaxVersion:        Version1,
		SendCreditTarget:  64,
		ReceiveCreditMax:  64,
		MaxSendSize:       1364,
		MaxReceiveSize:    8192,
		MaxFragmentedSize: 1048576,
		MaxReadWriteSize:  1048576,
		KeepaliveInterval: 120 * time.Second,
		NegotiateTimeout:  2 * time.Second,
	}
}

// Clone creates a deep copy.
func (p Parameters) Clone() Parameters {
	if p.SecurityBlob != nil {
		blob := make([]byte, len(p.SecurityBlob))
		copy(blob, p.SecurityBlob)
		p.SecurityBlob = blob
	}
	return p
}

func (p Parameters) String() string {
	return fmt.Sprintf(
		"Parameters(Version=[0x%04X, 0x%04X], Send Credit Target=%d, Receive Credit Max=%d, Max Send Size=%d, "+
			"Max Receive Size=%d, Max Fragmented Size=%d, Max Read Write Size=%d, Keepalive=%v, "+
			"Negotiate Timeout=%v, Security Blob=%d bytes)",
		p.MinVersion, p.MaxVersion, p.SendCreditTarget, p.ReceiveCreditMax, p.MaxSendSize,
		p.MaxReceiveSize, p.MaxFragmentedSize, p.MaxReadWriteSize, p.KeepaliveInterval,
		p.NegotiateTimeout, len(p.SecurityBlob))
}

// Validate checks all constraints and reports each violation, wrapped as an ErrConfiguration.
func (p Parameters) Validate() error {
	var errs *multierror.Error

	if p.MinVersion == 0 || p.MinVersion > p.MaxVersion {
		errs = multierror.Append(errs, fmt.Errorf("invalid version range [0x%04X, 0x%04X]", p.MinVersion, p.MaxVersion))
	}
	if p.SendCreditTarget == 0 || p.SendCreditTarget > MaxCQDepth {
		errs = multierror.Append(errs, fmt.Errorf("send credit target %d not in [1, %d]", p.SendCreditTarget, MaxCQDepth))
	}
	if p.ReceiveCreditMax == 0 || p.ReceiveCreditMax > MaxCQDepth {
		errs = multierror.Append(errs, fmt.Errorf("receive credit max %d not in [1, %d]", p.ReceiveCreditMax, MaxCQDepth))
	}
	if p.MaxSendSize < MinReceiveSize {
		errs = multierror.Append(errs, fmt.Errorf("max send size %d is below %d", p.MaxSendSize, MinReceiveSize))
	}
	if p.MaxReceiveSize < MinReceiveSize {
		errs = multierror.Append(errs, fmt.Errorf("max receive size %d is below %d", p.MaxReceiveSize, MinReceiveSize))
	}
	if p.MaxFragmentedSize < p.MaxReceiveSize {
		errs = multierror.Append(errs, fmt.Errorf("max fragmented size %d is below max receive size %d",
			p.MaxFragmentedSize, p.MaxReceiveSize))
	}
	if p.MaxReadWriteSize == 0 || p.MaxReadWriteSize > p.MaxFragmentedSize {
		errs = multierror.Append(errs, fmt.Errorf("max read write size %d not in [1, %d]",
			p.MaxReadWriteSize, p.MaxFragmentedSize))
	}
	if p.KeepaliveInterval < 0 {
		errs = multierror.Append(errs, fmt.Errorf("negative keepalive interval %v", p.KeepaliveInterval))
	}
	if p.NegotiateTimeout <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("negotiate timeout %v must be positive", p.NegotiateTimeout))
	}
	if len(p.SecurityBlob) > math.MaxUint16 {
		errs = multierror.Append(errs, fmt.Errorf("security blob of %d bytes is too large", len(p.SecurityBlob)))
	}

	if err := errs.ErrorOrNil(); err != nil {
		return newError(ErrConfiguration, "validate parameters", err)
	}
	return nil
}

// request builds the NegotiateRequest an Initiator with these Parameters sends.
func (p Parameters) request() msgs.NegotiateRequest {
	return msgs.NegotiateRequest{
		MinVersion:        p.MinVersion,
		MaxVersion:        p.MaxVersion,
		CreditsRequested:  p.SendCreditTarget,
		PreferredSendSize: p.MaxSendSize,
		MaxReceiveSize:    p.MaxReceiveSize,
		MaxFragmentedSize: p.MaxFragmentedSize,
	}
}

// Negotiated values of an established connection.
type Negotiated struct {
	Version uint16

	// MaxSendSize and MaxReceiveSize include the data transfer header.
	MaxSendSize    uint32
	MaxReceiveSize uint32

	// MaxReadWriteSize limits upper layer messages in both directions.
	MaxReadWriteSize uint32

	// CreditsGranted initially to the peer.
	CreditsGranted uint16

	// CreditsRequested by the peer.
	CreditsRequested uint16
}

// negotiate the acceptor's side of a valid request. The result's Version is only set if ok.
func (p Parameters) negotiate(req msgs.NegotiateRequest) (n Negotiated, ok bool) {
	n.Version, ok = msgs.SelectVersion(p.MinVersion, p.MaxVersion, req.MinVersion, req.MaxVersion)

	n.MaxSendSize = minUint32(req.MaxReceiveSize, p.MaxSendSize)

	n.MaxReceiveSize = minUint32(p.MaxReceiveSize, req.PreferredSendSize)
	if n.MaxReceiveSize < MinReceiveSize {
		n.MaxReceiveSize = MinReceiveSize
	}

	n.MaxReadWriteSize = minUint32(p.MaxReadWriteSize, req.MaxFragmentedSize)

	n.CreditsRequested = req.CreditsRequested
	n.CreditsGranted = req.CreditsRequested
	if p.ReceiveCreditMax < n.CreditsGranted {
		n.CreditsGranted = p.ReceiveCreditMax
	}

	return
}

// checkRequest reports a malformed NegotiateRequest.
func checkRequest(req msgs.NegotiateRequest) error {
	switch {
	case req.CreditsRequested == 0:
		return fmt.Errorf("no credits requested")
	case req.MaxReceiveSize < MinReceiveSize:
		return fmt.Errorf("max receive size %d is below %d", req.MaxReceiveSize, MinReceiveSize)
	case req.MaxFragmentedSize == 0:
		return fmt.Errorf("max fragmented size is zero")
	case req.MinVersion > req.MaxVersion:
		return fmt.Errorf("invalid version range [0x%04X, 0x%04X]", req.MinVersion, req.MaxVersion)
	default:
		return nil
	}
}

func minUint32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}
