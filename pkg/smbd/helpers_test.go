// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package smbd

import (
	"errors"
	"testing"
	"time"

	"github.com/dtn7/smbdirect-go/pkg/rdma"
	"github.com/dtn7/smbdirect-go/pkg/rdma/softrdma"
	"github.com/dtn7/smbdirect-go/pkg/smbd/msgs"
)

var pipeConfig = rdma.QueuePairConfig{SendDepth: MaxCQDepth, RecvDepth: MaxCQDepth}

func newTestEngine(t *testing.T, params Parameters) *Engine {
	t.Helper()

	e, err := NewEngine(softrdma.NewProvider(), params)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

// pipeConnection accepts one side of an in-memory queue pair and returns the other one.
func pipeConnection(t *testing.T, e *Engine) (*Connection, rdma.QueuePair) {
	t.Helper()

	server, client := softrdma.Pipe(pipeConfig)

	c, err := e.accept(server, e.Parameters())
	if err != nil {
		t.Fatal(err)
	}
	return c, client
}

func waitEvent(t *testing.T, e *Engine, eventType EventType) Event {
	t.Helper()

	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev := <-e.Events():
			if ev.Type == eventType {
				return ev
			}

		case <-timeout:
			t.Fatalf("No %v event within three seconds", eventType)
			return Event{}
		}
	}
}

func waitDone(t *testing.T, c *Connection) {
	t.Helper()

	select {
	case <-c.Done():
	case <-time.After(3 * time.Second):
		t.Fatalf("Connection %v was not torn down within three seconds", c)
	}
}

// sendRetry sends payload on c, retrying while the peer's first credit grant is outstanding.
func sendRetry(t *testing.T, c *Connection, payload []byte) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for {
		err := c.Send(payload)
		if err == nil {
			return
		} else if !errors.Is(err, ErrResourceExhausted) || time.Now().After(deadline) {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func waitCompletion(t *testing.T, qp rdma.QueuePair) rdma.WorkCompletion {
	t.Helper()

	select {
	case wc := <-qp.Completions():
		return wc
	case <-time.After(3 * time.Second):
		t.Fatal("No work completion within three seconds")
		return rdma.WorkCompletion{}
	}
}

// rawNegotiate sends data as a NegotiateRequest and awaits the response. The receive buffer uses work request ID
// 1000, the send 1001.
func rawNegotiate(t *testing.T, qp rdma.QueuePair, data []byte) msgs.NegotiateResponse {
	t.Helper()

	buf := make([]byte, 64)
	if err := qp.PostRecv(1000, buf); err != nil {
		t.Fatal(err)
	}
	if err := qp.PostSend(1001, data); err != nil {
		t.Fatal(err)
	}

	for {
		wc := waitCompletion(t, qp)
		if wc.Status != rdma.WCSuccess {
			t.Fatalf("Negotiation completion failed: %v", wc)
		}
		if wc.Opcode != rdma.WCOpRecv {
			continue
		}

		resp, err := msgs.DecodeNegotiateResponse(buf[:wc.ByteLen])
		if err != nil {
			t.Fatal(err)
		}
		return resp
	}
}

func scenarioRequest() msgs.NegotiateRequest {
	return msgs.NegotiateRequest{
		MinVersion:        1,
		MaxVersion:        2,
		CreditsRequested:  4,
		PreferredSendSize: 1024,
		MaxReceiveSize:    8192,
		MaxFragmentedSize: 1048576,
	}
}

func scenarioParameters() Parameters {
	p := DefaultParameters()
	p.MinVersion, p.MaxVersion = 1, 1
	return p
}

func initiatorParameters() Parameters {
	p := DefaultParameters()
	p.MinVersion, p.MaxVersion = 1, 2
	return p
}
