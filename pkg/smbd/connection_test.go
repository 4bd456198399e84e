// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package smbd

import (
	"errors"
	"testing"
	"time"

	"github.com/dtn7/smbdirect-go/pkg/rdma"
	"github.com/dtn7/smbdirect-go/pkg/smbd/credits"
	"github.com/dtn7/smbdirect-go/pkg/smbd/msgs"
)

func TestNegotiateSuccess(t *testing.T) {
	e := newTestEngine(t, scenarioParameters())
	defer e.Close()

	c, client := pipeConnection(t, e)
	defer client.Close()

	waitEvent(t, e, EventAccepted)
	if s := c.State(); s != StateNegotiating && s != StateTransferring {
		t.Fatalf("New connection is %v", s)
	}

	resp := rawNegotiate(t, client, msgs.EncodeNegotiateRequest(scenarioRequest()))

	expected := msgs.NegotiateResponse{
		MinVersion:        1,
		MaxVersion:        1,
		NegotiatedVersion: 1,
		CreditsRequested:  64,
		CreditsGranted:    4,
		Status:            msgs.StatusSuccess,
		MaxReadWriteSize:  1048576,
	}
	if resp != expected {
		t.Fatalf("Expected %v, got %v", expected, resp)
	}

	waitEvent(t, e, EventEstablished)
	if s := c.State(); s != StateTransferring {
		t.Fatalf("Connection is %v instead of transferring", s)
	}

	n, ok := c.Negotiated()
	if !ok {
		t.Fatal("No negotiated values")
	}
	if n.MaxSendSize != 1364 || n.MaxReceiveSize != 1024 {
		t.Fatalf("Unexpected negotiated sizes: %v", n)
	}
}

func TestNegotiateNoCommonVersion(t *testing.T) {
	e := newTestEngine(t, scenarioParameters())
	defer e.Close()

	c, client := pipeConnection(t, e)
	defer client.Close()

	req := scenarioRequest()
	req.MinVersion, req.MaxVersion = 3, 4

	resp := rawNegotiate(t, client, msgs.EncodeNegotiateRequest(req))
	if resp.Status != msgs.StatusNotSupported {
		t.Fatalf("Expected STATUS_NOT_SUPPORTED, got %v", resp.Status)
	}

	ev := waitEvent(t, e, EventFailed)
	if !errors.Is(ev.Err, ErrProtocol) {
		t.Fatalf("Expected a protocol error, got %v", ev.Err)
	}

	waitDone(t, c)
	if s := c.State(); s != StateError {
		t.Fatalf("Connection is %v instead of error", s)
	}
	if _, ok := e.Registry().Get(c.ID()); ok {
		t.Fatal("Failed connection is still registered")
	}
}

func TestNegotiateMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"bad reserved", []byte{0x00, 0x01, 0x00, 0x02, 0x00, 0x01, 0x00, 0x04, 0x00, 0x00, 0x04, 0x00,
			0x00, 0x00, 0x20, 0x00, 0x00, 0x10, 0x00, 0x00}},
		{"too short", []byte{0x00, 0x01, 0x00, 0x02}},
		{"oversized", make([]byte, 64)},
		{"no credits", []byte{0x00, 0x01, 0x00, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x04, 0x00,
			0x00, 0x00, 0x20, 0x00, 0x00, 0x10, 0x00, 0x00}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			e := newTestEngine(t, scenarioParameters())
			defer e.Close()

			c, client := pipeConnection(t, e)
			defer client.Close()

			if err := client.PostRecv(1, make([]byte, 64)); err != nil {
				t.Fatal(err)
			}
			if err := client.PostSend(2, test.data); err != nil {
				t.Fatal(err)
			}

			waitEvent(t, e, EventFailed)
			waitDone(t, c)

			// No response may arrive, the posted receive is flushed.
			for {
				wc := waitCompletion(t, client)
				if wc.Opcode == rdma.WCOpRecv {
					if wc.Status == rdma.WCSuccess {
						t.Fatalf("Received a response to a malformed request: %v", wc)
					}
					break
				}
			}
		})
	}
}

func TestNegotiateTimeout(t *testing.T) {
	params := scenarioParameters()
	params.NegotiateTimeout = 100 * time.Millisecond

	e := newTestEngine(t, params)
	defer e.Close()

	c, client := pipeConnection(t, e)
	defer client.Close()

	ev := waitEvent(t, e, EventFailed)
	if !errors.Is(ev.Err, ErrProtocol) {
		t.Fatalf("Expected a protocol error, got %v", ev.Err)
	}
	waitDone(t, c)

	if n := e.Registry().Len(); n != 0 {
		t.Fatalf("Registry holds %d connections", n)
	}
}

func TestDisconnectWhileNegotiating(t *testing.T) {
	e := newTestEngine(t, scenarioParameters())
	defer e.Close()

	c, client := pipeConnection(t, e)
	_ = client.Close()

	ev := waitEvent(t, e, EventFailed)
	if !errors.Is(ev.Err, ErrTransport) {
		t.Fatalf("Expected a transport error, got %v", ev.Err)
	}
	waitDone(t, c)
}

func TestCreditOverrun(t *testing.T) {
	e := newTestEngine(t, scenarioParameters())
	defer e.Close()

	c, client := pipeConnection(t, e)
	defer client.Close()

	resp := rawNegotiate(t, client, msgs.EncodeNegotiateRequest(scenarioRequest()))
	if resp.CreditsGranted != 4 {
		t.Fatalf("Granted %d credits instead of 4", resp.CreditsGranted)
	}
	waitEvent(t, e, EventEstablished)

	// The fifth message exceeds the four granted credits.
	for i := 0; i < 5; i++ {
		dtm := msgs.DataTransferMessage{CreditsRequested: 4, Data: []byte("x")}
		buf := make([]byte, dtm.Len())
		if _, err := dtm.EncodeTo(buf); err != nil {
			t.Fatal(err)
		}
		if err := client.PostSend(uint64(i), buf); err != nil {
			t.Fatal(err)
		}
	}

	ev := waitEvent(t, e, EventFailed)
	if !errors.Is(ev.Err, ErrProtocol) || !errors.Is(ev.Err, credits.ErrCreditOverrun) {
		t.Fatalf("Expected a credit overrun, got %v", ev.Err)
	}
	waitDone(t, c)
}

func TestTeardownIdempotent(t *testing.T) {
	e := newTestEngine(t, scenarioParameters())
	defer e.Close()

	c, client := pipeConnection(t, e)
	defer client.Close()

	rawNegotiate(t, client, msgs.EncodeNegotiateRequest(scenarioRequest()))
	waitEvent(t, e, EventEstablished)

	err1 := c.Close()
	owned1, len1 := c.pool.Owned(), e.Registry().Len()

	err2 := c.Close()
	owned2, len2 := c.pool.Owned(), e.Registry().Len()

	if err1 != err2 || owned1 != owned2 || len1 != len2 {
		t.Fatalf("Second teardown differs: (%v, %d, %d) != (%v, %d, %d)", err1, owned1, len1, err2, owned2, len2)
	}
	if owned1 != 0 || len1 != 0 {
		t.Fatalf("Teardown left %d buffers and %d registered connections", owned1, len1)
	}
	if s := c.State(); s != StateError {
		t.Fatalf("Closed connection is %v", s)
	}

	if err := c.Send([]byte("late")); !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("Expected ErrConnectionClosed, got %v", err)
	}
}

func TestEventsAfterRemoval(t *testing.T) {
	e := newTestEngine(t, scenarioParameters())
	defer e.Close()

	c, client := pipeConnection(t, e)
	defer client.Close()

	waitEvent(t, e, EventAccepted)
	_ = c.Close()

	ev := waitEvent(t, e, EventRemoved)
	if ev.SessionID != c.ID() || ev.State != StateError {
		t.Fatalf("Unexpected removal event %v", ev)
	}

	// A local close is no failure.
	select {
	case ev := <-e.Events():
		t.Fatalf("Unexpected event after removal: %v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestReceiveErrorWhileTransferring(t *testing.T) {
	e := newTestEngine(t, scenarioParameters())
	defer e.Close()

	c, client := pipeConnection(t, e)
	defer client.Close()

	rawNegotiate(t, client, msgs.EncodeNegotiateRequest(scenarioRequest()))
	waitEvent(t, e, EventEstablished)

	n, _ := c.Negotiated()

	// The frame exceeds the negotiated receive size, failing the receive completion.
	dtm := msgs.DataTransferMessage{CreditsRequested: 4, Data: make([]byte, 2*n.MaxReceiveSize)}
	buf := make([]byte, dtm.Len())
	if _, err := dtm.EncodeTo(buf); err != nil {
		t.Fatal(err)
	}
	if err := client.PostSend(1, buf); err != nil {
		t.Fatal(err)
	}

	ev := waitEvent(t, e, EventFailed)
	if !errors.Is(ev.Err, ErrTransport) {
		t.Fatalf("Expected a transport error, got %v", ev.Err)
	}
	waitDone(t, c)

	if n := e.Registry().Len(); n != 0 {
		t.Fatalf("Registry holds %d connections", n)
	}
	if n := c.pool.Owned(); n != 0 {
		t.Fatalf("Teardown left %d buffers", n)
	}
}
