// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package softrdma

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/dtn7/smbdirect-go/pkg/rdma"
)

func waitCompletion(t *testing.T, qp rdma.QueuePair) rdma.WorkCompletion {
	t.Helper()

	select {
	case wc := <-qp.Completions():
		return wc
	case <-time.After(time.Second):
		t.Fatal("No work completion within a second")
		return rdma.WorkCompletion{}
	}
}

func waitDisconnected(t *testing.T, qp rdma.QueuePair) {
	t.Helper()

	select {
	case <-qp.Disconnected():
	case <-time.After(time.Second):
		t.Fatal("Queue pair was not disconnected within a second")
	}
}

func TestQueuePairSendRecv(t *testing.T) {
	a, b := Pipe(rdma.QueuePairConfig{SendDepth: 4, RecvDepth: 4})
	defer a.Close()
	defer b.Close()

	buf := make([]byte, 64)
	if err := b.PostRecv(1, buf); err != nil {
		t.Fatal(err)
	}
	if err := a.PostSend(7, []byte("hello")); err != nil {
		t.Fatal(err)
	}

	if wc := waitCompletion(t, a); wc.WRID != 7 || wc.Opcode != rdma.WCOpSend || wc.Status != rdma.WCSuccess {
		t.Fatalf("Unexpected send completion: %v", wc)
	}

	wc := waitCompletion(t, b)
	if wc.WRID != 1 || wc.Opcode != rdma.WCOpRecv || wc.Status != rdma.WCSuccess || wc.ByteLen != 5 {
		t.Fatalf("Unexpected receive completion: %v", wc)
	}
	if s := string(buf[:wc.ByteLen]); s != "hello" {
		t.Fatalf("Received %q instead of hello", s)
	}
}

func TestQueuePairBacklog(t *testing.T) {
	a, b := Pipe(rdma.QueuePairConfig{SendDepth: 4, RecvDepth: 4})
	defer a.Close()
	defer b.Close()

	for i, msg := range []string{"one", "two"} {
		if err := a.PostSend(uint64(i), []byte(msg)); err != nil {
			t.Fatal(err)
		}
		waitCompletion(t, a)
	}

	for i, msg := range []string{"one", "two"} {
		buf := make([]byte, 16)
		if err := b.PostRecv(uint64(10+i), buf); err != nil {
			t.Fatal(err)
		}

		wc := waitCompletion(t, b)
		if wc.WRID != uint64(10+i) || wc.Status != rdma.WCSuccess {
			t.Fatalf("Unexpected receive completion: %v", wc)
		} else if s := string(buf[:wc.ByteLen]); s != msg {
			t.Fatalf("Received %q instead of %q", s, msg)
		}
	}
}

func TestQueuePairBacklogOverflow(t *testing.T) {
	a, b := Pipe(rdma.QueuePairConfig{SendDepth: 4, RecvDepth: 1})
	defer a.Close()
	defer b.Close()

	for i := 0; i < 2; i++ {
		if err := a.PostSend(uint64(i), []byte("spam")); err != nil {
			t.Fatal(err)
		}
		waitCompletion(t, a)
	}

	waitDisconnected(t, b)
}

func TestQueuePairLocalLenErr(t *testing.T) {
	a, b := Pipe(rdma.QueuePairConfig{SendDepth: 4, RecvDepth: 4})
	defer a.Close()
	defer b.Close()

	if err := b.PostRecv(1, make([]byte, 2)); err != nil {
		t.Fatal(err)
	}
	if err := a.PostSend(1, []byte("too long")); err != nil {
		t.Fatal(err)
	}

	if wc := waitCompletion(t, b); wc.Status != rdma.WCLocalLenErr {
		t.Fatalf("Expected local length error, got %v", wc)
	}
	waitDisconnected(t, b)
}

func TestQueuePairRecvDepth(t *testing.T) {
	a, b := Pipe(rdma.QueuePairConfig{SendDepth: 1, RecvDepth: 2})
	defer a.Close()
	defer b.Close()

	for i := 0; i < 2; i++ {
		if err := b.PostRecv(uint64(i), make([]byte, 8)); err != nil {
			t.Fatal(err)
		}
	}
	if err := b.PostRecv(2, make([]byte, 8)); !errors.Is(err, rdma.ErrQueueFull) {
		t.Fatalf("Expected ErrQueueFull, got %v", err)
	}
}

func TestQueuePairFlushOnDisconnect(t *testing.T) {
	a, b := Pipe(rdma.QueuePairConfig{SendDepth: 4, RecvDepth: 4})
	defer b.Close()

	if err := b.PostRecv(42, make([]byte, 8)); err != nil {
		t.Fatal(err)
	}

	if err := a.Close(); err != nil {
		t.Fatal(err)
	}

	waitDisconnected(t, b)
	if wc := waitCompletion(t, b); wc.WRID != 42 || wc.Status != rdma.WCWRFlushErr {
		t.Fatalf("Expected flushed receive, got %v", wc)
	}

	if err := b.PostSend(1, []byte("late")); !errors.Is(err, rdma.ErrQueuePairClosed) {
		t.Fatalf("Expected ErrQueuePairClosed, got %v", err)
	}
}

func TestQueuePairCloseIdempotent(t *testing.T) {
	a, b := Pipe(rdma.QueuePairConfig{SendDepth: 1, RecvDepth: 1})
	defer b.Close()

	_ = a.Close()
	_ = a.Close()

	if err := a.PostRecv(1, make([]byte, 1)); !errors.Is(err, rdma.ErrQueuePairClosed) {
		t.Fatalf("Expected ErrQueuePairClosed, got %v", err)
	}
}

func TestConnectInvalidDepth(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()

	if _, err := Connect(a, 0, time.Second); err == nil {
		t.Fatal("Queue depth of zero was accepted")
	}
}
