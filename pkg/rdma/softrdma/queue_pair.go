// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package softrdma

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/smbdirect-go/pkg/rdma"
)

type workRequest struct {
	id  uint64
	buf []byte
}

// queuePair implements rdma.QueuePair over a net.Conn.
type queuePair struct {
	conn   net.Conn
	config rdma.QueuePairConfig

	recvMutex sync.Mutex
	recvQueue []workRequest
	backlog   [][]byte

	sendQueue        chan workRequest
	sendsOutstanding int32

	completions chan rdma.WorkCompletion

	disconnected   chan struct{}
	disconnectOnce sync.Once

	closed    uint32
	closeSyn  chan struct{}
	closeOnce sync.Once
	closeErr  error

	wg sync.WaitGroup
}

func newQueuePair(conn net.Conn, config rdma.QueuePairConfig) *queuePair {
	if config.SendDepth < 1 {
		config.SendDepth = 1
	}
	if config.RecvDepth < 1 {
		config.RecvDepth = 1
	}

	qp := &queuePair{
		conn:         conn,
		config:       config,
		sendQueue:    make(chan workRequest, config.SendDepth),
		completions:  make(chan rdma.WorkCompletion, config.SendDepth+config.RecvDepth+1),
		disconnected: make(chan struct{}),
		closeSyn:     make(chan struct{}),
	}

	qp.wg.Add(2)
	go qp.handleIn()
	go qp.handleOut()

	return qp
}

func (qp *queuePair) log() *log.Entry {
	return log.WithFields(log.Fields{
		"qp":         fmt.Sprintf("%p", qp),
		"remoteAddr": qp.RemoteAddr(),
	})
}

func (qp *queuePair) isClosed() bool {
	return atomic.LoadUint32(&qp.closed) != 0
}

func (qp *queuePair) isDisconnected() bool {
	select {
	case <-qp.disconnected:
		return true
	default:
		return false
	}
}

// emit a WorkCompletion unless this queuePair was closed.
func (qp *queuePair) emit(wc rdma.WorkCompletion) {
	select {
	case <-qp.closeSyn:
		return
	default:
	}

	select {
	case qp.completions <- wc:
	case <-qp.closeSyn:
	}
}

// disconnect moves this queuePair into the error state and flushes all posted receives.
func (qp *queuePair) disconnect() {
	qp.disconnectOnce.Do(func() {
		close(qp.disconnected)

		qp.recvMutex.Lock()
		flushed := qp.recvQueue
		qp.recvQueue = nil
		qp.backlog = nil
		qp.recvMutex.Unlock()

		for _, wr := range flushed {
			qp.emit(rdma.WorkCompletion{WRID: wr.id, Status: rdma.WCWRFlushErr, Opcode: rdma.WCOpRecv})
		}
	})
}

// deliver a received frame into a posted receive. False is returned if the frame did not fit.
func (qp *queuePair) deliver(wr workRequest, frame []byte) bool {
	if len(frame) > len(wr.buf) {
		qp.emit(rdma.WorkCompletion{WRID: wr.id, Status: rdma.WCLocalLenErr, Opcode: rdma.WCOpRecv})
		return false
	}

	n := copy(wr.buf, frame)
	qp.emit(rdma.WorkCompletion{WRID: wr.id, Status: rdma.WCSuccess, Opcode: rdma.WCOpRecv, ByteLen: uint32(n)})
	return true
}

func (qp *queuePair) receive(frame []byte) error {
	qp.recvMutex.Lock()

	if len(qp.recvQueue) == 0 {
		defer qp.recvMutex.Unlock()

		if len(qp.backlog) >= qp.config.RecvDepth {
			return fmt.Errorf("receiver not ready, %d messages are already backlogged", len(qp.backlog))
		}
		qp.backlog = append(qp.backlog, frame)
		return nil
	}

	wr := qp.recvQueue[0]
	qp.recvQueue = qp.recvQueue[1:]
	qp.recvMutex.Unlock()

	if !qp.deliver(wr, frame) {
		return fmt.Errorf("received %d bytes for a receive buffer of %d bytes", len(frame), len(wr.buf))
	}
	return nil
}

func (qp *queuePair) handleIn() {
	defer qp.wg.Done()

	r := bufio.NewReader(qp.conn)
	for {
		frame, err := readFrame(r)
		if err != nil {
			if !qp.isClosed() {
				qp.log().WithError(err).Debug("Reading frame failed, disconnecting")
			}
			qp.disconnect()
			return
		}

		if err := qp.receive(frame); err != nil {
			qp.log().WithError(err).Warn("Receiving frame failed, disconnecting")
			qp.disconnect()
			return
		}
	}
}

func (qp *queuePair) handleOut() {
	defer qp.wg.Done()

	for {
		select {
		case <-qp.closeSyn:
			return

		case wr := <-qp.sendQueue:
			status := rdma.WCSuccess
			if qp.isDisconnected() {
				status = rdma.WCWRFlushErr
			} else if err := writeFrame(qp.conn, wr.buf); err != nil {
				if !qp.isClosed() {
					qp.log().WithError(err).Debug("Writing frame failed, disconnecting")
				}
				status = rdma.WCGeneralErr
				qp.disconnect()
			}

			atomic.AddInt32(&qp.sendsOutstanding, -1)
			qp.emit(rdma.WorkCompletion{WRID: wr.id, Status: status, Opcode: rdma.WCOpSend})
		}
	}
}

func (qp *queuePair) PostSend(wrID uint64, buf []byte) error {
	if qp.isClosed() || qp.isDisconnected() {
		return rdma.ErrQueuePairClosed
	}

	if atomic.AddInt32(&qp.sendsOutstanding, 1) > int32(qp.config.SendDepth) {
		atomic.AddInt32(&qp.sendsOutstanding, -1)
		return rdma.ErrQueueFull
	}

	qp.sendQueue <- workRequest{id: wrID, buf: buf}
	return nil
}

func (qp *queuePair) PostRecv(wrID uint64, buf []byte) error {
	if qp.isClosed() || qp.isDisconnected() {
		return rdma.ErrQueuePairClosed
	}

	qp.recvMutex.Lock()

	if len(qp.backlog) > 0 {
		frame := qp.backlog[0]
		qp.backlog = qp.backlog[1:]
		qp.recvMutex.Unlock()

		if !qp.deliver(workRequest{id: wrID, buf: buf}, frame) {
			qp.log().WithField("size", len(frame)).Warn("Backlogged frame exceeds receive buffer, disconnecting")
			qp.disconnect()
		}
		return nil
	}

	defer qp.recvMutex.Unlock()

	if len(qp.recvQueue) >= qp.config.RecvDepth {
		return rdma.ErrQueueFull
	}
	qp.recvQueue = append(qp.recvQueue, workRequest{id: wrID, buf: buf})
	return nil
}

func (qp *queuePair) Completions() <-chan rdma.WorkCompletion {
	return qp.completions
}

func (qp *queuePair) Disconnected() <-chan struct{} {
	return qp.disconnected
}

func (qp *queuePair) RemoteAddr() string {
	return qp.conn.RemoteAddr().String()
}

func (qp *queuePair) Close() error {
	qp.closeOnce.Do(func() {
		atomic.StoreUint32(&qp.closed, 1)
		close(qp.closeSyn)

		qp.closeErr = qp.conn.Close()
		qp.wg.Wait()

		qp.disconnect()
	})
	return qp.closeErr
}
