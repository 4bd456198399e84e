// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package diag

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/gorilla/websocket"

	"github.com/dtn7/smbdirect-go/pkg/smbd"
)

const (
	// clientBuffer is the amount of EventMessages queued per client. A client falling further behind is dropped.
	clientBuffer = 32

	// writeTimeout bounds writing one EventMessage to a client.
	writeTimeout = 5 * time.Second
)

// eventClient is one connected /events WebSocket.
type eventClient struct {
	conn   *websocket.Conn
	outbox chan EventMessage

	closeOnce sync.Once
}

func newEventClient(conn *websocket.Conn) *eventClient {
	return &eventClient{
		conn:   conn,
		outbox: make(chan EventMessage, clientBuffer),
	}
}

// handleWrite sends queued EventMessages until the outbox is closed or writing fails.
func (client *eventClient) handleWrite(hub *eventHub) {
	defer hub.unregister(client)

	for msg := range client.outbox {
		if err := client.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			log.WithError(err).Debug("Setting WebSocket write deadline errored")
			return
		}
		if err := client.conn.WriteJSON(msg); err != nil {
			log.WithError(err).WithField("peer", client.conn.RemoteAddr()).Debug("Writing to WebSocket errored")
			return
		}
	}
}

// handleRead discards incoming messages; its only purpose is to notice the client's close.
func (client *eventClient) handleRead(hub *eventHub) {
	defer hub.unregister(client)

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (client *eventClient) close() {
	client.closeOnce.Do(func() {
		close(client.outbox)
		_ = client.conn.Close()
	})
}

// eventHub fans an engine's Events out to all WebSocket clients.
type eventHub struct {
	mutex   sync.Mutex
	clients map[*eventClient]struct{}

	stopSyn  chan struct{}
	stopAck  chan struct{}
	stopOnce sync.Once
}

func newEventHub() *eventHub {
	return &eventHub{
		clients: make(map[*eventClient]struct{}),
		stopSyn: make(chan struct{}),
		stopAck: make(chan struct{}),
	}
}

func (hub *eventHub) run(events <-chan smbd.Event) {
	defer close(hub.stopAck)

	for {
		select {
		case <-hub.stopSyn:
			hub.mutex.Lock()
			for client := range hub.clients {
				delete(hub.clients, client)
				client.close()
			}
			hub.mutex.Unlock()
			return

		case ev := <-events:
			log.WithField("event", ev).Debug("Diagnostics received engine event")
			hub.broadcast(newEventMessage(ev))
		}
	}
}

func (hub *eventHub) broadcast(msg EventMessage) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()

	for client := range hub.clients {
		select {
		case client.outbox <- msg:
		default:
			log.WithField("peer", client.conn.RemoteAddr()).Info("Dropping slow WebSocket client")
			delete(hub.clients, client)
			client.close()
		}
	}
}

func (hub *eventHub) register(client *eventClient) {
	hub.mutex.Lock()
	select {
	case <-hub.stopSyn:
		hub.mutex.Unlock()
		client.close()
		return
	default:
	}
	hub.clients[client] = struct{}{}
	hub.mutex.Unlock()

	go client.handleWrite(hub)
	go client.handleRead(hub)
}

func (hub *eventHub) unregister(client *eventClient) {
	hub.mutex.Lock()
	delete(hub.clients, client)
	hub.mutex.Unlock()

	client.close()
}

// Len is the amount of connected clients.
func (hub *eventHub) Len() int {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()

	return len(hub.clients)
}

func (hub *eventHub) close() {
	hub.stopOnce.Do(func() {
		close(hub.stopSyn)
	})
	<-hub.stopAck
}
