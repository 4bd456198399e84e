// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package diag

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/dtn7/smbdirect-go/pkg/control"
	"github.com/dtn7/smbdirect-go/pkg/smbd"
)

// Server for the diagnostics of a Device's Engine. It consumes the Engine's Events, so nothing else should.
type Server struct {
	device   *control.Device
	router   *mux.Router
	upgrader websocket.Upgrader
	hub      *eventHub
}

// NewServer registers its routes on the router and starts consuming Events.
func NewServer(device *control.Device, router *mux.Router) *Server {
	s := &Server{
		device:   device,
		router:   router,
		upgrader: websocket.Upgrader{},
		hub:      newEventHub(),
	}

	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/connections", s.handleConnections).Methods(http.MethodGet)
	s.router.HandleFunc("/connections/{session:[0-9]+}", s.handleConnection).Methods(http.MethodGet)
	s.router.HandleFunc("/events", s.handleEvents)

	go s.hub.run(device.Engine().Events())

	return s
}

// ServeHTTP is a http.Handler for all routes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var buff bytes.Buffer
	if err := s.device.WriteStatus(&buff); err != nil {
		log.WithError(err).Warn("Writing status errored")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := buff.WriteTo(w); err != nil {
		log.WithError(err).Debug("Failed to write status response")
	}
}

func (s *Server) handleConnections(w http.ResponseWriter, _ *http.Request) {
	infos := []ConnectionInfo{}
	s.device.Engine().Registry().ForEach(func(snapshot smbd.Snapshot) {
		infos = append(infos, newConnectionInfo(snapshot))
	})

	writeJSON(w, infos)
}

func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request) {
	session, err := strconv.ParseUint(mux.Vars(r)["session"], 10, 64)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	c, ok := s.device.Engine().Registry().Get(session)
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	writeJSON(w, newConnectionInfo(c.Snapshot()))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("Upgrading HTTP request to WebSocket errored")
		return
	}

	log.WithField("peer", conn.RemoteAddr()).Debug("New event WebSocket client")
	s.hub.register(newEventClient(conn))
}

// Close disconnects all WebSocket clients and stops consuming Events.
func (s *Server) Close() {
	s.hub.close()
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Debug("Failed to write JSON response")
	}
}
