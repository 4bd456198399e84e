// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package smbd

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
)

// Snapshot of a Connection, safe to read from any goroutine.
type Snapshot struct {
	SessionID  uint64
	RemoteAddr string
	State      State
	Created    time.Time

	// Negotiated is nil until the negotiation succeeded.
	Negotiated *Negotiated
}

// Registry of all live Connections, keyed by their session ID.
//
// Insertions and removals are exclusive, while enumerations share the lock.
type Registry struct {
	mutex sync.RWMutex
	conns map[uint64]*Connection
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[uint64]*Connection),
	}
}

// Insert a Connection. Its session ID must be unique.
func (r *Registry) Insert(c *Connection) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.conns[c.id]; exists {
		return fmt.Errorf("session %d is already registered", c.id)
	}

	r.conns[c.id] = c
	return nil
}

// Remove a Connection by its session ID. False is returned if it was not registered.
func (r *Registry) Remove(id uint64) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.conns[id]; !exists {
		return false
	}

	delete(r.conns, id)
	return true
}

// Get a registered Connection.
func (r *Registry) Get(id uint64) (c *Connection, ok bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	c, ok = r.conns[id]
	return
}

// Len is the amount of registered Connections.
func (r *Registry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.conns)
}

// ForEach calls f with a Snapshot of each registered Connection, ordered by session ID. f must not alter this
// Registry.
func (r *Registry) ForEach(f func(Snapshot)) {
	for _, s := range r.Snapshots() {
		f(s)
	}
}

// Snapshots of all registered Connections, ordered by session ID.
func (r *Registry) Snapshots() []Snapshot {
	r.mutex.RLock()
	snapshots := make([]Snapshot, 0, len(r.conns))
	for _, c := range r.conns {
		snapshots = append(snapshots, c.Snapshot())
	}
	r.mutex.RUnlock()

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].SessionID < snapshots[j].SessionID
	})
	return snapshots
}

// TeardownAll closes every registered Connection concurrently and blocks until all resources were released.
func (r *Registry) TeardownAll() error {
	r.mutex.RLock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mutex.RUnlock()

	var (
		wg     sync.WaitGroup
		errMux sync.Mutex
		errs   error
	)

	for _, c := range conns {
		wg.Add(1)
		go func(c *Connection) {
			defer wg.Done()

			if err := c.Close(); err != nil {
				errMux.Lock()
				errs = multierror.Append(errs, fmt.Errorf("closing %v: %w", c, err))
				errMux.Unlock()
			}
		}(c)
	}
	wg.Wait()

	log.WithField("connections", len(conns)).Info("Registry tore down all connections")

	return errs
}
