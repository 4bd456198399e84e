// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package smbd

import (
	"testing"
)

func TestRegistryInsertRemove(t *testing.T) {
	r := NewRegistry()
	c := &Connection{id: 1, remoteAddr: "peer"}

	if err := r.Insert(c); err != nil {
		t.Fatal(err)
	}
	if err := r.Insert(c); err == nil {
		t.Fatal("Inserting a session twice succeeded")
	}

	if got, ok := r.Get(1); !ok || got != c {
		t.Fatalf("Get returned %v, %t", got, ok)
	}

	if !r.Remove(1) {
		t.Fatal("Removing failed")
	}
	if r.Remove(1) {
		t.Fatal("Removing twice succeeded")
	}
	if r.Len() != 0 {
		t.Fatalf("Registry holds %d connections", r.Len())
	}
}

func TestRegistrySnapshots(t *testing.T) {
	r := NewRegistry()
	for _, id := range []uint64{5, 2, 9, 1} {
		if err := r.Insert(&Connection{id: id, state: int32(StateTransferring)}); err != nil {
			t.Fatal(err)
		}
	}

	var ids []uint64
	r.ForEach(func(s Snapshot) {
		ids = append(ids, s.SessionID)
		if s.State != StateTransferring || s.Negotiated != nil {
			t.Fatalf("Unexpected snapshot %v", s)
		}
	})

	expected := []uint64{1, 2, 5, 9}
	if len(ids) != len(expected) {
		t.Fatalf("Expected %v, got %v", expected, ids)
	}
	for i := range ids {
		if ids[i] != expected[i] {
			t.Fatalf("Expected %v, got %v", expected, ids)
		}
	}
}

func TestRegistryTeardownAll(t *testing.T) {
	e := newTestEngine(t, scenarioParameters())
	defer e.Close()

	var conns []*Connection
	for n := 0; n < 8; n++ {
		c, client := pipeConnection(t, e)
		defer client.Close()
		conns = append(conns, c)
	}

	if err := e.Registry().TeardownAll(); err != nil {
		t.Fatal(err)
	}

	for _, c := range conns {
		select {
		case <-c.Done():
		default:
			t.Fatalf("%v is still alive", c)
		}
	}
	if n := e.Registry().Len(); n != 0 {
		t.Fatalf("Registry holds %d connections", n)
	}

	if err := e.Registry().TeardownAll(); err != nil {
		t.Fatal(err)
	}
}
