// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package smbd implements the connection engine of SMB Direct, a transport for SMB messages over RDMA.
//
// An Engine owns the Parameters, a Registry of live Connections and at most one Listener. Each accepted Connection
// starts in the Negotiating state, awaits a NegotiateRequest, answers with a NegotiateResponse and continues in the
// Transferring state, exchanging data transfer messages under a credit scheme. Any failure moves a Connection into
// the terminal Error state, after which it is torn down and removed from the Registry.
//
// Every Connection is driven by its own worker goroutine which drains the queue pair's completions. All of a
// Connection's buffers and credits are exclusively owned by this worker. Other goroutines interact with a Connection
// only through Send, Disconnect, Close and its Snapshot.
//
// The peer role is implemented by the Initiator.
package smbd
