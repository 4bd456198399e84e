// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package rdma describes the verbs-level transport an SMB Direct engine runs on.
//
// The types mirror the small subset of the RDMA verbs and connection manager model the engine needs: incoming
// connect requests which can be accepted or rejected, queue pairs to post send and receive work requests to, and
// work completions reporting the outcome of those requests.
//
// A buffer handed to a QueuePair by PostSend or PostRecv is owned by the transport until its WorkCompletion was
// delivered or the QueuePair was closed. The caller must neither read nor write it in between.
//
// The softrdma subpackage implements these interfaces in software on top of a stream connection.
package rdma
