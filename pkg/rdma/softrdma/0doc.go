// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package softrdma implements the rdma interfaces in software on top of a stream connection, e.g., TCP.
//
// A connect request is emulated by a short header sent from the active peer, answered by a single accept or reject
// octet. Afterwards each posted send becomes one length-prefixed frame. Incoming frames are matched to posted
// receive work requests in FIFO order. Frames arriving while no receive is posted are kept in a backlog bounded by
// the receive depth; exceeding it is fatal, like an exhausted RNR retry counter on real hardware.
package softrdma
