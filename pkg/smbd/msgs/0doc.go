// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package msgs contains the fixed-layout SMB Direct messages: the NegotiateRequest, the NegotiateResponse and the
// DataTransferMessage. All fields are encoded in network byte order without padding.
//
// Each message type can be written to an io.Writer by Marshal and read from an io.Reader by Unmarshal. Additionally,
// the Decode and Encode functions operate on byte slices, as they are posted to or received from a queue pair.
package msgs
