// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package diag serves the read-only diagnostics of an SMB Direct engine over HTTP.
//
// The routes are:
//
//   GET /status                 plain text, as written by control.Device.WriteStatus
//   GET /connections            JSON array of all live connections
//   GET /connections/{session}  JSON object of one connection
//   GET /events                 WebSocket, one JSON object per engine event
//
// Reads work on snapshots of the connection registry and never pause a connection's dispatching.
package diag
