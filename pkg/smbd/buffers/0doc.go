// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package buffers manages the registered send and receive memory of one SMB Direct connection.
//
// Each Buffer is in one of three states. A Free buffer may be acquired and filled by its owner. Posting hands it to
// the transport; while Posted, the Pool neither mutates nor reclaims it. The work completion moves it to
// CompletedPendingConsumption, and releasing it after consumption makes it Free again. Thus, a buffer is never posted
// twice without an intervening release.
//
// Buffers are carved out of anonymous memory mappings, one mapping per Provision call. A Pool is not safe for
// concurrent use.
package buffers
