// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package control is the control plane of an SMB Direct engine.
//
// A Device must be configured with a parameter block by SetParams before it is allowed to Listen. The parameter
// block may be read from the [params] section of a TOML file and reloaded whenever that file changes.
package control
