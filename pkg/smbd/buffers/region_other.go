// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package buffers

func mapRegion(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func unmapRegion(mem []byte) error {
	return nil
}
