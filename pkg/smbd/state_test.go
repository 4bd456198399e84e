// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package smbd

import "testing"

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		allowed  bool
	}{
		{StateNegotiating, StateTransferring, true},
		{StateNegotiating, StateError, true},
		{StateTransferring, StateError, true},
		{StateTransferring, StateNegotiating, false},
		{StateError, StateNegotiating, false},
		{StateError, StateTransferring, false},
		{StateError, StateError, false},
		{StateNegotiating, StateNegotiating, false},
	}

	for _, test := range tests {
		if allowed := test.from.canTransition(test.to); allowed != test.allowed {
			t.Fatalf("Transition %v -> %v: expected %t, got %t", test.from, test.to, test.allowed, allowed)
		}
	}
}
