// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package smbd

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dtn7/smbdirect-go/pkg/smbd/credits"
)

func TestErrorIs(t *testing.T) {
	err := fmt.Errorf("outer: %w", newError(ErrResourceExhausted, "send", credits.ErrNoCreditsAvailable))

	if !errors.Is(err, ErrResourceExhausted) {
		t.Fatal("Kind was not matched")
	}
	if !errors.Is(err, credits.ErrNoCreditsAvailable) {
		t.Fatal("Cause was not matched")
	}
	if errors.Is(err, ErrProtocol) {
		t.Fatal("Foreign kind was matched")
	}

	var smbdErr *Error
	if !errors.As(err, &smbdErr) || smbdErr.Op != "send" {
		t.Fatalf("errors.As failed for %v", err)
	}
}

func TestErrorString(t *testing.T) {
	tests := []struct {
		err      *Error
		expected string
	}{
		{newError(ErrConnectionClosed, "close", nil), "close: connection closed"},
		{newError(ErrProtocol, "negotiate", errors.New("no credits")), "negotiate: protocol error: no credits"},
	}

	for _, test := range tests {
		if s := test.err.Error(); s != test.expected {
			t.Fatalf("Expected %q, got %q", test.expected, s)
		}
	}
}
