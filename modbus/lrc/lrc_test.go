// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package lrc

import "testing"

func TestChecksum(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		lrc  byte
	}{
		{"read holding registers request", []byte{0x01, 0x03, 0x00, 0x13, 0x00, 0x0a}, 0xdf},
		{"short payload", []byte{0x10, 0x11, 0x12}, 0xcd},
		{"servo read request", []byte{0x11, 0x03, 0x00, 0x00, 0x00, 0x01}, 0xeb},
		{"sum wraps to zero", []byte{0x80, 0x80}, 0x00},
		{"sum of 0x80", []byte{0x80}, 0x80},
		{"empty", nil, 0x00},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Checksum(tt.in); got != tt.lrc {
				t.Fatalf("Checksum(%x) = 0x%02x, want 0x%02x", tt.in, got, tt.lrc)
			}
		})
	}
}

func TestSumWithChecksumIsZero(t *testing.T) {
	data := []byte{0x05, 0x03, 0x04, 0x12, 0x34, 0x56, 0x78}
	var sum byte
	for _, b := range data {
		sum += b
	}
	if sum+Checksum(data) != 0 {
		t.Fatalf("payload sum 0x%02x plus lrc 0x%02x is not zero", sum, Checksum(data))
	}
}

func TestIncremental(t *testing.T) {
	var lrc LRC
	lrc.Reset().PushByte(0x01).PushByte(0x03).PushBytes([]byte{0x00, 0x13, 0x00, 0x0a})
	if lrc.Value() != 0xdf {
		t.Fatalf("Value() = 0x%02x, want 0xdf", lrc.Value())
	}
}
