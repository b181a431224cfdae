// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package lrc implements the Modbus ASCII longitudinal redundancy check.
package lrc

// LRC accumulates the byte sum of a payload. Frame delimiters are not
// part of the sum.
type LRC struct {
	sum uint8
}

func (lrc *LRC) Reset() *LRC {
	lrc.sum = 0
	return lrc
}

func (lrc *LRC) PushByte(b byte) *LRC {
	lrc.sum += b
	return lrc
}

func (lrc *LRC) PushBytes(data []byte) *LRC {
	for _, b := range data {
		lrc.sum += b
	}
	return lrc
}

// Value returns the two's complement of the sum.
func (lrc *LRC) Value() byte {
	return ^lrc.sum + 1
}

// Checksum returns the LRC of data.
func Checksum(data []byte) byte {
	var lrc LRC
	return lrc.PushBytes(data).Value()
}
