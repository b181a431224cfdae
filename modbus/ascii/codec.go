// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package ascii implements the Modbus ASCII frame encoding:
//
//	Start           : 1 char ':'
//	Payload         : 2 chars per byte, uppercase hex, high nibble first
//	LRC             : 2 chars
//	End             : 2 chars CR LF
package ascii

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ffutop/servo-driver/modbus"
	"github.com/ffutop/servo-driver/modbus/lrc"
	"github.com/ffutop/servo-driver/transport"
)

const (
	asciiStart = ':'
	asciiEnd   = "\r\n"

	// start, LRC and end characters
	overhead = 5

	hexTable = "0123456789ABCDEF"
	invalid  = 0xFF
)

// FrameLength returns the length of the frame carrying n payload bytes.
func FrameLength(n int) int {
	return 2*n + overhead
}

// Codec frames payloads for a transport. The zero value uses
// modbus.BufferSize and modbus.BusTimeout.
type Codec struct {
	BufferSize int
	Timeout    time.Duration
}

func (c Codec) capacity() int {
	if c.BufferSize > 0 {
		return c.BufferSize
	}
	return modbus.BufferSize
}

func (c Codec) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return modbus.BusTimeout
}

func (c Codec) checkLength(n int) error {
	if length := FrameLength(n); length > c.capacity() {
		return fmt.Errorf("%w: ascii frame of %d bytes exceeds %d", modbus.ErrNoBufferSpace, length, c.capacity())
	}
	return nil
}

// Encode builds the frame for payload.
func (c Codec) Encode(payload []byte) ([]byte, error) {
	if err := c.checkLength(len(payload)); err != nil {
		return nil, err
	}

	frame := make([]byte, 0, FrameLength(len(payload)))
	frame = append(frame, asciiStart)
	frame = appendHex(frame, payload...)
	frame = appendHex(frame, lrc.Checksum(payload))
	frame = append(frame, asciiEnd...)
	return frame, nil
}

// RequestWrite encodes payload and writes the frame in a single call.
func (c Codec) RequestWrite(ctx context.Context, w transport.Writer, payload []byte) error {
	frame, err := c.Encode(payload)
	if err != nil {
		return err
	}

	slog.Debug("send to modbus slave", "mode", "ascii", "request", string(frame))
	return transport.Translate(w.Write(ctx, frame, c.timeout()))
}

// AnswerRead reads the frame carrying len(payload) bytes and decodes it
// into payload. On error the content of payload is undefined.
func (c Codec) AnswerRead(ctx context.Context, r transport.Reader, payload []byte) error {
	if err := c.checkLength(len(payload)); err != nil {
		return err
	}

	frame := make([]byte, FrameLength(len(payload)))
	if err := r.Read(ctx, frame, c.timeout()); err != nil {
		return transport.Translate(err)
	}
	slog.Debug("recv from modbus slave", "mode", "ascii", "response", string(frame))

	return Decode(frame, payload)
}

// Decode validates frame and stores its len(payload) bytes in payload.
// Characters outside 0-9A-F decode to 0xFF and make the frame fail the
// checksum check.
func Decode(frame []byte, payload []byte) error {
	length := FrameLength(len(payload))
	if len(frame) != length {
		return fmt.Errorf("%w: ascii frame length %d, expected %d", modbus.ErrCorrupted, len(frame), length)
	}
	if frame[0] != asciiStart || frame[length-2] != '\r' || frame[length-1] != '\n' {
		return fmt.Errorf("%w: ascii frame '%q' is not delimited by ':' and CRLF", modbus.ErrCorrupted, frame)
	}

	valid := true
	pos := 1
	for i := range payload {
		b, ok := readHex(frame[pos : pos+2])
		payload[i] = b
		valid = valid && ok
		pos += 2
	}
	checksum, ok := readHex(frame[pos : pos+2])
	valid = valid && ok

	expected := lrc.Checksum(payload)
	if !valid || checksum != expected {
		return fmt.Errorf("%w: response lrc '%v' does not match expected '%v'", modbus.ErrCorrupted, checksum, expected)
	}
	return nil
}

// Unpack decodes a frame whose payload length is not known in advance.
func Unpack(frame []byte) ([]byte, error) {
	if len(frame) < overhead || (len(frame)-overhead)%2 != 0 {
		return nil, fmt.Errorf("%w: invalid ascii frame length %d", modbus.ErrCorrupted, len(frame))
	}
	payload := make([]byte, (len(frame)-overhead)/2)
	if err := Decode(frame, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// appendHex encodes bytes as uppercase hex, e.g. 0xA5 => "A5"
// (encoding/hex only produces lowercase).
func appendHex(dst []byte, value ...byte) []byte {
	for _, v := range value {
		dst = append(dst, hexTable[v>>4], hexTable[v&0x0F])
	}
	return dst
}

// readHex decodes two hex characters. ok is false if either is invalid.
func readHex(pair []byte) (b byte, ok bool) {
	high, low := nibble(pair[0]), nibble(pair[1])
	if high == invalid || low == invalid {
		return invalid, false
	}
	return high<<4 | low, true
}

func nibble(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'A' <= c && c <= 'F':
		return c - 'A' + 0x0A
	default:
		return invalid
	}
}
