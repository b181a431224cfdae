// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package rtu implements the Modbus RTU frame encoding: the payload
// followed by its CRC-16, low byte first. Frames are delimited on the
// wire by silence, so writes are followed by an idle period.
package rtu

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/ffutop/servo-driver/modbus"
	"github.com/ffutop/servo-driver/modbus/crc"
	"github.com/ffutop/servo-driver/transport"
)

const crcSize = 2

// FrameLength returns the length of the frame carrying n payload bytes.
func FrameLength(n int) int {
	return n + crcSize
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
		return fmt.Errorf("%w: rtu frame of %d bytes exceeds %d", modbus.ErrNoBufferSpace, length, c.capacity())
	}
	return nil
}

// Encode builds the frame for payload.
func (c Codec) Encode(payload []byte) ([]byte, error) {
	if err := c.checkLength(len(payload)); err != nil {
		return nil, err
	}

	frame := make([]byte, len(payload), FrameLength(len(payload)))
	copy(frame, payload)
	checksum := crc.Checksum(payload)
	return append(frame, byte(checksum), byte(checksum>>8)), nil
}

// RequestWrite encodes payload, writes the frame in a single call and
// then lets idle keep the line silent for the inter-frame delay.
// idle is not called when the write fails.
func (c Codec) RequestWrite(ctx context.Context, w transport.Writer, idle transport.Idler, payload []byte) error {
	frame, err := c.Encode(payload)
	if err != nil {
		return err
	}

	slog.Debug("send to modbus slave", "mode", "rtu", "request", hex.EncodeToString(frame))
	if err := w.Write(ctx, frame, c.timeout()); err != nil {
		return transport.Translate(err)
	}
	idle.Idle(len(frame))
	return nil
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
	slog.Debug("recv from modbus slave", "mode", "rtu", "response", hex.EncodeToString(frame))

	return Decode(frame, payload)
}

// Decode validates frame and stores its len(payload) bytes in payload.
func Decode(frame []byte, payload []byte) error {
	length := FrameLength(len(payload))
	if len(frame) != length {
		return fmt.Errorf("%w: rtu frame length %d, expected %d", modbus.ErrCorrupted, len(frame), length)
	}

	n := copy(payload, frame)
	checksum := uint16(frame[n+1])<<8 | uint16(frame[n])
	if expected := crc.Checksum(payload); checksum != expected {
		return fmt.Errorf("%w: response crc '%v' does not match expected '%v'", modbus.ErrCorrupted, checksum, expected)
	}
	return nil
}

// Unpack decodes a frame whose payload length is not known in advance.
func Unpack(frame []byte) ([]byte, error) {
	if len(frame) < crcSize {
		return nil, fmt.Errorf("%w: rtu frame length %d is shorter than the crc", modbus.ErrCorrupted, len(frame))
	}
	payload := make([]byte, len(frame)-crcSize)
	if err := Decode(frame, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
