// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package loopback is an in-process bus: written frames are decoded and
// handed to simulated devices, whose answers are framed and queued for
// the next reads.
package loopback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ffutop/servo-driver/modbus"
	"github.com/ffutop/servo-driver/modbus/ascii"
	"github.com/ffutop/servo-driver/modbus/rtu"
)

// Device answers request payloads. A nil answer means no reply.
type Device interface {
	Handle(payload []byte) []byte
}

// Bus connects a master to simulated devices using one wire encoding.
type Bus struct {
	mode    modbus.Mode
	devices []Device

	mu      sync.Mutex
	pending []byte
}

// New creates a loopback bus carrying frames in mode.
func New(mode modbus.Mode, devices ...Device) *Bus {
	return &Bus{mode: mode, devices: devices}
}

// Write delivers the frame to every device. Frames that fail to decode are
// dropped, as a device on a real line would ignore them.
func (b *Bus) Write(ctx context.Context, data []byte, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := b.unpack(data)
	if err != nil {
		slog.Debug("loopback dropped frame", "mode", b.mode, "err", err)
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, d := range b.devices {
		answer := d.Handle(payload)
		if answer == nil {
			continue
		}
		frame, err := b.pack(answer)
		if err != nil {
			return fmt.Errorf("loopback: %w", err)
		}
		b.pending = append(b.pending, frame...)
	}
	return nil
}

// Read takes len(buf) bytes from the queued answers. When fewer bytes are
// queued they are consumed and the read times out immediately; nothing else
// could arrive on a loopback bus.
func (b *Bus) Read(ctx context.Context, buf []byte, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	n := copy(buf, b.pending)
	b.pending = b.pending[n:]
	if n < len(buf) {
		return fmt.Errorf("%w: loopback received %d of %d bytes", modbus.ErrTimeout, n, len(buf))
	}
	return nil
}

// Idle is a no-op: there is no line to keep silent.
func (b *Bus) Idle(length int) {}

// Flush discards queued answers.
func (b *Bus) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = nil
}

func (b *Bus) unpack(frame []byte) ([]byte, error) {
	if b.mode == modbus.ModeRTU {
		return rtu.Unpack(frame)
	}
	return ascii.Unpack(frame)
}

func (b *Bus) pack(payload []byte) ([]byte, error) {
	if b.mode == modbus.ModeRTU {
		return rtu.Codec{}.Encode(payload)
	}
	return ascii.Codec{}.Encode(payload)
}
