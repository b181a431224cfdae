// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package app

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/ffutop/servo-driver/internal/config"
	"github.com/ffutop/servo-driver/internal/simulator"
	"github.com/ffutop/servo-driver/protocol"
	"github.com/ffutop/servo-driver/servo"
	"github.com/ffutop/servo-driver/transport"
	"github.com/ffutop/servo-driver/transport/loopback"
	"github.com/ffutop/servo-driver/transport/serialport"
	"github.com/ffutop/servo-driver/transport/tunnel"
)

// busTransport is what every bus type provides.
type busTransport interface {
	transport.Transport
	transport.Idler
	io.Closer
}

// openDriver builds the transport selected by cfg.Bus.Type and the servo
// driver on top of it. The returned closer releases the transport.
func openDriver(cfg *config.Config) (*servo.Driver, io.Closer, error) {
	mode, err := cfg.Bus.ModbusMode()
	if err != nil {
		return nil, nil, err
	}

	var t busTransport
	switch cfg.Bus.Type {
	case "serial":
		slog.Debug("using serial bus", "device", cfg.Bus.Serial.Device, "mode", mode)
		t = serialport.New(cfg.Bus.Serial, cfg.Bus.Timeout)
	case "tunnel":
		slog.Debug("using serial device server", "addr", cfg.Bus.Tunnel.Address, "mode", mode)
		t = tunnel.NewClient(cfg.Bus.Tunnel.Address, cfg.Bus.Tunnel.BaudRate)
	case "simulator":
		sim, err := simulator.Open(cfg.Bus.Simulator)
		if err != nil {
			return nil, nil, err
		}
		slog.Debug("using simulated servo", "axis", sim.Axis(), "mode", mode)
		t = &simulatedBus{Bus: loopback.New(mode, sim), sim: sim}
	default:
		return nil, nil, fmt.Errorf("unknown bus type %q", cfg.Bus.Type)
	}

	bus, err := protocol.New(protocol.Params{
		Mode:       mode,
		Transport:  t,
		Idler:      t,
		BufferSize: cfg.Bus.BufferSize,
		Timeout:    cfg.Bus.Timeout,
	})
	if err != nil {
		t.Close()
		return nil, nil, err
	}
	return servo.NewDriver(bus, servo.WithRetries(cfg.Servo.Retries)), t, nil
}

type simulatedBus struct {
	*loopback.Bus
	sim *simulator.Servo
}

func (b *simulatedBus) Close() error {
	return b.sim.Close()
}
