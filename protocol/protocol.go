// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package protocol dispatches request and answer payloads to the ASCII or
// RTU codec selected when the bus is initialized.
package protocol

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ffutop/servo-driver/modbus"
	"github.com/ffutop/servo-driver/modbus/ascii"
	"github.com/ffutop/servo-driver/modbus/rtu"
	"github.com/ffutop/servo-driver/transport"
)

// Params are the transport parameters captured by New.
type Params struct {
	Mode      modbus.Mode
	Transport transport.Transport
	// Idler is required in RTU mode. When nil, Transport is used if it
	// implements transport.Idler.
	Idler transport.Idler

	// BufferSize and Timeout default to modbus.BufferSize and modbus.BusTimeout.
	BufferSize int
	Timeout    time.Duration
}

// Protocol is a Modbus serial master bound to one transport.
// It is immutable after New and holds no lock: callers keep a single
// transaction in flight per bus.
type Protocol struct {
	mode      modbus.Mode
	transport transport.Transport
	idler     transport.Idler

	ascii ascii.Codec
	rtu   rtu.Codec
}

// New validates params and returns the protocol bound to them.
func New(params Params) (*Protocol, error) {
	if params.Transport == nil {
		return nil, errors.New("protocol: transport is required")
	}
	if params.BufferSize < 0 || params.Timeout < 0 {
		return nil, fmt.Errorf("protocol: invalid buffer size %d or timeout %v", params.BufferSize, params.Timeout)
	}

	p := &Protocol{
		mode:      params.Mode,
		transport: params.Transport,
		idler:     params.Idler,
		ascii:     ascii.Codec{BufferSize: params.BufferSize, Timeout: params.Timeout},
		rtu:       rtu.Codec{BufferSize: params.BufferSize, Timeout: params.Timeout},
	}

	switch params.Mode {
	case modbus.ModeASCII:
	case modbus.ModeRTU:
		if p.idler == nil {
			idler, ok := params.Transport.(transport.Idler)
			if !ok {
				return nil, errors.New("protocol: rtu mode requires an idler")
			}
			p.idler = idler
		}
	default:
		return nil, fmt.Errorf("protocol: unsupported mode %v", params.Mode)
	}
	return p, nil
}

// Mode returns the wire encoding in use.
func (p *Protocol) Mode() modbus.Mode {
	return p.mode
}

// RequestWrite frames data and writes it to the bus.
func (p *Protocol) RequestWrite(ctx context.Context, data []byte) error {
	slog.Debug("modbus request", "mode", p.mode, "payload", hex.EncodeToString(data))

	if p.mode == modbus.ModeRTU {
		return p.rtu.RequestWrite(ctx, p.transport, p.idler, data)
	}
	return p.ascii.RequestWrite(ctx, p.transport, data)
}

// AnswerRead reads the answer frame carrying len(data) payload bytes and
// decodes it into data.
func (p *Protocol) AnswerRead(ctx context.Context, data []byte) error {
	var err error
	if p.mode == modbus.ModeRTU {
		err = p.rtu.AnswerRead(ctx, p.transport, data)
	} else {
		err = p.ascii.AnswerRead(ctx, p.transport, data)
	}
	if err != nil {
		return err
	}

	slog.Debug("modbus answer", "mode", p.mode, "payload", hex.EncodeToString(data))
	return nil
}
