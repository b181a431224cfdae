// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package serialport is a bus transport over a local UART.
package serialport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/grid-x/serial"

	"github.com/ffutop/servo-driver/internal/config"
	"github.com/ffutop/servo-driver/modbus"
	"github.com/ffutop/servo-driver/transport"
)

const (
	// Default timeout
	serialIdleTimeout = 60 * time.Second

	pollInterval = time.Millisecond
)

// Port has configuration and I/O controller. The device is opened on first
// use and closed again after IdleTimeout without activity.
type Port struct {
	// Serial port configuration.
	serial.Config

	IdleTimeout time.Duration

	mu sync.Mutex
	// port is platform-dependent data structure for serial port.
	port         io.ReadWriteCloser
	lastActivity time.Time
	closeTimer   *time.Timer
}

// New allocates a Port for cfg. timeout is the per-read timeout of the device.
func New(cfg config.SerialConfig, timeout time.Duration) *Port {
	p := &Port{IdleTimeout: cfg.IdleTimeout}

	// Map internal config to serial.Config
	p.Config.Address = cfg.Device
	p.Config.BaudRate = cfg.BaudRate
	p.Config.DataBits = cfg.DataBits
	p.Config.StopBits = cfg.StopBits
	p.Config.Parity = cfg.Parity
	p.Config.Timeout = timeout
	if cfg.RS485 {
		p.Config.RS485.Enabled = true
		p.Config.RS485.DelayRtsBeforeSend = cfg.DelayRtsBeforeSend
		p.Config.RS485.DelayRtsAfterSend = cfg.DelayRtsAfterSend
		p.Config.RS485.RtsHighDuringSend = cfg.RtsHighDuringSend
		p.Config.RS485.RtsHighAfterSend = cfg.RtsHighAfterSend
		p.Config.RS485.RxDuringTx = cfg.RxDuringTx
	}

	if p.IdleTimeout == 0 {
		p.IdleTimeout = serialIdleTimeout
	}
	return p
}

func (p *Port) Connect(ctx context.Context) (err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.connect(ctx)
}

// connect connects to the serial port if it is not connected. Caller must hold the mutex.
func (p *Port) connect(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if p.port == nil {
		slog.Info("open serial port", "device", p.Config.Address, "baudRate", p.Config.BaudRate, "dataBits", p.Config.DataBits, "parity", p.Config.Parity, "stopBits", p.Config.StopBits, "rs485", p.Config.RS485.Enabled)
		port, err := serial.Open(&p.Config)
		if err != nil {
			return fmt.Errorf("could not open %s: %w", p.Config.Address, err)
		}
		p.port = port
	}
	return nil
}

func (p *Port) Close() (err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.close()
}

// close closes the serial port if it is connected. Caller must hold the mutex.
func (p *Port) close() (err error) {
	if p.port != nil {
		err = p.port.Close()
		p.port = nil
	}
	return
}

// Write sends data in one write call. The device offers no write
// deadline; timeout only bounds the wait for the port to open.
func (p *Port) Write(ctx context.Context, data []byte, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.connect(ctx); err != nil {
		return err
	}
	p.touch()

	n, err := p.port.Write(data)
	if err == nil && n < len(data) {
		err = io.ErrShortWrite
	}
	if err != nil {
		p.close()
		return fmt.Errorf("serial write %s: %w", p.Config.Address, err)
	}
	return nil
}

// Read fills buf within timeout. The device returns whatever arrived
// within its own read timeout, so reads are repeated until buf is full
// or the deadline passes.
func (p *Port) Read(ctx context.Context, buf []byte, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.connect(ctx); err != nil {
		return err
	}
	p.touch()

	deadline := time.Now().Add(timeout)
	var got int
	for got < len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := p.port.Read(buf[got:])
		got += n
		if got == len(buf) {
			break
		}
		if err != nil && !expired(err) {
			p.close()
			return fmt.Errorf("serial read %s: %w", p.Config.Address, err)
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w: received %d of %d bytes", modbus.ErrTimeout, got, len(buf))
		}
		if n == 0 {
			time.Sleep(pollInterval)
		}
	}
	return nil
}

// expired reports whether a read error is the device read timeout.
func expired(err error) bool {
	return err == io.EOF || errors.Is(err, serial.ErrTimeout) || transport.IsTimeout(err)
}

// Idle keeps the line quiet while a frame of length bytes is shifted out
// and for the 3.5 character silence that follows it.
func (p *Port) Idle(length int) {
	time.Sleep(transport.FrameDelay(p.Config.BaudRate, length))
}

func (p *Port) touch() {
	p.lastActivity = time.Now()
	p.startCloseTimer()
}

func (p *Port) startCloseTimer() {
	if p.IdleTimeout <= 0 {
		return
	}
	if p.closeTimer == nil {
		p.closeTimer = time.AfterFunc(p.IdleTimeout, p.closeIdle)
	} else {
		p.closeTimer.Reset(p.IdleTimeout)
	}
}

// closeIdle closes the connection if last activity is passed behind IdleTimeout.
func (p *Port) closeIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.IdleTimeout <= 0 {
		return
	}

	if idle := time.Since(p.lastActivity); idle >= p.IdleTimeout {
		slog.Debug("closing serial port due to idle timeout", "device", p.Config.Address, "idle", idle)
		p.close()
	}
}
