// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package serialport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/grid-x/serial"

	"github.com/ffutop/servo-driver/internal/config"
	"github.com/ffutop/servo-driver/modbus"
	"github.com/ffutop/servo-driver/modbus/rtu"
	"github.com/ffutop/servo-driver/protocol"
	"github.com/ffutop/servo-driver/servo"
	"github.com/ffutop/servo-driver/transport"
)

type mockPort struct {
	io.Reader
	io.Writer
	closed bool
}

func (m *mockPort) Close() error {
	m.closed = true
	return nil
}

// chunkReader hands out at most size bytes per read.
type chunkReader struct {
	data []byte
	size int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, nil
	}
	n := copy(p[:min(len(p), r.size)], r.data)
	r.data = r.data[n:]
	return n, nil
}

// deviceTimeout behaves like a UART with nothing to read.
type deviceTimeout struct{}

func (deviceTimeout) Read(p []byte) (int, error) { return 0, serial.ErrTimeout }

// lateFault fails only after the device read timeout has passed.
type lateFault struct {
	delay time.Duration
}

func (r lateFault) Read(p []byte) (int, error) {
	time.Sleep(r.delay)
	return 0, errors.New("input/output error")
}

type failingIO struct{}

func (failingIO) Read(p []byte) (int, error)  { return 0, errors.New("device unplugged") }
func (failingIO) Write(p []byte) (int, error) { return 0, errors.New("device unplugged") }

func newTestPort(r io.Reader, w io.Writer) (*Port, *mockPort) {
	mock := &mockPort{Reader: r, Writer: w}
	p := New(config.SerialConfig{BaudRate: 115200}, 20*time.Millisecond)
	p.IdleTimeout = 0
	p.port = mock
	return p, mock
}

func TestNew(t *testing.T) {
	p := New(config.SerialConfig{
		Device:             "/dev/ttyUSB1",
		BaudRate:           9600,
		DataBits:           8,
		Parity:             "E",
		StopBits:           1,
		RS485:              true,
		DelayRtsBeforeSend: time.Millisecond,
	}, 50*time.Millisecond)

	if p.Config.Address != "/dev/ttyUSB1" || p.Config.BaudRate != 9600 || p.Config.Timeout != 50*time.Millisecond {
		t.Errorf("config = %+v", p.Config)
	}
	if !p.Config.RS485.Enabled || p.Config.RS485.DelayRtsBeforeSend != time.Millisecond {
		t.Errorf("rs485 = %+v", p.Config.RS485)
	}
	if p.IdleTimeout != serialIdleTimeout {
		t.Errorf("idle timeout = %v", p.IdleTimeout)
	}
}

func TestWriteRead(t *testing.T) {
	writer := &bytes.Buffer{}
	p, _ := newTestPort(&chunkReader{data: []byte{0x01, 0x02, 0x03, 0x04, 0x05}, size: 2}, writer)

	if err := p.Write(context.Background(), []byte{0xAA, 0xBB}, modbus.BusTimeout); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(writer.Bytes(), []byte{0xAA, 0xBB}) {
		t.Errorf("wrote % X", writer.Bytes())
	}

	buf := make([]byte, 5)
	if err := p.Read(context.Background(), buf, modbus.BusTimeout); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, []byte{0x01, 0x02, 0x03, 0x04, 0x05}) {
		t.Errorf("read % X", buf)
	}
}

func TestReadPartialIsTimeout(t *testing.T) {
	p, mock := newTestPort(bytes.NewReader([]byte{0x01, 0x02}), io.Discard)

	start := time.Now()
	err := p.Read(context.Background(), make([]byte, 4), 30*time.Millisecond)
	if !errors.Is(err, modbus.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("returned after %v, before the deadline", elapsed)
	}
	if mock.closed {
		t.Error("port closed on timeout")
	}
}

func TestDeviceTimeoutIsTimeout(t *testing.T) {
	p, mock := newTestPort(deviceTimeout{}, io.Discard)

	err := transport.Translate(p.Read(context.Background(), make([]byte, 4), 30*time.Millisecond))
	if !errors.Is(err, modbus.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if mock.closed {
		t.Error("port closed on device timeout")
	}
}

func TestLateFaultIsIOError(t *testing.T) {
	// Config.Timeout of the test port is 20ms.
	p, mock := newTestPort(lateFault{delay: 40 * time.Millisecond}, io.Discard)

	err := transport.Translate(p.Read(context.Background(), make([]byte, 4), modbus.BusTimeout))
	if !errors.Is(err, modbus.ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
	if !mock.closed {
		t.Error("port not closed after a read failure")
	}
}

func TestIOErrorClosesPort(t *testing.T) {
	p, mock := newTestPort(failingIO{}, failingIO{})

	err := transport.Translate(p.Read(context.Background(), make([]byte, 4), modbus.BusTimeout))
	if !errors.Is(err, modbus.ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
	if !mock.closed || p.port != nil {
		t.Error("port not closed after a read failure")
	}

	p.port = mock
	err = transport.Translate(p.Write(context.Background(), []byte{0x01}, modbus.BusTimeout))
	if !errors.Is(err, modbus.ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
}

func TestCanceledContext(t *testing.T) {
	p, _ := newTestPort(bytes.NewReader(nil), io.Discard)
	p.port = nil

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := transport.Translate(p.Write(ctx, []byte{0x01}, modbus.BusTimeout))
	if !errors.Is(err, modbus.ErrIO) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected ErrIO wrapping context.Canceled, got %v", err)
	}
}

func TestIdle(t *testing.T) {
	p := New(config.SerialConfig{BaudRate: 115200}, modbus.BusTimeout)
	start := time.Now()
	p.Idle(8)
	if elapsed := time.Since(start); elapsed < transport.FrameDelay(115200, 8) {
		t.Errorf("idle lasted %v", elapsed)
	}
}

func TestCloseIdle(t *testing.T) {
	p, mock := newTestPort(bytes.NewReader(nil), io.Discard)
	p.IdleTimeout = 10 * time.Millisecond

	if err := p.Write(context.Background(), []byte{0x01}, modbus.BusTimeout); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)

	p.mu.Lock()
	defer p.mu.Unlock()
	if !mock.closed || p.port != nil {
		t.Error("port still open after the idle timeout")
	}
}

func TestServoOverSerial(t *testing.T) {
	answer, err := rtu.Codec{}.Encode([]byte{0x05, 0x03, 0x04, 0x12, 0x34, 0x56, 0x78})
	if err != nil {
		t.Fatal(err)
	}
	writer := &bytes.Buffer{}
	p, _ := newTestPort(bytes.NewReader(answer), writer)

	bus, err := protocol.New(protocol.Params{Mode: modbus.ModeRTU, Transport: p})
	if err != nil {
		t.Fatal(err)
	}
	words, err := servo.NewDriver(bus).ReadWords(context.Background(), 5, 0x0010, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(words) != 2 || words[0] != 0x1234 || words[1] != 0x5678 {
		t.Errorf("words = %04X", words)
	}

	request, err := rtu.Unpack(writer.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(request, []byte{0x05, 0x03, 0x00, 0x10, 0x00, 0x02}) {
		t.Errorf("request = % X", request)
	}
}
