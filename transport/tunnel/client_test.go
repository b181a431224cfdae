// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package tunnel

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/ffutop/servo-driver/modbus"
	"github.com/ffutop/servo-driver/modbus/ascii"
	"github.com/ffutop/servo-driver/protocol"
	"github.com/ffutop/servo-driver/servo"
	"github.com/ffutop/servo-driver/transport"
)

// pipeClient returns a client whose connection is one end of a net.Pipe.
func pipeClient(t *testing.T) (*Client, net.Conn) {
	t.Helper()
	local, remote := net.Pipe()
	t.Cleanup(func() {
		local.Close()
		remote.Close()
	})

	c := NewClient("pipe", 115200)
	c.dial = func(ctx context.Context, network, address string) (net.Conn, error) {
		return local, nil
	}
	return c, remote
}

func TestWriteRead(t *testing.T) {
	c, remote := pipeClient(t)

	go func() {
		buf := make([]byte, 3)
		if _, err := io.ReadFull(remote, buf); err != nil {
			return
		}
		// answer in two chunks
		remote.Write([]byte{0x01, 0x02})
		remote.Write([]byte{0x03})
	}()

	if err := c.Write(context.Background(), []byte{0xAA, 0xBB, 0xCC}, modbus.BusTimeout); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 3)
	if err := c.Read(context.Background(), buf, modbus.BusTimeout); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, []byte{0x01, 0x02, 0x03}) {
		t.Errorf("read % X", buf)
	}
}

func TestReadTimeoutClosesConnection(t *testing.T) {
	c, remote := pipeClient(t)
	go remote.Write([]byte{0x01})

	err := transport.Translate(c.Read(context.Background(), make([]byte, 4), 20*time.Millisecond))
	if !errors.Is(err, modbus.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if c.conn != nil {
		t.Error("connection kept after a timeout")
	}
}

func TestLateAnswerDoesNotLeak(t *testing.T) {
	conns := make(chan net.Conn, 2)
	c := NewClient("pipe", 115200)
	c.dial = func(ctx context.Context, network, address string) (net.Conn, error) {
		local, remote := net.Pipe()
		t.Cleanup(func() {
			local.Close()
			remote.Close()
		})
		conns <- remote
		return local, nil
	}
	bus, err := protocol.New(protocol.Params{Mode: modbus.ModeASCII, Transport: c})
	if err != nil {
		t.Fatal(err)
	}
	answer, _ := ascii.Codec{}.Encode([]byte{0x05, 0x03, 0x04, 0x12, 0x34, 0x56, 0x78})

	// slow device: part of the answer in time, the rest after the timeout
	lateErr := make(chan error, 1)
	go func() {
		remote := <-conns
		request := make([]byte, ascii.FrameLength(6))
		if _, err := io.ReadFull(remote, request); err != nil {
			lateErr <- err
			return
		}
		remote.Write(answer[:3])
		time.Sleep(3 * modbus.BusTimeout / 2)
		_, err := remote.Write(answer[3:])
		lateErr <- err
	}()

	driver := servo.NewDriver(bus)
	if _, err := driver.ReadWords(context.Background(), 5, 0x0010, 2); !errors.Is(err, modbus.ErrTimeout) {
		t.Fatalf("first read: expected ErrTimeout, got %v", err)
	}
	if err := <-lateErr; err == nil {
		t.Error("late bytes were accepted by the closed connection")
	}

	// prompt device on the new connection
	go func() {
		remote := <-conns
		request := make([]byte, ascii.FrameLength(6))
		if _, err := io.ReadFull(remote, request); err != nil {
			return
		}
		remote.Write(answer)
	}()

	words, err := driver.ReadWords(context.Background(), 5, 0x0010, 2)
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if len(words) != 2 || words[0] != 0x1234 || words[1] != 0x5678 {
		t.Errorf("words = %04X", words)
	}
}

func TestReadClosedIsIOError(t *testing.T) {
	c, remote := pipeClient(t)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	remote.Close()

	err := transport.Translate(c.Read(context.Background(), make([]byte, 4), modbus.BusTimeout))
	if !errors.Is(err, modbus.ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
	if c.conn != nil {
		t.Error("connection kept after a read failure")
	}
}

func TestDialFailure(t *testing.T) {
	c := NewClient("pipe", 9600)
	c.dial = func(ctx context.Context, network, address string) (net.Conn, error) {
		return nil, errors.New("connection refused")
	}
	err := transport.Translate(c.Write(context.Background(), []byte{0x01}, modbus.BusTimeout))
	if !errors.Is(err, modbus.ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
}

func TestServoOverTunnel(t *testing.T) {
	c, remote := pipeClient(t)
	bus, err := protocol.New(protocol.Params{Mode: modbus.ModeASCII, Transport: c})
	if err != nil {
		t.Fatal(err)
	}

	go func() {
		request := make([]byte, ascii.FrameLength(6))
		if _, err := io.ReadFull(remote, request); err != nil {
			return
		}
		if string(request) != ":050300100002E6\r\n" {
			remote.Close()
			return
		}
		answer, _ := ascii.Codec{}.Encode([]byte{0x05, 0x03, 0x04, 0x12, 0x34, 0x56, 0x78})
		remote.Write(answer)
	}()

	words, err := servo.NewDriver(bus).ReadWords(context.Background(), 5, 0x0010, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(words) != 2 || words[0] != 0x1234 || words[1] != 0x5678 {
		t.Errorf("words = %04X", words)
	}
}
