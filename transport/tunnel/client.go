// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package tunnel is a bus transport to a serial device server: the raw
// ASCII or RTU frames are carried over a TCP connection unchanged.
package tunnel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/ffutop/servo-driver/transport"
)

const (
	dialTimeout = 10 * time.Second
)

// Client is a connection to a serial device server.
type Client struct {
	Address     string
	DialTimeout time.Duration
	// BaudRate of the remote serial line, used for inter-frame delays.
	BaudRate int

	mu   sync.Mutex
	conn net.Conn
	dial func(ctx context.Context, network, address string) (net.Conn, error)
}

// NewClient allocates and initializes a tunnel Client.
func NewClient(address string, baudRate int) *Client {
	d := &net.Dialer{}
	return &Client{
		Address:     address,
		DialTimeout: dialTimeout,
		BaudRate:    baudRate,
		dial:        d.DialContext,
	}
}

// Write sends data within timeout.
func (c *Client) Write(ctx context.Context, data []byte, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connect(ctx); err != nil {
		return fmt.Errorf("tunnel: failed to connect to %s: %w", c.Address, err)
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		c.close()
		return err
	}
	if _, err := c.conn.Write(data); err != nil {
		c.close() // Close connection on write failure to force reconnect next time
		return fmt.Errorf("tunnel: failed to write to connection: %w", err)
	}
	return nil
}

// Read fills buf within timeout. Any failure, a timeout included, closes
// the connection so the next transaction starts on a clean stream.
func (c *Client) Read(ctx context.Context, buf []byte, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connect(ctx); err != nil {
		return fmt.Errorf("tunnel: failed to connect to %s: %w", c.Address, err)
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		c.close()
		return err
	}
	if n, err := io.ReadFull(c.conn, buf); err != nil {
		// Late bytes of this answer would be read as the next one.
		c.close()
		if transport.IsTimeout(err) {
			return fmt.Errorf("tunnel: received %d of %d bytes: %w", n, len(buf), err)
		}
		return fmt.Errorf("tunnel: failed to read response: %w", err)
	}
	return nil
}

// Idle waits for the device server to shift a frame of length bytes out
// on its serial line and for the inter-frame silence.
func (c *Client) Idle(length int) {
	time.Sleep(transport.FrameDelay(c.BaudRate, length))
}

// Connect opens the connection if needed.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connect(ctx)
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.close()
	return nil
}

// connect ensures there is an active connection. Caller must hold the mutex.
func (c *Client) connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.DialTimeout)
	defer cancel()

	conn, err := c.dial(ctx, "tcp", c.Address)
	if err != nil {
		return err
	}
	slog.Info("connected to serial device server", "addr", c.Address)
	c.conn = conn
	return nil
}

// close closes the connection and resets the state. Caller must hold the mutex.
func (c *Client) close() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}
