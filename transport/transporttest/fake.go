// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package transporttest provides a scripted transport for codec and
// client tests.
package transporttest

import (
	"context"
	"sync"
	"time"

	"github.com/ffutop/servo-driver/modbus"
)

// Fake records every call and serves reads from Response.
// A read asking for more bytes than are queued consumes what is left and
// reports modbus.ErrTimeout, like a real bus that went quiet mid frame.
type Fake struct {
	mu sync.Mutex

	// Response holds the bytes returned by subsequent reads.
	Response []byte
	// Reply, if set, is called for every written frame and its result is
	// appended to Response.
	Reply func(frame []byte) []byte

	WriteErr error
	ReadErr  error

	Written  [][]byte
	Timeouts []time.Duration
	Idles    []int
	Reads    int
}

func (f *Fake) Write(ctx context.Context, data []byte, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Timeouts = append(f.Timeouts, timeout)
	if f.WriteErr != nil {
		return f.WriteErr
	}
	frame := make([]byte, len(data))
	copy(frame, data)
	f.Written = append(f.Written, frame)
	if f.Reply != nil {
		f.Response = append(f.Response, f.Reply(frame)...)
	}
	return nil
}

func (f *Fake) Read(ctx context.Context, buf []byte, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Reads++
	f.Timeouts = append(f.Timeouts, timeout)
	if f.ReadErr != nil {
		return f.ReadErr
	}
	n := copy(buf, f.Response)
	f.Response = f.Response[n:]
	if n < len(buf) {
		return modbus.ErrTimeout
	}
	return nil
}

func (f *Fake) Idle(length int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Idles = append(f.Idles, length)
}

// Calls returns the number of writes attempted plus reads attempted.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.Timeouts)
}
