// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ffutop/servo-driver/modbus"
)

// Writer transmits a complete frame on the bus.
type Writer interface {
	// Write sends exactly len(data) bytes within timeout.
	// A nil error means the frame was written; an error reporting
	// Timeout() == true (or wrapping modbus.ErrTimeout) means nothing
	// could be sent in time; any other error is an I/O fault.
	Write(ctx context.Context, data []byte, timeout time.Duration) error
}

// Reader receives a frame from the bus.
type Reader interface {
	// Read fills buf with exactly len(buf) bytes within timeout.
	// Receiving fewer bytes before the timeout is a timeout, not a
	// partial success.
	Read(ctx context.Context, buf []byte, timeout time.Duration) error
}

// Transport is the byte level capability the codecs depend on.
type Transport interface {
	Writer
	Reader
}

// Idler keeps the line silent after a frame. It is required in RTU mode,
// where frames are delimited by at least 3.5 character times of silence.
type Idler interface {
	// Idle blocks until the bus may carry the next frame after a frame of
	// length bytes has been written.
	Idle(length int)
}

// IdleFunc adapts a plain function to the Idler interface.
type IdleFunc func(length int)

func (f IdleFunc) Idle(length int) { f(length) }

// Translate maps a transport result onto the protocol taxonomy:
// nil stays nil, timeouts become modbus.ErrTimeout and everything else
// becomes modbus.ErrIO. The original error stays in the chain.
func Translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, modbus.ErrTimeout), errors.Is(err, modbus.ErrIO):
		return err
	case IsTimeout(err):
		return fmt.Errorf("%w: %w", modbus.ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %w", modbus.ErrIO, err)
	}
}

// IsTimeout reports whether err is, or wraps, an error with a Timeout
// method returning true (net.Error, os.ErrDeadlineExceeded,
// context.DeadlineExceeded).
func IsTimeout(err error) bool {
	if errors.Is(err, modbus.ErrTimeout) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// FrameDelay returns the time needed to put chars characters on the wire
// followed by the 3.5 character inter-frame silence. Above 19200 baud
// the fixed 750µs / 1750µs timings apply.
func FrameDelay(baudRate, chars int) time.Duration {
	var characterDelay, frameDelay int

	if baudRate <= 0 || baudRate > 19200 {
		characterDelay = 750
		frameDelay = 1750
	} else {
		characterDelay = 15000000 / baudRate
		frameDelay = 35000000 / baudRate
	}
	return time.Duration(characterDelay*chars+frameDelay) * time.Microsecond
}
