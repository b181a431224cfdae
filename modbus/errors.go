// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

import "errors"

// Protocol level results. A nil error is a successful transaction.
var (
	// ErrNoBufferSpace is returned when a frame does not fit the staging
	// buffer. It is detected before any bus I/O.
	ErrNoBufferSpace = errors.New("modbus: insufficient buffer space")
	// ErrTimeout is returned when nothing was sent or received within the bus timeout.
	ErrTimeout = errors.New("modbus: bus timeout")
	// ErrCorrupted is returned for bad delimiters or a checksum mismatch.
	ErrCorrupted = errors.New("modbus: frame corrupted")
	// ErrIO is returned when the transport reports a fault.
	ErrIO = errors.New("modbus: i/o error")
)

// Result enumerates the protocol outcomes.
type Result int

const (
	ResultSuccess Result = iota
	ResultNoBufferSpace
	ResultTimeout
	ResultCorrupted
	ResultIOError
)

var resultNames = map[Result]string{
	ResultSuccess:       "success",
	ResultNoBufferSpace: "no buffer space",
	ResultTimeout:       "timeout",
	ResultCorrupted:     "corrupted",
	ResultIOError:       "i/o error",
}

func (r Result) String() string {
	if s, ok := resultNames[r]; ok {
		return s
	}
	return "unknown"
}

// ResultOf classifies err. Errors outside the protocol taxonomy are
// reported as ResultIOError.
func ResultOf(err error) Result {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, ErrNoBufferSpace):
		return ResultNoBufferSpace
	case errors.Is(err, ErrTimeout):
		return ResultTimeout
	case errors.Is(err, ErrCorrupted):
		return ResultCorrupted
	default:
		return ResultIOError
	}
}
