// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package servo is a register client for EPS-B1 series servo drives.
//
// Every operation is one request/answer transaction on the bus: the request
// payload is [axis, function, data...] and the answer is validated against
// the echoed axis, function and address fields.
package servo

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ffutop/servo-driver/modbus"
)

const (
	// MinAxis and MaxAxis bound the servo communication address.
	MinAxis = 1
	MaxAxis = 127
	// MaxWords is the largest word count accepted by ReadWords and WriteWords.
	MaxWords = 29
)

// Bus is the protocol surface the driver needs. *protocol.Protocol
// implements it.
type Bus interface {
	RequestWrite(ctx context.Context, data []byte) error
	AnswerRead(ctx context.Context, data []byte) error
}

// Option configures a Driver.
type Option func(*Driver)

// WithRetries repeats a transaction up to n more times after a timeout or a
// corrupted answer.
func WithRetries(n int) Option {
	return func(d *Driver) {
		if n > 0 {
			d.retries = n
		}
	}
}

// Driver talks to the servos on one bus. It is safe for concurrent use;
// transactions are serialized.
type Driver struct {
	mu      sync.Mutex
	bus     Bus
	retries int
}

// NewDriver returns a driver using bus.
func NewDriver(bus Bus, opts ...Option) *Driver {
	d := &Driver{bus: bus}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ReadWords reads count holding registers starting at address.
func (d *Driver) ReadWords(ctx context.Context, axis uint8, address uint16, count int) ([]uint16, error) {
	if err := checkAxis(axis); err != nil {
		return nil, err
	}
	if err := checkCount(count); err != nil {
		return nil, err
	}

	request := make([]byte, 6)
	request[0] = axis
	request[1] = modbus.FuncCodeReadHoldingRegisters
	binary.BigEndian.PutUint16(request[2:], address)
	binary.BigEndian.PutUint16(request[4:], uint16(count))

	answer, err := d.transact(ctx, request)
	if err != nil {
		return nil, err
	}
	if err := expect("axis", uint16(axis), uint16(answer[0])); err != nil {
		return nil, err
	}
	if err := expect("function", modbus.FuncCodeReadHoldingRegisters, uint16(answer[1])); err != nil {
		return nil, err
	}
	if err := expect("byte count", uint16(2*count), uint16(answer[2])); err != nil {
		return nil, err
	}

	words := make([]uint16, count)
	for i := range words {
		words[i] = binary.BigEndian.Uint16(answer[3+2*i:])
	}
	return words, nil
}

// WriteWords writes words to consecutive holding registers starting at
// address.
func (d *Driver) WriteWords(ctx context.Context, axis uint8, address uint16, words []uint16) error {
	if err := checkAxis(axis); err != nil {
		return err
	}
	if err := checkCount(len(words)); err != nil {
		return err
	}

	request := make([]byte, 7+2*len(words))
	request[0] = axis
	request[1] = modbus.FuncCodeWriteMultipleRegisters
	binary.BigEndian.PutUint16(request[2:], address)
	binary.BigEndian.PutUint16(request[4:], uint16(len(words)))
	request[6] = byte(2 * len(words))
	for i, w := range words {
		binary.BigEndian.PutUint16(request[7+2*i:], w)
	}

	answer, err := d.transact(ctx, request)
	if err != nil {
		return err
	}
	return expectEcho(answer, axis, modbus.FuncCodeWriteMultipleRegisters, address, "count", uint16(len(words)))
}

// WriteWord writes a single holding register.
func (d *Driver) WriteWord(ctx context.Context, axis uint8, address uint16, word uint16) error {
	if err := checkAxis(axis); err != nil {
		return err
	}

	request := make([]byte, 6)
	request[0] = axis
	request[1] = modbus.FuncCodeWriteSingleRegister
	binary.BigEndian.PutUint16(request[2:], address)
	binary.BigEndian.PutUint16(request[4:], word)

	answer, err := d.transact(ctx, request)
	if err != nil {
		return err
	}
	return expectEcho(answer, axis, modbus.FuncCodeWriteSingleRegister, address, "value", word)
}

// transact writes request and reads the answer, retrying on timeout or
// corruption when configured.
func (d *Driver) transact(ctx context.Context, request []byte) ([]byte, error) {
	length, err := modbus.ResponseLength(request)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	answer := make([]byte, length)
	for attempt := 0; ; attempt++ {
		err = d.bus.RequestWrite(ctx, request)
		if err == nil {
			err = d.bus.AnswerRead(ctx, answer)
		}
		if err == nil {
			return answer, nil
		}
		if attempt >= d.retries || !retryable(err) || ctx.Err() != nil {
			return nil, fmt.Errorf("servo: axis %d function 0x%02X: %w", request[0], request[1], err)
		}
		slog.Debug("servo transaction failed, retrying", "axis", request[0], "function", request[1], "attempt", attempt+1, "err", err)
	}
}

func retryable(err error) bool {
	return errors.Is(err, modbus.ErrTimeout) || errors.Is(err, modbus.ErrCorrupted)
}

func checkAxis(axis uint8) error {
	if axis < MinAxis || axis > MaxAxis {
		return fmt.Errorf("%w: %d", ErrInvalidAxis, axis)
	}
	return nil
}

func checkCount(count int) error {
	if count < 0 || count > MaxWords {
		return fmt.Errorf("%w: %d, at most %d", ErrTooManyWords, count, MaxWords)
	}
	return nil
}

func expect(field string, want, got uint16) error {
	if want != got {
		return &MismatchError{Field: field, Want: want, Got: got}
	}
	return nil
}

// expectEcho checks the 6 byte answer to a write: axis, function, address
// and a final field echoed from the request.
func expectEcho(answer []byte, axis uint8, function byte, address uint16, field string, value uint16) error {
	if err := expect("axis", uint16(axis), uint16(answer[0])); err != nil {
		return err
	}
	if err := expect("function", uint16(function), uint16(answer[1])); err != nil {
		return err
	}
	if err := expect("address", address, binary.BigEndian.Uint16(answer[2:])); err != nil {
		return err
	}
	return expect(field, value, binary.BigEndian.Uint16(answer[4:]))
}
