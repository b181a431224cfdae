// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package model

import (
	"encoding/binary"
	"fmt"
	"sync"
)

const (
	MaxAddress = 65535
)

// Table identifies a register table of the servo.
type Table int

const (
	// TableHolding holds the read/write servo parameters.
	TableHolding Table = iota
	// TableInput holds read-only monitor values.
	TableInput
)

func (t Table) String() string {
	switch t {
	case TableHolding:
		return "holding"
	case TableInput:
		return "input"
	default:
		return fmt.Sprintf("Table(%d)", int(t))
	}
}

// Registers is the register image of a servo drive.
// It covers the full 16-bit address space of both tables.
type Registers struct {
	mu sync.RWMutex

	// 4x Holding Registers (Read/Write).
	Holding []uint16
	// 3x Input Registers (Read Only from the bus).
	Input []uint16
}

// NewRegisters creates a register image initialized to zero.
func NewRegisters() *Registers {
	return &Registers{
		Holding: make([]uint16, MaxAddress+1),
		Input:   make([]uint16, MaxAddress+1),
	}
}

// Read returns quantity registers of table as BigEndian bytes.
func (r *Registers) Read(table Table, address, quantity uint16) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := validateRange(address, quantity); err != nil {
		return nil, err
	}
	regs, err := r.table(table)
	if err != nil {
		return nil, err
	}

	result := make([]byte, int(quantity)*2)
	for i := 0; i < int(quantity); i++ {
		binary.BigEndian.PutUint16(result[i*2:], regs[int(address)+i])
	}
	return result, nil
}

// Write stores BigEndian register values starting at address.
func (r *Registers) Write(table Table, address uint16, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(data)%2 != 0 {
		return fmt.Errorf("odd data length %d", len(data))
	}
	quantity := uint16(len(data) / 2)
	if err := validateRange(address, quantity); err != nil {
		return err
	}
	regs, err := r.table(table)
	if err != nil {
		return err
	}

	for i := 0; i < int(quantity); i++ {
		regs[int(address)+i] = binary.BigEndian.Uint16(data[i*2:])
	}
	return nil
}

// Set writes values directly, e.g. to preset monitor values.
func (r *Registers) Set(table Table, address uint16, values ...uint16) error {
	data := make([]byte, 2*len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(data[2*i:], v)
	}
	return r.Write(table, address, data)
}

// Snapshot copies quantity registers of table, up to the whole table.
func (r *Registers) Snapshot(table Table, address uint16, quantity int) ([]uint16, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if quantity <= 0 || int(address)+quantity > MaxAddress+1 {
		return nil, fmt.Errorf("invalid snapshot range %d+%d", address, quantity)
	}
	regs, err := r.table(table)
	if err != nil {
		return nil, err
	}
	return append([]uint16(nil), regs[int(address):int(address)+quantity]...), nil
}

// table returns the backing slice. Caller must hold the mutex.
func (r *Registers) table(t Table) ([]uint16, error) {
	switch t {
	case TableHolding:
		return r.Holding, nil
	case TableInput:
		return r.Input, nil
	default:
		return nil, fmt.Errorf("unknown register table %v", t)
	}
}

func validateRange(address, quantity uint16) error {
	if quantity == 0 {
		return fmt.Errorf("quantity must be greater than 0")
	}
	// address is 0-based.
	if int(address)+int(quantity) > MaxAddress+1 {
		return fmt.Errorf("address range out of bounds")
	}
	return nil
}
