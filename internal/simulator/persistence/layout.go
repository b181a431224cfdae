// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/ffutop/servo-driver/internal/simulator/model"
)

// Image layout, registers stored BigEndian as on the wire:
// - Holding: 65536 * 2 bytes (Offset 0)
// - Input:   65536 * 2 bytes (Offset 131072)
// Total Size: 262144 bytes
const (
	sizeHolding = (model.MaxAddress + 1) * 2
	sizeInput   = (model.MaxAddress + 1) * 2
	totalSize   = sizeHolding + sizeInput

	offsetHolding = 0
	offsetInput   = offsetHolding + sizeHolding
)

// offset returns the image offset of a register.
func offset(table model.Table, address uint16) int {
	if table == model.TableInput {
		return offsetInput + int(address)*2
	}
	return offsetHolding + int(address)*2
}

// openImage opens path, creating it if necessary, and sizes it to totalSize.
func openImage(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open register image: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() != int64(totalSize) {
		if err := f.Truncate(int64(totalSize)); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to resize register image: %w", err)
		}
	}
	return f, nil
}

// decodeImage builds a register image from its on-disk form.
func decodeImage(data []byte) *model.Registers {
	regs := model.NewRegisters()
	for i := range regs.Holding {
		regs.Holding[i] = binary.BigEndian.Uint16(data[offsetHolding+2*i:])
	}
	for i := range regs.Input {
		regs.Input[i] = binary.BigEndian.Uint16(data[offsetInput+2*i:])
	}
	return regs
}

// encodeRange stores a range of regs into data.
func encodeRange(data []byte, regs *model.Registers, table model.Table, address uint16, quantity int) error {
	values, err := regs.Snapshot(table, address, quantity)
	if err != nil {
		return err
	}
	at := offset(table, address)
	for i, v := range values {
		binary.BigEndian.PutUint16(data[at+2*i:], v)
	}
	return nil
}

// encodeImage stores all of regs into data.
func encodeImage(data []byte, regs *model.Registers) error {
	if err := encodeRange(data, regs, model.TableHolding, 0, model.MaxAddress+1); err != nil {
		return err
	}
	return encodeRange(data, regs, model.TableInput, 0, model.MaxAddress+1)
}
