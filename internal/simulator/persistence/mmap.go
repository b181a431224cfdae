// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/ffutop/servo-driver/internal/simulator/model"
)

// MmapStorage implements persistence using a memory-mapped image file.
// Writes are copied into the mapping and flushed by the OS.
type MmapStorage struct {
	path string
	file *os.File
	data mmap.MMap
	regs *model.Registers
}

// NewMmapStorage creates a new MmapStorage.
func NewMmapStorage(path string) *MmapStorage {
	return &MmapStorage{
		path: path,
	}
}

// Load maps the image file and decodes the registers.
func (ms *MmapStorage) Load() (*model.Registers, error) {
	f, err := openImage(ms.path)
	if err != nil {
		return nil, err
	}

	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap failed: %w", err)
	}

	ms.file = f
	ms.data = data
	ms.regs = decodeImage(data)
	return ms.regs, nil
}

// Save copies the whole image into the mapping and flushes it.
func (ms *MmapStorage) Save(regs *model.Registers) error {
	if ms.data == nil {
		return fmt.Errorf("mmap data is nil")
	}
	if err := encodeImage(ms.data, regs); err != nil {
		return err
	}
	return ms.data.Flush()
}

// OnWrite copies the modified range and flushes the mapping.
func (ms *MmapStorage) OnWrite(table model.Table, address, quantity uint16) {
	if ms.data == nil || ms.regs == nil {
		return
	}
	if err := encodeRange(ms.data, ms.regs, table, address, int(quantity)); err != nil {
		slog.Error("Failed to encode registers", "table", table, "address", address, "err", err)
		return
	}
	if err := ms.data.Flush(); err != nil {
		slog.Error("Failed to flush mmap", "err", err)
	}
}

// Close unmaps and closes the file.
func (ms *MmapStorage) Close() error {
	var err error
	if ms.data != nil {
		if e := ms.data.Unmap(); e != nil {
			err = e
		}
		ms.data = nil
	}
	if ms.file != nil {
		if e := ms.file.Close(); e != nil {
			err = e
		}
		ms.file = nil
	}
	return err
}
