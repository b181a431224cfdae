// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ffutop/servo-driver/internal/simulator/model"
)

// FileStorage implements persistence using plain file operations.
// Every bus write rewrites the modified range and syncs the file.
type FileStorage struct {
	path string
	file *os.File
	data []byte
	regs *model.Registers
}

// NewFileStorage creates a new FileStorage.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{
		path: path,
	}
}

// Load reads the register image from the file.
func (fs *FileStorage) Load() (*model.Registers, error) {
	f, err := openImage(fs.path)
	if err != nil {
		return nil, err
	}

	data := make([]byte, totalSize)
	if _, err := io.ReadFull(f, data); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	fs.file = f
	fs.data = data
	fs.regs = decodeImage(data)
	return fs.regs, nil
}

// Save writes the whole image and flushes it to disk.
func (fs *FileStorage) Save(regs *model.Registers) error {
	if fs.file == nil {
		return fmt.Errorf("file storage %s is not loaded", fs.path)
	}
	if err := encodeImage(fs.data, regs); err != nil {
		return err
	}
	if _, err := fs.file.WriteAt(fs.data, 0); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return fs.sync()
}

// OnWrite writes the modified range and syncs the file.
func (fs *FileStorage) OnWrite(table model.Table, address, quantity uint16) {
	if fs.file == nil || fs.regs == nil {
		return
	}
	if err := encodeRange(fs.data, fs.regs, table, address, int(quantity)); err != nil {
		slog.Error("Failed to encode registers", "table", table, "address", address, "err", err)
		return
	}
	at := offset(table, address)
	if _, err := fs.file.WriteAt(fs.data[at:at+2*int(quantity)], int64(at)); err != nil {
		slog.Error("Failed to write file", "path", fs.path, "err", err)
		return
	}
	if err := fs.sync(); err != nil {
		slog.Error("Failed to sync file", "path", fs.path, "err", err)
	}
}

func (fs *FileStorage) sync() error {
	if err := fs.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file to disk: %w", err)
	}
	return nil
}

// Close the file.
func (fs *FileStorage) Close() error {
	if fs.file == nil {
		return nil
	}
	err := fs.file.Close()
	fs.file = nil
	return err
}
