// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import "github.com/ffutop/servo-driver/internal/simulator/model"

// MemoryStorage is a no-op storage (non-persistent).
type MemoryStorage struct{}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (ms *MemoryStorage) Load() (*model.Registers, error) {
	return model.NewRegisters(), nil
}

func (ms *MemoryStorage) Save(regs *model.Registers) error {
	return nil
}

func (ms *MemoryStorage) OnWrite(table model.Table, address, quantity uint16) {}

func (ms *MemoryStorage) Close() error {
	return nil
}
