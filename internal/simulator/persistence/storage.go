// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"github.com/ffutop/servo-driver/internal/simulator/model"
)

// Storage defines the interface for persisting the simulated servo registers.
type Storage interface {
	// Load loads the register image from storage.
	// If no data exists, it returns a zeroed image.
	Load() (*model.Registers, error)

	// Save writes the whole register image to storage.
	Save(regs *model.Registers) error

	// OnWrite is a hook called whenever registers are modified through the bus.
	// It allows the storage to perform real-time persistence of the range.
	OnWrite(table model.Table, address, quantity uint16)

	Close() error
}
