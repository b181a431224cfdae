// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package simulator emulates the register interface of a servo drive.
// It answers request payloads handed to it in-process and never listens
// on a bus.
package simulator

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/ffutop/servo-driver/internal/config"
	"github.com/ffutop/servo-driver/internal/simulator/model"
	"github.com/ffutop/servo-driver/internal/simulator/persistence"
	"github.com/ffutop/servo-driver/modbus"
)

const (
	maxReadQuantity  = 125
	maxWriteQuantity = 123
)

// Servo implements the Modbus register functions of a servo drive on top
// of a register image.
type Servo struct {
	axis    byte
	regs    *model.Registers
	storage persistence.Storage
}

// New creates a Servo answering at axis.
func New(axis byte, regs *model.Registers, storage persistence.Storage) *Servo {
	if storage == nil {
		storage = persistence.NewMemoryStorage()
	}
	return &Servo{axis: axis, regs: regs, storage: storage}
}

// Open creates a Servo with the storage selected by cfg.
func Open(cfg config.SimulatorConfig) (*Servo, error) {
	if cfg.Axis < 1 || cfg.Axis > 127 {
		return nil, fmt.Errorf("simulator: invalid axis %d", cfg.Axis)
	}

	var storage persistence.Storage
	switch cfg.Persistence.Type {
	case "file", "mmap":
		if cfg.Persistence.Path == "" {
			return nil, fmt.Errorf("simulator: %s persistence needs a path", cfg.Persistence.Type)
		}
	}
	switch cfg.Persistence.Type {
	case "file":
		slog.Info("Initializing simulated servo with file persistence", "path", cfg.Persistence.Path)
		storage = persistence.NewFileStorage(cfg.Persistence.Path)
	case "mmap":
		slog.Info("Initializing simulated servo with MMAP persistence", "path", cfg.Persistence.Path)
		storage = persistence.NewMmapStorage(cfg.Persistence.Path)
	case "memory", "":
		slog.Info("Initializing simulated servo with memory storage (non-persistent)")
		storage = persistence.NewMemoryStorage()
	default:
		return nil, fmt.Errorf("simulator: unknown persistence type %q", cfg.Persistence.Type)
	}

	regs, err := storage.Load()
	if err != nil {
		slog.Error("Failed to load persistence data, falling back to MemoryStorage", "err", err)
		storage = persistence.NewMemoryStorage()
		if regs, err = storage.Load(); err != nil {
			return nil, fmt.Errorf("simulator: %w", err)
		}
	}
	return New(byte(cfg.Axis), regs, storage), nil
}

// Axis returns the communication address of the servo.
func (s *Servo) Axis() byte {
	return s.axis
}

// Registers returns the register image.
func (s *Servo) Registers() *model.Registers {
	return s.regs
}

// Close releases the storage.
func (s *Servo) Close() error {
	return s.storage.Close()
}

// Handle answers a request payload [axis, function, data...]. It returns
// nil when the servo stays silent: requests for another axis, broadcasts
// and malformed payloads.
func (s *Servo) Handle(payload []byte) []byte {
	if len(payload) < 2 || payload[0] != s.axis {
		return nil
	}
	if length, err := modbus.RequestLength(payload); err == nil && length != len(payload) {
		slog.Debug("simulated servo dropped malformed request", "axis", s.axis, "length", len(payload), "expected", length)
		return nil
	}

	resp := s.Process(modbus.ProtocolDataUnit{FunctionCode: payload[1], Data: payload[2:]})

	answer := make([]byte, 0, 2+len(resp.Data))
	answer = append(answer, s.axis, resp.FunctionCode)
	return append(answer, resp.Data...)
}

// Process executes the function code against the register image.
func (s *Servo) Process(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	switch req.FunctionCode {
	case modbus.FuncCodeReadHoldingRegisters:
		return s.handleRead(req, model.TableHolding)
	case modbus.FuncCodeReadInputRegisters:
		return s.handleRead(req, model.TableInput)
	case modbus.FuncCodeWriteSingleRegister:
		return s.handleWriteSingleRegister(req)
	case modbus.FuncCodeWriteMultipleRegisters:
		return s.handleWriteMultipleRegisters(req)
	default:
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalFunction)
	}
}

func (s *Servo) handleRead(req modbus.ProtocolDataUnit, table model.Table) modbus.ProtocolDataUnit {
	if len(req.Data) != 4 {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])

	if quantity < 1 || quantity > maxReadQuantity {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}

	data, err := s.regs.Read(table, address, quantity)
	if err != nil {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}

	respData := make([]byte, 1+len(data))
	respData[0] = byte(len(data))
	copy(respData[1:], data)

	return modbus.ProtocolDataUnit{
		FunctionCode: req.FunctionCode,
		Data:         respData,
	}
}

func (s *Servo) handleWriteSingleRegister(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	if len(req.Data) != 4 {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])

	if err := s.regs.Write(model.TableHolding, address, req.Data[2:4]); err != nil {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}
	s.storage.OnWrite(model.TableHolding, address, 1)

	return req // Echo request
}

func (s *Servo) handleWriteMultipleRegisters(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	if len(req.Data) < 5 {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])
	byteCount := req.Data[4]

	if quantity < 1 || quantity > maxWriteQuantity {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	if int(byteCount) != 2*int(quantity) || len(req.Data)-5 != int(byteCount) {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}

	if err := s.regs.Write(model.TableHolding, address, req.Data[5:]); err != nil {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}
	s.storage.OnWrite(model.TableHolding, address, quantity)

	respData := make([]byte, 4)
	binary.BigEndian.PutUint16(respData[0:2], address)
	binary.BigEndian.PutUint16(respData[2:4], quantity)

	return modbus.ProtocolDataUnit{
		FunctionCode: req.FunctionCode,
		Data:         respData,
	}
}

func (s *Servo) exception(funcCode byte, code byte) modbus.ProtocolDataUnit {
	return modbus.ProtocolDataUnit{
		FunctionCode: funcCode | 0x80,
		Data:         []byte{code},
	}
}
